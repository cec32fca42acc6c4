package contracts

import (
	"fmt"
	"runtime"

	"cementqa/pkg/contracts/domain"
)

// Version of the service. Release builds override BuildTime and GitCommit
// with -ldflags "-X cementqa/pkg/contracts.GitCommit=...".
const Version = "1.0.0"

// APIVersion covers the HTTP routes and the change event payloads.
const APIVersion = "v1"

// SchemaVersion changes whenever the workbook columns change; exports
// written under one version are only re-uploadable under the same one.
const SchemaVersion = "2024.1"

var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionInfo is served by /api/version
type VersionInfo struct {
	Version       string `json:"version"`
	APIVersion    string `json:"api_version"`
	SchemaVersion string `json:"schema_version"`
	SchemaColumns int    `json:"schema_columns"`
	BuildTime     string `json:"build_time"`
	GitCommit     string `json:"git_commit"`
	GoVersion     string `json:"go_version"`
	Platform      string `json:"platform"`
}

// GetVersionInfo returns the build and schema information of this binary
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:       Version,
		APIVersion:    APIVersion,
		SchemaVersion: SchemaVersion,
		SchemaColumns: domain.IdentifyingColumnCount + domain.NumericFieldCount,
		BuildTime:     BuildTime,
		GitCommit:     GitCommit,
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("cementqa %s (api %s, schema %s, commit %s, %s)",
		v.Version, v.APIVersion, v.SchemaVersion, v.GitCommit, v.GoVersion)
}
