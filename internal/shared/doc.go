// Package shared holds helpers used across the cement quality recorder that
// belong to no single domain package.
//
// The testutil subpackage provides a capturing slog handler and in-memory
// xlsx fixtures built with excelize, for tests of the upload and HTTP
// layers.
package shared
