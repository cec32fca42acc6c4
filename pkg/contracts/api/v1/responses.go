package api

import (
	"time"

	"cementqa/pkg/contracts/domain"
)

// SessionResponse is returned when a session is opened
type SessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendedResponse reports how many records a bulk append or upload added
type AppendedResponse struct {
	Appended int      `json:"appended"`
	IDs      []string `json:"ids"`
	Total    int      `json:"total"`
}

// RecordResponse is the wire form of one record
type RecordResponse struct {
	ID         string                   `json:"id"`
	Date       domain.Date              `json:"date"`
	Silo       string                   `json:"silo"`
	Researcher string                   `json:"researcher"`
	Values     map[string]domain.Number `json:"values"`
}

// NewRecordResponse converts a record to its wire form
func NewRecordResponse(r domain.Record) RecordResponse {
	values := make(map[string]domain.Number, domain.NumericFieldCount)
	for i, name := range domain.NumericFields {
		values[name] = r.Values[i]
	}
	return RecordResponse{
		ID:         r.ID,
		Date:       r.Date,
		Silo:       r.Silo,
		Researcher: r.Researcher,
		Values:     values,
	}
}

// SchemaResponse describes the fixed measurement schema
type SchemaResponse struct {
	Columns           []string `json:"columns"`
	NumericFields     []string `json:"numeric_fields"`
	XVariables        []string `json:"x_variables"`
	StrengthFields    []string `json:"strength_fields"`
	SettingTimeFields []string `json:"setting_time_fields"`
}

// NewSchemaResponse returns the current schema
func NewSchemaResponse() SchemaResponse {
	return SchemaResponse{
		Columns:           domain.Schema(),
		NumericFields:     append([]string(nil), domain.NumericFields[:]...),
		XVariables:        domain.XVariables(),
		StrengthFields:    domain.StrengthFields,
		SettingTimeFields: domain.SettingTimeFields,
	}
}
