// Package api contains the request and response contracts of the HTTP API.
package api

// ManualEntryRequest is the body of a manual measurement submission.
// Values maps numeric field names to numbers or localized numeric text.
type ManualEntryRequest struct {
	Date       string         `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Silo       string         `json:"silo" validate:"max=64"`
	Researcher string         `json:"researcher" validate:"max=64"`
	Values     map[string]any `json:"values" validate:"dive,keys,numericfield,endkeys"`
}

// BulkAppendRequest carries a table of rows whose columns must equal the
// fixed schema.
type BulkAppendRequest struct {
	Columns []string `json:"columns" validate:"required,min=1"`
	Rows    [][]any  `json:"rows" validate:"required"`
}

// ChartQuery selects the variable of a chart
type ChartQuery struct {
	Variable string `validate:"omitempty,xvariable"`
}
