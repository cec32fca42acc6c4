package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Identifying columns of the fixed schema
const (
	ColumnDate       = "Tanggal"
	ColumnSilo       = "Silo"
	ColumnResearcher = "Peneliti"
)

// NumericFields lists the 23 numeric quality parameters in schema order.
var NumericFields = [...]string{
	"SiO2", "Al2O3", "Fe2O3", "CaO", "MgO", "SO3", "C3S", "C2S", "C3A", "C4AF",
	"FL", "LOI", "Residu", "Blaine", "Insoluble", "Na2O", "K2O",
	"Kuat Tekan 1 Hari", "Kuat Tekan 3 Hari", "Kuat Tekan 7 Hari", "Kuat Tekan 28 Hari",
	"Setting Time Awal", "Setting Time Akhir",
}

// NumericFieldCount is the number of numeric fields per record
const NumericFieldCount = len(NumericFields)

// IdentifyingColumnCount is the number of leading non-numeric columns
const IdentifyingColumnCount = 3

// Derived field groups used by the dashboard charts
var (
	StrengthFields    = []string{"Kuat Tekan 1 Hari", "Kuat Tekan 3 Hari", "Kuat Tekan 7 Hari", "Kuat Tekan 28 Hari"}
	SettingTimeFields = []string{"Setting Time Awal", "Setting Time Akhir"}
)

// Schema returns the fixed, ordered list of the 26 column names.
func Schema() []string {
	cols := make([]string, 0, IdentifyingColumnCount+NumericFieldCount)
	cols = append(cols, ColumnDate, ColumnSilo, ColumnResearcher)
	cols = append(cols, NumericFields[:]...)
	return cols
}

// XVariables returns the numeric fields offered as chart X variables
// (SiO2 through Na2O).
func XVariables() []string {
	out := make([]string, 16)
	copy(out, NumericFields[:16])
	return out
}

// NumericFieldIndex returns the position of name within NumericFields.
func NumericFieldIndex(name string) (int, bool) {
	for i, f := range NumericFields {
		if f == name {
			return i, true
		}
	}
	return -1, false
}

// Number is a float64 that may be missing. Missing is distinct from zero.
type Number struct {
	Float64 float64
	Valid   bool
}

// Missing is the missing Number
var Missing = Number{}

// Float wraps v as a present Number
func Float(v float64) Number {
	return Number{Float64: v, Valid: true}
}

// Value returns the float value, or NaN when missing.
func (n Number) Value() float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Float64
}

// MarshalJSON encodes missing numbers as null
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.Float64, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts a JSON number or null
func (n *Number) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*n = Missing
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Float(v)
	return nil
}

// DateLayout is the wire and export format of record dates
const DateLayout = "2006-01-02"

// Date is a calendar date that may be missing.
type Date struct {
	Time  time.Time
	Valid bool
}

// NewDate builds a valid Date truncated to the calendar day in UTC
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Valid: true}
}

// DateOf truncates t to its calendar day
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// String formats the date as YYYY-MM-DD, or "" when missing
func (d Date) String() string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(DateLayout)
}

// Month returns the YYYY-MM period of the date
func (d Date) Month() string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format("2006-01")
}

// MarshalJSON encodes the date as "YYYY-MM-DD" or null
func (d Date) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD", "" or null
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return err
	}
	*d = DateOf(t)
	return nil
}

// Record is one measurement submission with the fixed schema.
type Record struct {
	ID         string
	Date       Date
	Silo       string
	Researcher string
	Values     [NumericFieldCount]Number
}

// Field returns the value of the named numeric field
func (r Record) Field(name string) (Number, bool) {
	i, ok := NumericFieldIndex(name)
	if !ok {
		return Missing, false
	}
	return r.Values[i], true
}

// Cells returns the 26 cells of the record in schema order.
func (r Record) Cells() []any {
	cells := make([]any, 0, IdentifyingColumnCount+NumericFieldCount)
	cells = append(cells, r.Date, r.Silo, r.Researcher)
	for _, v := range r.Values {
		cells = append(cells, v)
	}
	return cells
}

// Row is the wire form of a record inside a Table
type Row struct {
	ID    string `json:"id"`
	Cells []any  `json:"cells"`
}

// Table is a read-only snapshot of a store's records.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
	Count   int      `json:"count"`

	records []Record
}

// NewTable materializes records into a table. The slice is copied.
func NewTable(records []Record) Table {
	recs := make([]Record, len(records))
	copy(recs, records)
	rows := make([]Row, len(recs))
	for i, r := range recs {
		rows[i] = Row{ID: r.ID, Cells: r.Cells()}
	}
	return Table{
		Columns: Schema(),
		Rows:    rows,
		Count:   len(recs),
		records: recs,
	}
}

// Records returns the typed records behind the table
func (t Table) Records() []Record {
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Len returns the number of rows
func (t Table) Len() int {
	return len(t.records)
}

// Column returns every record's value for a numeric field, in table order.
func (t Table) Column(name string) ([]Number, bool) {
	i, ok := NumericFieldIndex(name)
	if !ok {
		return nil, false
	}
	out := make([]Number, len(t.records))
	for j, r := range t.records {
		out[j] = r.Values[i]
	}
	return out, true
}

// FieldSummary holds the descriptive statistics of one numeric field.
type FieldSummary struct {
	Field string `json:"field"`
	Count int    `json:"count"`
	Mean  Number `json:"mean"`
	Std   Number `json:"std"`
	Min   Number `json:"min"`
	Q25   Number `json:"q25"`
	Q50   Number `json:"q50"`
	Q75   Number `json:"q75"`
	Max   Number `json:"max"`
}

// Description is the per-field statistics of a table
type Description struct {
	Rows   int            `json:"rows"`
	Fields []FieldSummary `json:"fields"`
}

// Get returns the summary for the named field
func (d Description) Get(field string) (FieldSummary, bool) {
	for _, f := range d.Fields {
		if f.Field == field {
			return f, true
		}
	}
	return FieldSummary{}, false
}
