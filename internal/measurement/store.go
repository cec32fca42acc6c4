// Package measurement holds the in-memory measurement store of one dashboard
// session together with numeric normalization and descriptive statistics.
package measurement

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cementqa/pkg/contracts/domain"
)

// Store keeps an ordered sequence of measurement records.
// All mutations hold the write lock for their full duration, so a positional
// delete never observes a half-applied append.
type Store struct {
	mu      sync.RWMutex
	records []domain.Record
	newID   func() string
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{newID: uuid.NewString}
}

// AppendManual appends one record built from manual entry. Numeric fields
// absent from values are missing; keys outside the schema are ignored.
func (s *Store) AppendManual(date domain.Date, silo, researcher string, values map[string]any) domain.Record {
	rec := domain.Record{
		Date:       date,
		Silo:       silo,
		Researcher: researcher,
	}
	for i, name := range domain.NumericFields {
		raw, ok := values[name]
		if !ok {
			continue
		}
		rec.Values[i] = Normalize(raw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.newID()
	s.records = append(s.records, rec)
	return rec
}

// AppendBulk validates columns against the fixed schema, normalizes every
// row and appends them in input order. Nothing is appended on error.
func (s *Store) AppendBulk(columns []string, rows [][]any) ([]domain.Record, error) {
	if err := CheckSchema(columns); err != nil {
		return nil, err
	}

	width := domain.IdentifyingColumnCount + domain.NumericFieldCount
	built := make([]domain.Record, 0, len(rows))
	for i, row := range rows {
		if len(row) > width {
			return nil, fmt.Errorf("row %d: %d cells for %d columns: %w", i+1, len(row), width, ErrSchemaMismatch)
		}
		built = append(built, recordFromRow(row))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range built {
		built[i].ID = s.newID()
	}
	s.records = append(s.records, built...)

	out := make([]domain.Record, len(built))
	copy(out, built)
	return out, nil
}

func recordFromRow(row []any) domain.Record {
	cell := func(i int) any {
		if i < len(row) {
			return row[i]
		}
		return nil
	}
	rec := domain.Record{
		Date:       ParseDate(cell(0)),
		Silo:       text(cell(1)),
		Researcher: text(cell(2)),
	}
	for i := range domain.NumericFields {
		rec.Values[i] = Normalize(cell(domain.IdentifyingColumnCount + i))
	}
	return rec
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// DeleteAt removes the record at the zero-based position index. Records after
// it shift down by one.
func (s *Store) DeleteAt(index int) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.records) {
		return domain.Record{}, &IndexError{Index: index, Length: len(s.records)}
	}
	removed := s.records[index]
	s.records = append(s.records[:index], s.records[index+1:]...)
	return removed, nil
}

// Delete removes the record with the given identifier.
func (s *Store) Delete(id string) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return r, nil
		}
	}
	return domain.Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
}

// Reset drops every record and returns how many were removed
func (s *Store) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records)
	s.records = nil
	return n
}

// Len returns the number of records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Table returns a snapshot of all records in store order.
func (s *Store) Table() domain.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.NewTable(s.records)
}

// Describe computes per-field descriptive statistics over the current records.
func (s *Store) Describe() domain.Description {
	return Describe(s.Table())
}

// CheckSchema reports how columns differ from the fixed schema. Names are
// compared exactly, including case and order.
func CheckSchema(columns []string) error {
	schema := domain.Schema()
	if equalStrings(columns, schema) {
		return nil
	}

	want := make(map[string]bool, len(schema))
	for _, c := range schema {
		want[c] = true
	}
	have := make(map[string]bool, len(columns))
	mismatch := &SchemaMismatchError{}
	for _, c := range columns {
		if have[c] || !want[c] {
			mismatch.Unexpected = append(mismatch.Unexpected, c)
		}
		have[c] = true
	}
	for _, c := range schema {
		if !have[c] {
			mismatch.Missing = append(mismatch.Missing, c)
		}
	}
	if len(mismatch.Missing) == 0 && len(mismatch.Unexpected) == 0 {
		mismatch.Misordered = true
	}
	return mismatch
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var dateLayouts = []string{
	domain.DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"2/1/2006",
}

// ParseDate converts a raw date cell into a Date. Unparseable input yields a
// missing date rather than an error.
func ParseDate(raw any) domain.Date {
	switch v := raw.(type) {
	case domain.Date:
		return v
	case time.Time:
		if v.IsZero() {
			return domain.Date{}
		}
		return domain.DateOf(v)
	case *time.Time:
		if v == nil || v.IsZero() {
			return domain.Date{}
		}
		return domain.DateOf(*v)
	case string:
		v = strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return domain.DateOf(t)
			}
		}
	}
	return domain.Date{}
}
