package measurement

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cementqa/pkg/contracts/domain"
)

func bulkRow(date, silo string, numbers ...any) []any {
	row := []any{date, silo, "Fitri"}
	row = append(row, numbers...)
	return row
}

func TestStore_AppendManual_EndToEnd(t *testing.T) {
	s := NewStore()

	rec := s.AppendManual(domain.NewDate(2024, time.March, 4), "Silo 3", "Devi", map[string]any{
		"SiO2":   "21,5",
		"Blaine": 320,
	})
	require.NotEmpty(t, rec.ID)

	table := s.Table()
	require.Equal(t, 1, table.Len())

	got := table.Records()[0]
	sio2, ok := got.Field("SiO2")
	require.True(t, ok)
	assert.True(t, sio2.Valid)
	assert.InDelta(t, 21.5, sio2.Float64, 1e-9)

	blaine, _ := got.Field("Blaine")
	assert.Equal(t, domain.Float(320), blaine)

	for _, name := range []string{"CaO", "Kuat Tekan 28 Hari", "Setting Time Akhir"} {
		v, _ := got.Field(name)
		assert.False(t, v.Valid, "%s should be missing, not zero", name)
	}
}

func TestStore_AppendManual_IgnoresUnknownFields(t *testing.T) {
	s := NewStore()
	rec := s.AppendManual(domain.Date{}, "A", "B", map[string]any{"Unknown": 5, "CaO": 64.2})

	cao, _ := rec.Field("CaO")
	assert.Equal(t, domain.Float(64.2), cao)
	assert.Equal(t, 1, s.Len())
}

func TestStore_AppendBulk(t *testing.T) {
	s := NewStore()
	rows := [][]any{
		bulkRow("2024-01-15", "Silo 1", "21,3", " 5,1 ", "abc"),
		bulkRow("not a date", "Silo 2", 20.9),
	}

	recs, err := s.AppendBulk(domain.Schema(), rows)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	table := s.Table()
	require.Equal(t, 2, table.Len())
	first := table.Records()[0]
	assert.Equal(t, "2024-01-15", first.Date.String())
	assert.Equal(t, "Silo 1", first.Silo)
	assert.InDelta(t, 21.3, first.Values[0].Float64, 1e-9)
	assert.InDelta(t, 5.1, first.Values[1].Float64, 1e-9)
	assert.False(t, first.Values[2].Valid, "unparseable cell is missing")
	assert.False(t, first.Values[3].Valid, "short rows are padded with missing cells")

	second := table.Records()[1]
	assert.False(t, second.Date.Valid)
	assert.Equal(t, domain.Float(20.9), second.Values[0])
}

func TestStore_AppendBulk_LeadingColumnsNotNormalized(t *testing.T) {
	s := NewStore()
	_, err := s.AppendBulk(domain.Schema(), [][]any{{"2024-02-01", "1,5", " 2 "}})
	require.NoError(t, err)

	rec := s.Table().Records()[0]
	assert.Equal(t, "1,5", rec.Silo)
	assert.Equal(t, " 2 ", rec.Researcher)
}

func TestStore_AppendBulk_SchemaMismatch(t *testing.T) {
	schema := domain.Schema()

	renamed := append([]string{}, schema...)
	renamed[3] = "sio2"

	reordered := append([]string{}, schema...)
	reordered[3], reordered[4] = reordered[4], reordered[3]

	tests := []struct {
		name           string
		columns        []string
		wantMissing    []string
		wantUnexpected []string
		wantMisordered bool
	}{
		{name: "extra column", columns: append(append([]string{}, schema...), "Bulan"), wantUnexpected: []string{"Bulan"}},
		{name: "missing column", columns: schema[:len(schema)-1], wantMissing: []string{"Setting Time Akhir"}},
		{name: "renamed column", columns: renamed, wantMissing: []string{"SiO2"}, wantUnexpected: []string{"sio2"}},
		{name: "reordered columns", columns: reordered, wantMisordered: true},
		{name: "no columns", columns: nil, wantMissing: schema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.AppendManual(domain.Date{}, "keep", "me", nil)

			_, err := s.AppendBulk(tt.columns, [][]any{bulkRow("2024-01-01", "X", "1")})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaMismatch))

			var mismatch *SchemaMismatchError
			require.True(t, errors.As(err, &mismatch))
			assert.Equal(t, tt.wantMissing, mismatch.Missing)
			assert.Equal(t, tt.wantUnexpected, mismatch.Unexpected)
			assert.Equal(t, tt.wantMisordered, mismatch.Misordered)

			assert.Equal(t, 1, s.Len(), "store must be unchanged")
		})
	}
}

func TestStore_AppendBulk_RowTooWide(t *testing.T) {
	s := NewStore()
	wide := make([]any, len(domain.Schema())+1)
	_, err := s.AppendBulk(domain.Schema(), [][]any{bulkRow("2024-01-01", "A"), wide})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Equal(t, 0, s.Len())
}

func TestStore_OrderPreservedAcrossPaths(t *testing.T) {
	s := NewStore()
	s.AppendManual(domain.Date{}, "m1", "r", nil)
	_, err := s.AppendBulk(domain.Schema(), [][]any{bulkRow("", "b1"), bulkRow("", "b2")})
	require.NoError(t, err)
	s.AppendManual(domain.Date{}, "m2", "r", nil)

	var silos []string
	for _, r := range s.Table().Records() {
		silos = append(silos, r.Silo)
	}
	assert.Equal(t, []string{"m1", "b1", "b2", "m2"}, silos)
}

func TestStore_DeleteAt(t *testing.T) {
	s := NewStore()
	for i := 0; i < 4; i++ {
		s.AppendManual(domain.Date{}, fmt.Sprintf("silo-%d", i), "r", nil)
	}
	before := s.Table().Records()

	removed, err := s.DeleteAt(1)
	require.NoError(t, err)
	assert.Equal(t, before[1].ID, removed.ID)

	after := s.Table().Records()
	require.Len(t, after, 3)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, before[2].ID, after[1].ID)
	assert.Equal(t, before[3].ID, after[2].ID)
}

func TestStore_DeleteAt_OutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		index int
	}{
		{name: "empty store", size: 0, index: 0},
		{name: "negative", size: 2, index: -1},
		{name: "equal to length", size: 2, index: 2},
		{name: "far beyond", size: 2, index: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			for i := 0; i < tt.size; i++ {
				s.AppendManual(domain.Date{}, "s", "r", nil)
			}
			before := s.Table()

			_, err := s.DeleteAt(tt.index)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrIndexOutOfRange)

			var idxErr *IndexError
			require.ErrorAs(t, err, &idxErr)
			assert.Equal(t, tt.size, idxErr.Length)
			assert.Equal(t, before, s.Table())
		})
	}
}

func TestStore_DeleteByID(t *testing.T) {
	s := NewStore()
	a := s.AppendManual(domain.Date{}, "a", "r", nil)
	b := s.AppendManual(domain.Date{}, "b", "r", nil)
	c := s.AppendManual(domain.Date{}, "c", "r", nil)

	_, err := s.Delete(b.ID)
	require.NoError(t, err)

	recs := s.Table().Records()
	require.Len(t, recs, 2)
	assert.Equal(t, a.ID, recs[0].ID)
	assert.Equal(t, c.ID, recs[1].ID)

	_, err = s.Delete(b.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestStore_TableIsSnapshot(t *testing.T) {
	s := NewStore()
	s.AppendManual(domain.Date{}, "a", "r", nil)
	table := s.Table()

	s.AppendManual(domain.Date{}, "b", "r", nil)
	_, err := s.DeleteAt(0)
	require.NoError(t, err)

	assert.Equal(t, 1, table.Len())
	assert.Equal(t, "a", table.Records()[0].Silo)
}

func TestStore_Reset(t *testing.T) {
	s := NewStore()
	s.AppendManual(domain.Date{}, "a", "r", nil)
	s.AppendManual(domain.Date{}, "b", "r", nil)

	assert.Equal(t, 2, s.Reset())
	assert.Equal(t, 0, s.Len())
}

func TestStore_ConcurrentMutations(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AppendManual(domain.Date{}, fmt.Sprint(i), "r", map[string]any{"SiO2": i})
			_ = s.Table()
			_ = s.Describe()
		}(i)
	}
	wg.Wait()
	require.Equal(t, 50, s.Len())

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.DeleteAt(0)
		}()
	}
	wg.Wait()
	assert.Equal(t, 30, s.Len())
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{name: "iso date", input: "2024-05-06", want: "2024-05-06"},
		{name: "iso datetime", input: "2024-05-06 13:45:00", want: "2024-05-06"},
		{name: "rfc3339", input: "2024-05-06T10:00:00Z", want: "2024-05-06"},
		{name: "day first", input: "06/05/2024", want: "2024-05-06"},
		{name: "short day first", input: "6/5/2024", want: "2024-05-06"},
		{name: "padded", input: " 2024-05-06 ", want: "2024-05-06"},
		{name: "time value", input: time.Date(2024, 5, 6, 18, 0, 0, 0, time.UTC), want: "2024-05-06"},
		{name: "garbage", input: "kemarin", want: ""},
		{name: "number", input: 45000.0, want: ""},
		{name: "nil", input: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDate(tt.input).String())
		})
	}
}
