package exporter

import (
	"fmt"
	"strconv"

	"cementqa/pkg/contracts/domain"
)

// formatNumber renders a value with the shortest representation that parses
// back to the same float. Missing values are empty.
func formatNumber(n domain.Number) string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Float64, 'f', -1, 64)
}

// cellValue converts a record cell for a spreadsheet row. Missing values are
// nil so the cell stays blank.
func cellValue(v any) any {
	switch c := v.(type) {
	case domain.Number:
		if !c.Valid {
			return nil
		}
		return c.Float64
	case domain.Date:
		if !c.Valid {
			return nil
		}
		return c.String()
	default:
		return v
	}
}

// cellText converts a record cell for a CSV row
func cellText(v any) string {
	switch c := v.(type) {
	case domain.Number:
		return formatNumber(c)
	case domain.Date:
		return c.String()
	case string:
		return c
	case nil:
		return ""
	default:
		return fmt.Sprint(c)
	}
}
