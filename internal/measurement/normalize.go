package measurement

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"cementqa/pkg/contracts/domain"
)

// Normalize coerces a raw cell value into a Number.
//
// The value is rendered as text, stripped of all whitespace, every comma is
// turned into a dot and the result is parsed as a float. Anything that does
// not parse, plus NaN and infinities, is missing. Normalize never fails.
func Normalize(raw any) domain.Number {
	text, ok := render(raw)
	if !ok {
		return domain.Missing
	}
	return normalizeText(text)
}

// NormalizeString is Normalize for text input
func NormalizeString(s string) domain.Number {
	return normalizeText(s)
}

func normalizeText(s string) domain.Number {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" || !plainDecimal(s) {
		return domain.Missing
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return domain.Missing
	}
	return domain.Float(v)
}

// plainDecimal rejects the forms strconv accepts but a lab sheet never means:
// hex floats, underscores and spelled-out inf/nan.
func plainDecimal(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.', r == '+', r == '-', r == 'e', r == 'E':
		default:
			return false
		}
	}
	return true
}

func render(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return string(v), true
	case domain.Number:
		if !v.Valid {
			return "", false
		}
		return strconv.FormatFloat(v.Float64, 'g', -1, 64), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}
