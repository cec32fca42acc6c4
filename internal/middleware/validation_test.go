package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "cementqa/internal/errors"
	api "cementqa/pkg/contracts/api/v1"
)

func newValidation() *ValidationMiddleware {
	return NewValidationMiddleware(nil, apperrors.NewErrorHandler(nil, false))
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
		wantErr  string
	}{
		{
			name: "valid",
			body: `{"date":"2024-01-15","silo":"Silo 3","researcher":"Dewi","values":{"SiO2":"21,5","Blaine":320}}`,
		},
		{name: "invalid json", body: `{"date":`, wantCode: "INVALID_JSON"},
		{name: "empty body", body: ``, wantCode: "INVALID_JSON"},
		{name: "trailing value", body: `{} {}`, wantCode: "INVALID_JSON"},
		{
			name:     "unknown value key",
			body:     `{"values":{"Kekerasan":1}}`,
			wantCode: "VALIDATION_FAILED",
			wantErr:  "Kekerasan",
		},
		{
			name:     "bad date",
			body:     `{"date":"15/01/2024"}`,
			wantCode: "VALIDATION_FAILED",
			wantErr:  "YYYY-MM-DD",
		},
		{
			name:     "silo too long",
			body:     `{"silo":"` + strings.Repeat("s", 65) + `"}`,
			wantCode: "VALIDATION_FAILED",
			wantErr:  "silo",
		},
	}

	v := newValidation()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var req api.ManualEntryRequest
			err := v.DecodeJSON(r, &req)

			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, "Silo 3", req.Silo)
				assert.Equal(t, "21,5", req.Values["SiO2"])
				return
			}
			var apiErr *apperrors.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
			if tt.wantErr != "" {
				details, ok := apiErr.Details.(apperrors.ValidationErrors)
				require.True(t, ok)
				require.NotEmpty(t, details.Errors)
				joined := details.Errors[0].Field + " " + details.Errors[0].Message
				assert.Contains(t, joined, tt.wantErr)
			}
		})
	}
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	v := newValidation()
	v.maxBodySize = 16
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"silo":"`+strings.Repeat("x", 64)+`"}`))

	var req api.ManualEntryRequest
	err := v.DecodeJSON(r, &req)
	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, apiErr.StatusCode)
}

func TestValidateStruct_ChartVariable(t *testing.T) {
	v := newValidation()
	assert.NoError(t, v.ValidateStruct(&api.ChartQuery{Variable: "SiO2"}))
	assert.NoError(t, v.ValidateStruct(&api.ChartQuery{}))
	assert.Error(t, v.ValidateStruct(&api.ChartQuery{Variable: "Tanggal"}))
}

func TestContentTypeValidator(t *testing.T) {
	mw := ContentTypeValidator(apperrors.NewErrorHandler(nil, false), "application/json")
	h := mw(http.HandlerFunc(ok))

	tests := []struct {
		name        string
		method      string
		contentType string
		want        int
	}{
		{"json", http.MethodPost, "application/json; charset=utf-8", http.StatusOK},
		{"get skips check", http.MethodGet, "", http.StatusOK},
		{"missing", http.MethodPost, "", http.StatusUnsupportedMediaType},
		{"other", http.MethodPost, "text/plain", http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/", strings.NewReader("{}"))
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
			if tt.want != http.StatusOK {
				assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestQueryParamValidator(t *testing.T) {
	v := NewQueryParamValidator(apperrors.NewErrorHandler(nil, false))

	t.Run("ParseInt", func(t *testing.T) {
		tests := []struct {
			value string
			want  int
			ok    bool
		}{
			{"3", 3, true},
			{"0", 0, true},
			{"-1", 0, false},
			{"11", 0, false},
			{"abc", 0, false},
		}
		for _, tt := range tests {
			w := httptest.NewRecorder()
			n, ok := v.ParseInt(w, httptest.NewRequest(http.MethodDelete, "/", nil), "index", tt.value, 0, 10)
			assert.Equal(t, tt.ok, ok, tt.value)
			assert.Equal(t, tt.want, n, tt.value)
			if !ok {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		}
	})
}
