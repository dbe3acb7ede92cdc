package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newParser(t *testing.T, body, contentType string) *RequestBodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return NewRequestBodyParser(httptest.NewRecorder(), req)
}

func TestRequestBodyParser_JSON(t *testing.T) {
	parser := newParser(t, `{"service": "Luz", "reference": "ABC123", "amount": 42.50}`, "application/json")
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := parser.Get("service"); got != "Luz" {
		t.Errorf("Get('service') = %q, want 'Luz'", got)
	}
	// The literal is preserved, including the trailing zero.
	if got := parser.Get("amount"); got != "42.50" {
		t.Errorf("Get('amount') = %q, want '42.50'", got)
	}
	if got := parser.Get("missing"); got != "" {
		t.Errorf("Get('missing') = %q, want empty", got)
	}
}

func TestRequestBodyParser_JSONHugeNumber(t *testing.T) {
	parser := newParser(t, `{"amount": 1e400}`, "application/json")
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := parser.Get("amount"); got != "1e400" {
		t.Errorf("Get('amount') = %q, want '1e400'", got)
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	parser := newParser(t, "amount=100&description=+Pago+renta+", "application/x-www-form-urlencoded")
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := parser.Get("amount"); got != "100" {
		t.Errorf("Get('amount') = %q, want '100'", got)
	}
	if got := parser.Get("description"); got != "Pago renta" {
		t.Errorf("Get('description') = %q, want 'Pago renta'", got)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	parser := newParser(t, "", "")
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := parser.Get("pin"); got != "" {
		t.Errorf("Get('pin') = %q, want empty", got)
	}
}

func TestRequestBodyParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"amount": `},
		{"json array", `[1, 2]`},
		{"bad form escape", "amount=%zz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := newParser(t, tt.body, "")
			if err := parser.Parse(); err == nil {
				t.Error("Parse() expected error")
			}
			// Parse is memoised.
			if err := parser.Parse(); err == nil {
				t.Error("second Parse() expected the same error")
			}
		})
	}
}

func TestRequestBodyParser_TooLarge(t *testing.T) {
	parser := newParser(t, "description="+strings.Repeat("a", maxBodyBytes+1), "")
	if err := parser.Parse(); err == nil {
		t.Error("Parse() expected error for oversized body")
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hola  ", "hola"},
		{"a\x00b\x07c", "abc"},
		{"line\tone", "line\tone"},
		{"caf\xff", "caf\uFFFD"},
		{"\xc3(", "\uFFFD("},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStringValue(t *testing.T) {
	if got := stringValue(true); got != "true" {
		t.Errorf("stringValue(true) = %q", got)
	}
	if got := stringValue(nil); got != "" {
		t.Errorf("stringValue(nil) = %q", got)
	}
	if got := stringValue(map[string]any{}); got != "" {
		t.Errorf("stringValue(map) = %q", got)
	}
}
