package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"foodlog/internal/core"
)

func TestParseDay(t *testing.T) {
	tests := []struct {
		in      string
		want    core.Day
		wantErr bool
	}{
		{"2024-01-16", 19738, false},
		{" 2024-01-01 ", 19723, false},
		{"1970-01-01", 0, false},
		{"2024-13-01", 0, true},
		{"16/01/2024", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDay(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDay(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("ParseDay(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}

	if got, err := ParseDay("today"); err != nil || got != core.Today() {
		t.Fatalf("ParseDay(today) = (%d, %v)", got, err)
	}
}

func TestParseSince(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/names/popular", nil)
	if _, ok, err := ParseSince(r); ok || err != nil {
		t.Fatalf("absent since should be (false, nil), got (%v, %v)", ok, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/names/popular?since=2024-01-16", nil)
	if day, ok, err := ParseSince(r); !ok || err != nil || day != 19738 {
		t.Fatalf("ParseSince = (%d, %v, %v)", day, ok, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/names/popular?since=yesterday", nil)
	if _, _, err := ParseSince(r); err == nil {
		t.Fatalf("expected error for bad since")
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"Apple"}`, false},
		{"empty", ``, true},
		{"unknown field", `{"name":"Apple","qty":3}`, true},
		{"malformed", `{"name":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var req AddEntryRequest
			err := DecodeJSON(rr, r, &req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeJSON error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && req.Name != "Apple" {
				t.Fatalf("decoded %+v", req)
			}
		})
	}
}
