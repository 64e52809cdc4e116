package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"foodlog/internal/core"
)

// maxJSONBody bounds small JSON request bodies.
const maxJSONBody = 1 << 16

// ParseDay reads a day path value. "today" is accepted as an alias.
func ParseDay(value string) (core.Day, error) {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "today") {
		return core.Today(), nil
	}
	day, err := core.ParseDay(value)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: want %s", value, core.DayLayout)
	}
	return day, nil
}

// ParseSince reads the optional since query parameter.
func ParseSince(r *http.Request) (core.Day, bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get("since"))
	if v == "" {
		return 0, false, nil
	}
	day, err := ParseDay(v)
	if err != nil {
		return 0, false, err
	}
	return day, true, nil
}

// AddEntryRequest is the body of POST /api/days/{date}/entries.
type AddEntryRequest struct {
	Name string `json:"name"`
}

// DecodeJSON decodes a bounded JSON body into v, rejecting unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
