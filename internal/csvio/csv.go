// Package csvio reads and writes the entry export format:
//
//	date,name,quantity
//	2024-01-15,Apple,2
//
// Names are written raw, without quoting. Commas in names are not supported.
package csvio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"foodlog/internal/core"
)

// Header is the first line of every export.
const Header = "date,name,quantity"

const maxLineSize = 1 << 20

// Record is one parsed import line.
type Record struct {
	Line     int
	Date     core.Day
	Name     string
	Quantity int
}

// Write emits the header followed by one line per entry, in the given order.
func Write(w io.Writer, entries []core.FoodEntry) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%s,%s,%d\n", e.Date, e.Name, e.Quantity); err != nil {
			return fmt.Errorf("write entry: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Reader parses an export line by line. The first line is treated as the
// header and skipped; blank lines are ignored.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{sc: sc}
}

// Next returns the next record. A malformed line yields a *core.ParseError;
// callers may keep calling Next after it. io.EOF marks the end of input.
func (r *Reader) Next() (Record, error) {
	for r.sc.Scan() {
		r.line++
		if r.line == 1 {
			continue
		}
		text := r.sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		return ParseLine(r.line, text)
	}
	if err := r.sc.Err(); err != nil {
		return Record{}, fmt.Errorf("read line %d: %w", r.line+1, err)
	}
	return Record{}, io.EOF
}

// ParseLine parses one data line. The quantity defaults to 1 when the third
// field is not an integer.
func ParseLine(lineNo int, text string) (Record, error) {
	parts := strings.Split(text, ",")
	if len(parts) < 3 {
		return Record{}, &core.ParseError{Line: lineNo, Reason: fmt.Sprintf("expected at least 3 fields, got %d", len(parts))}
	}

	day, err := core.ParseDay(parts[0])
	if err != nil {
		return Record{}, &core.ParseError{Line: lineNo, Reason: fmt.Sprintf("invalid date %q", parts[0])}
	}

	quantity, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		quantity = 1
	}

	entry := core.FoodEntry{Date: day, Name: parts[1], Quantity: quantity}
	if err := entry.Validate(); err != nil {
		if errors.Is(err, core.ErrInvalidQuantity) {
			return Record{}, &core.ParseError{Line: lineNo, Reason: fmt.Sprintf("quantity %d outside 1..%d", quantity, core.MaxServings)}
		}
		return Record{}, &core.ParseError{Line: lineNo, Reason: err.Error()}
	}

	return Record{Line: lineNo, Date: entry.Date, Name: entry.Name, Quantity: entry.Quantity}, nil
}
