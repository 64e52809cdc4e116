package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"foodlog/internal/core"
	"foodlog/internal/log"
)

type entryJSON struct {
	Date     string `json:"date"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type dayJSON struct {
	Date    string      `json:"date"`
	Entries []entryJSON `json:"entries"`
}

type namesJSON struct {
	Names []string `json:"names"`
}

type importJSON struct {
	Applied    int `json:"applied"`
	Skipped    int `json:"skipped"`
	Increments int `json:"increments"`
}

func toDayJSON(day core.Day, rows []core.FoodEntry) dayJSON {
	out := dayJSON{Date: day.String(), Entries: make([]entryJSON, 0, len(rows))}
	for _, e := range rows {
		out.Entries = append(out.Entries, entryJSON{Date: e.Date.String(), Name: e.Name, Quantity: e.Quantity})
	}
	return out
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.api.Ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		ServiceUnavailableError("storage unavailable").Write(w)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// writeError maps domain errors to status codes and logs server faults.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrEmptyName), errors.Is(err, core.ErrInvalidName):
		UnprocessableEntityError(err.Error()).Write(w)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", log.FieldError, err)
		InternalServerError("internal error").Write(w)
	}
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	day, err := ParseDay(r.PathValue("date"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	rows, err := s.api.EntriesForDate(r.Context(), day)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().JSON(toDayJSON(day, rows)).Write(w)
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	day, err := ParseDay(r.PathValue("date"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req AddEntryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	quantity, err := s.api.AddFood(r.Context(), day, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().JSON(entryJSON{Date: day.String(), Name: req.Name, Quantity: quantity}).Write(w)
}

func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	day, err := ParseDay(r.PathValue("date"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	name := r.PathValue("name")
	quantity, err := s.api.RemoveOne(r.Context(), day, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().JSON(entryJSON{Date: day.String(), Name: name, Quantity: quantity}).Write(w)
}

func (s *Server) handleRecentNames(w http.ResponseWriter, r *http.Request) {
	names, err := s.api.RecentNames(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().JSON(namesJSON{Names: names}).Write(w)
}

func (s *Server) handlePopularNames(w http.ResponseWriter, r *http.Request) {
	since, ok, err := ParseSince(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	var names []string
	if ok {
		names, err = s.api.PopularNamesSince(r.Context(), since)
	} else {
		names, err = s.api.PopularNames(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().JSON(namesJSON{Names: names}).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="foodlog.csv"`)
	// Once streaming starts the status is committed; failures are only logged.
	if err := s.api.Export(r.Context(), w); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Export failed", log.FieldError, err)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxImport)
	res, err := s.api.Import(r.Context(), body)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		ErrorResponse(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("import larger than %d bytes", tooLarge.Limit)).Write(w)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().JSON(importJSON{Applied: res.Applied, Skipped: res.Skipped, Increments: res.Increments}).Write(w)
}

// handleStream sends the day's entries as server-sent events: once on
// connect and again after every change to that day.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	day, err := ParseDay(r.PathValue("date"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx := r.Context()
	sub, err := s.api.Subscribe(ctx, day)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sub.Cancel()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(toDayJSON(snap.Day, snap.Entries))
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: entries\ndata: %s\n\n", data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
