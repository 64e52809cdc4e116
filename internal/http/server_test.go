package http

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"foodlog/internal/entries/memory"
	"foodlog/internal/log"
	"foodlog/internal/services"
)

func quietLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
}

func newTestServer(t *testing.T) (*Server, *services.FoodService, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := services.NewFoodService(store, services.Options{Logger: quietLogger()})
	srv := NewServer(":0", svc, Options{Logger: quietLogger(), WriteRequestsPerMinute: 1000})
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = svc.Close()
	})
	return srv, svc, store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, r))
	return rr
}

func TestHealthAndReady(t *testing.T) {
	srv, _, store := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := do(t, srv.Handler, http.MethodGet, path, ""); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	store.Close()
	if rr := do(t, srv.Handler, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with closed store status=%d", rr.Code)
	}
}

func TestAddListRemove(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler

	for want := 1; want <= 2; want++ {
		rr := do(t, h, http.MethodPost, "/api/days/2024-01-16/entries", `{"name":"Apple"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("add status=%d body=%s", rr.Code, rr.Body.String())
		}
		var got entryJSON
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil || got.Quantity != want {
			t.Fatalf("add response = %s", rr.Body.String())
		}
	}

	rr := do(t, h, http.MethodGet, "/api/days/2024-01-16/entries", "")
	var day dayJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &day); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if day.Date != "2024-01-16" || len(day.Entries) != 1 || day.Entries[0].Quantity != 2 {
		t.Fatalf("unexpected day: %+v", day)
	}

	rr = do(t, h, http.MethodDelete, "/api/days/2024-01-16/entries/Apple", "")
	var removed entryJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &removed); err != nil || removed.Quantity != 1 {
		t.Fatalf("remove response = %s", rr.Body.String())
	}

	// names with spaces arrive percent-encoded
	do(t, h, http.MethodPost, "/api/days/2024-01-16/entries", `{"name":"Green tea"}`)
	rr = do(t, h, http.MethodDelete, "/api/days/2024-01-16/entries/Green%20tea", "")
	if err := json.Unmarshal(rr.Body.Bytes(), &removed); err != nil || removed.Name != "Green tea" || removed.Quantity != 0 {
		t.Fatalf("remove response = %s", rr.Body.String())
	}
}

func TestNamesAreKeptVerbatim(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		path   string
		stored string
	}{
		{"tab inside", `{"name":"Tea\tGreen"}`, "Tea%09Green", "Tea\tGreen"},
		{"surrounding spaces", `{"name":" Rice "}`, "%20Rice%20", " Rice "},
		{"case sensitive", `{"name":"apple"}`, "apple", "apple"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, store := newTestServer(t)
			h := srv.Handler
			ctx := context.Background()

			rr := do(t, h, http.MethodPost, "/api/days/2024-01-01/entries", tt.body)
			var added entryJSON
			if err := json.Unmarshal(rr.Body.Bytes(), &added); err != nil || added.Name != tt.stored {
				t.Fatalf("add status=%d body=%s", rr.Code, rr.Body.String())
			}
			if q, ok, _ := store.Get(ctx, 19723, tt.stored); !ok || q != 1 {
				t.Fatalf("stored %q quantity=%d present=%v", tt.stored, q, ok)
			}

			rr = do(t, h, http.MethodDelete, "/api/days/2024-01-01/entries/"+tt.path, "")
			var removed entryJSON
			if err := json.Unmarshal(rr.Body.Bytes(), &removed); err != nil || removed.Name != tt.stored {
				t.Fatalf("remove status=%d body=%s", rr.Code, rr.Body.String())
			}
			rows, _ := store.ScanAll(ctx)
			if len(rows) != 0 {
				t.Fatalf("remove left rows behind: %+v", rows)
			}
		})
	}
}

func TestRequestErrors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"bad date", http.MethodGet, "/api/days/yesterday/entries", "", http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/days/2024-01-16/entries", `{"name":`, http.StatusBadRequest},
		{"blank name", http.MethodPost, "/api/days/2024-01-16/entries", `{"name":"  "}`, http.StatusUnprocessableEntity},
		{"comma in name", http.MethodPost, "/api/days/2024-01-16/entries", `{"name":"a,b"}`, http.StatusUnprocessableEntity},
		{"name too long", http.MethodPost, "/api/days/2024-01-16/entries", `{"name":"` + strings.Repeat("x", 201) + `"}`, http.StatusUnprocessableEntity},
		{"bad since", http.MethodGet, "/api/names/popular?since=soon", "", http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/api/days/2024-01-16/entries", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, srv.Handler, tt.method, tt.path, tt.body); rr.Code != tt.code {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.code, rr.Body.String())
			}
		})
	}
}

func TestNameRankings(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	ctx := context.Background()
	svc.AddFood(ctx, 19723, "Rice")
	svc.AddFood(ctx, 19724, "Rice")
	svc.AddFood(ctx, 19725, "Tea")

	decode := func(rr *httptest.ResponseRecorder) []string {
		t.Helper()
		var body namesJSON
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body.Names
	}

	if got := decode(do(t, srv.Handler, http.MethodGet, "/api/names/recent", "")); strings.Join(got, ",") != "Tea,Rice" {
		t.Fatalf("recent = %v", got)
	}
	if got := decode(do(t, srv.Handler, http.MethodGet, "/api/names/popular", "")); strings.Join(got, ",") != "Rice,Tea" {
		t.Fatalf("popular = %v", got)
	}
	if got := decode(do(t, srv.Handler, http.MethodGet, "/api/names/popular?since=2024-01-03", "")); strings.Join(got, ",") != "Tea" {
		t.Fatalf("popular since = %v", got)
	}
}

func TestExportAndImport(t *testing.T) {
	srv, _, store := newTestServer(t)

	rr := do(t, srv.Handler, http.MethodPost, "/api/import",
		"date,name,quantity\n2024-01-01,Rice,3\nbad,line,1\n")
	if rr.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body.String())
	}
	var res importJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil || res.Applied != 1 || res.Skipped != 1 || res.Increments != 3 {
		t.Fatalf("import response = %s", rr.Body.String())
	}
	if qty, _, _ := store.Get(context.Background(), 19723, "Rice"); qty != 3 {
		t.Fatalf("Rice quantity = %d", qty)
	}

	rr = do(t, srv.Handler, http.MethodGet, "/api/export.csv", "")
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	if rr.Body.String() != "date,name,quantity\n2024-01-01,Rice,3\n" {
		t.Fatalf("export body = %q", rr.Body.String())
	}
}

func TestImportTooLarge(t *testing.T) {
	store := memory.New()
	svc := services.NewFoodService(store, services.Options{Logger: quietLogger()})
	srv := NewServer(":0", svc, Options{Logger: quietLogger(), MaxImportBytes: 32})
	defer srv.Shutdown(context.Background())

	body := "date,name,quantity\n" + strings.Repeat("2024-01-01,Rice,1\n", 10)
	if rr := do(t, srv.Handler, http.MethodPost, "/api/import", body); rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestWriteRateLimit(t *testing.T) {
	store := memory.New()
	svc := services.NewFoodService(store, services.Options{Logger: quietLogger()})
	srv := NewServer(":0", svc, Options{Logger: quietLogger(), WriteRequestsPerMinute: 1})
	defer srv.Shutdown(context.Background())

	do(t, srv.Handler, http.MethodPost, "/api/days/2024-01-16/entries", `{"name":"Apple"}`)
	if rr := do(t, srv.Handler, http.MethodPost, "/api/days/2024-01-16/entries", `{"name":"Apple"}`); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr := do(t, srv.Handler, http.MethodGet, "/api/days/2024-01-16/entries", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads must not be limited, status=%d", rr.Code)
	}
}

func TestStreamSendsSnapshots(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/days/2024-01-16/stream", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	events := make(chan dayJSON)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var d dayJSON
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &d) == nil {
				select {
				case events <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	next := func() dayJSON {
		t.Helper()
		select {
		case d := <-events:
			return d
		case <-ctx.Done():
			t.Fatalf("timed out waiting for event")
		}
		return dayJSON{}
	}

	if d := next(); d.Date != "2024-01-16" || len(d.Entries) != 0 {
		t.Fatalf("unexpected initial event: %+v", d)
	}

	if _, err := svc.AddFood(ctx, 19738, "Apple"); err != nil {
		t.Fatalf("AddFood: %v", err)
	}
	if d := next(); len(d.Entries) != 1 || d.Entries[0].Name != "Apple" {
		t.Fatalf("unexpected update event: %+v", d)
	}
}
