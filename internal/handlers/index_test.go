package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"research-agent/internal/ingest"
)

type fakeIngester struct {
	mu       sync.Mutex
	cleared  bool
	dir      string
	force    bool
	stats    *ingest.Stats
	statsErr error
	release  chan struct{}
	done     chan struct{}
}

func newFakeIngester() *fakeIngester {
	return &fakeIngester{release: make(chan struct{}), done: make(chan struct{}, 1)}
}

func (f *fakeIngester) IngestDir(_ context.Context, dir string, force bool) (ingest.Summary, error) {
	<-f.release
	f.mu.Lock()
	f.dir, f.force = dir, force
	f.mu.Unlock()
	f.done <- struct{}{}
	return ingest.Summary{Files: 1, Ingested: 1}, nil
}

func (f *fakeIngester) ClearAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	return nil
}

func (f *fakeIngester) Stats(context.Context) (*ingest.Stats, error) {
	return f.stats, f.statsErr
}

func TestIndexHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantCleared bool
	}{
		{name: "incremental", query: ""},
		{name: "force", query: "?force=true", wantCleared: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := newFakeIngester()
			handler := NewIndexHandler(ing, "/reports")

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/index"+tt.query, nil))

			if w.Code != http.StatusAccepted {
				t.Fatalf("ServeHTTP() status = %v, want 202", w.Code)
			}
			var resp IndexResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if resp.Status != "accepted" {
				t.Errorf("Status = %v, want accepted", resp.Status)
			}

			// A second trigger while the first run is still going is rejected.
			w2 := httptest.NewRecorder()
			handler.ServeHTTP(w2, httptest.NewRequest(http.MethodPost, "/api/v1/index", nil))
			if w2.Code != http.StatusConflict {
				t.Errorf("concurrent ServeHTTP() status = %v, want 409", w2.Code)
			}

			close(ing.release)
			select {
			case <-ing.done:
			case <-time.After(5 * time.Second):
				t.Fatal("ingestion did not run")
			}

			ing.mu.Lock()
			defer ing.mu.Unlock()
			if ing.dir != "/reports" || ing.force != tt.wantCleared || ing.cleared != tt.wantCleared {
				t.Errorf("ingester got dir=%q force=%v cleared=%v", ing.dir, ing.force, ing.cleared)
			}
		})
	}
}

func TestStatsHandler_ServeHTTP(t *testing.T) {
	t.Run("stats", func(t *testing.T) {
		ing := newFakeIngester()
		ing.stats = &ingest.Stats{Collection: "investment_research", Documents: 2, Chunks: 10, Vectors: 10}

		w := httptest.NewRecorder()
		NewStatsHandler(ing).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("ServeHTTP() status = %v, want 200", w.Code)
		}
		var got ingest.Stats
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.Documents != 2 || got.Chunks != 10 || got.Vectors != 10 || got.Collection != "investment_research" {
			t.Errorf("stats = %+v", got)
		}
	})

	t.Run("error", func(t *testing.T) {
		ing := newFakeIngester()
		ing.statsErr = errors.New("database is locked")

		w := httptest.NewRecorder()
		NewStatsHandler(ing).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ServeHTTP() status = %v, want 500", w.Code)
		}
	})
}
