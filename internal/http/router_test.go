package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"research-agent/internal/ingest"
	"research-agent/internal/metrics"
	"research-agent/internal/service"
	"research-agent/internal/service/mocks"
	"research-agent/internal/vectorstore"
)

type stubIngester struct{}

func (stubIngester) IngestDir(context.Context, string, bool) (ingest.Summary, error) {
	return ingest.Summary{}, nil
}

func (stubIngester) ClearAll(context.Context) error { return nil }

func (stubIngester) Stats(context.Context) (*ingest.Stats, error) {
	return &ingest.Stats{Collection: "investment_research"}, nil
}

func newTestRouter(t *testing.T, chat service.ChatService, m *metrics.Metrics) http.Handler {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	if err := store.EnsureCollection(context.Background(), "investment_research", 4); err != nil {
		t.Fatalf("EnsureCollection() error = %v", err)
	}
	return NewRouter(&Deps{
		ChatService: chat,
		Ingester:    stubIngester{},
		VectorStore: store,
		Collection:  "investment_research",
		ReportsDir:  t.TempDir(),
		Metrics:     m,
	})
}

func TestNewRouter(t *testing.T) {
	ctrl := gomock.NewController(t)

	router := newTestRouter(t, mocks.NewMockChatService(ctrl), nil)

	if router == nil {
		t.Fatal("NewRouter() returned nil")
	}
}

func TestRouter_Routes(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockChatService := mocks.NewMockChatService(ctrl)
	mockChatService.EXPECT().History(gomock.Any(), "abc").Return([]service.Turn{}, nil).Times(2)
	mockChatService.EXPECT().Delete(gomock.Any(), "abc").Return(nil)

	router := newTestRouter(t, mockChatService, metrics.New())

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{
			name:       "POST /api/v1/query exists",
			method:     http.MethodPost,
			path:       "/api/v1/query",
			wantStatus: http.StatusBadRequest, // Bad request due to empty body, but route exists
		},
		{
			name:       "GET /api/v1/query method not allowed",
			method:     http.MethodGet,
			path:       "/api/v1/query",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "POST /api/v1/conversation exists",
			method:     http.MethodPost,
			path:       "/api/v1/conversation",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "GET conversation history",
			method:     http.MethodGet,
			path:       "/api/v1/conversations/abc",
			wantStatus: http.StatusOK,
		},
		{
			name:       "GET conversation transcript",
			method:     http.MethodGet,
			path:       "/api/v1/conversations/abc/transcript",
			wantStatus: http.StatusOK,
		},
		{
			name:       "DELETE conversation",
			method:     http.MethodDelete,
			path:       "/api/v1/conversations/abc",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "GET health",
			method:     http.MethodGet,
			path:       "/api/v1/health",
			wantStatus: http.StatusOK,
		},
		{
			name:       "GET stats",
			method:     http.MethodGet,
			path:       "/api/v1/stats",
			wantStatus: http.StatusOK,
		},
		{
			name:       "GET metrics",
			method:     http.MethodGet,
			path:       "/metrics",
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown route",
			method:     http.MethodGet,
			path:       "/api/v1/ask",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Router %s %s status = %v, want %v", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_MetricsDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)

	router := newTestRouter(t, mocks.NewMockChatService(ctrl), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("Router GET /metrics status = %v, want 404 without metrics", w.Code)
	}
}

func TestRouter_MetricsRecorded(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := metrics.New()

	router := newTestRouter(t, mocks.NewMockChatService(ctrl), m)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString("{")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(w.Body.String(), `research_http_requests_total{method="POST",route="/api/v1/query",status="400"} 1`) {
		t.Errorf("metrics output missing query request:\n%s", w.Body.String())
	}
}

func TestRouter_MiddlewareApplied(t *testing.T) {
	ctrl := gomock.NewController(t)

	router := newTestRouter(t, mocks.NewMockChatService(ctrl), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	// Check CORS headers are present
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("Router should apply CORS middleware")
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("error responses should be JSON, got %q", w.Header().Get("Content-Type"))
	}
}
