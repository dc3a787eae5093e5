package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// --- モック定義 ---

type failureCall struct {
	operation string
	kind      string
}

type mockRecorder struct {
	mu       sync.Mutex
	calls    []string
	failures []failureCall
}

func (m *mockRecorder) RecordReporterCall(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, operation)
}

func (m *mockRecorder) RecordReporterFailure(operation, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, failureCall{operation, kind})
}

// fakeBackend はemailをキーにユーザーを保持するテスト用バックエンド。
type fakeBackend struct {
	mu      sync.Mutex
	users   map[string]int64
	nextID  int64
	clicks  []logClickRequest
	groups  map[string]int64
	failLog bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:  make(map[string]int64),
		groups: map[string]int64{"control": 1, "variant": 2},
	}
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/register-user":
		var req registerUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id, ok := f.users[req.Email]
		if !ok {
			f.nextID++
			id = f.nextID
			f.users[req.Email] = id
		}
		json.NewEncoder(w).Encode(registerUserResponse{Success: true, UserID: id, GroupID: req.GroupID, Created: !ok})

	case r.Method == http.MethodPost && r.URL.Path == "/log-click":
		if f.failLog {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(errorResponse{Code: "LOG_CLICK_FAILED", Message: "db down"})
			return
		}
		var req logClickRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.clicks = append(f.clicks, req)
		json.NewEncoder(w).Encode(logClickResponse{Success: true, ClickID: int64(len(f.clicks))})

	case r.Method == http.MethodGet && r.URL.Path == "/api/groups":
		id, ok := f.groups[r.URL.Query().Get("name")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(errorResponse{Code: "NOT_FOUND", Message: "missing"})
			return
		}
		json.NewEncoder(w).Encode(groupResponse{ID: id, GroupName: r.URL.Query().Get("name")})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *mockRecorder, *bytes.Buffer) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	rec := &mockRecorder{}
	opts = append([]Option{WithDiagnostics(NewDiagnostics(logger, rec))}, opts...)
	return NewClient(server.URL, server.Client(), logger, opts...), rec, &buf
}

// --- UpsertUser ---

func TestClient_UpsertUser_SameEmailTwice_CreatesOneUser(t *testing.T) {
	backend := newFakeBackend()
	c, rec, _ := newTestClient(t, backend)

	first, err := c.UpsertUser(context.Background(), "Ada", "ada@example.com", 1)
	if err != nil {
		t.Fatalf("first UpsertUser returned error: %v", err)
	}
	second, err := c.UpsertUser(context.Background(), "Ada", "ada@example.com", 1)
	if err != nil {
		t.Fatalf("second UpsertUser returned error: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("user ids differ: %d vs %d", first.ID, second.ID)
	}
	if len(backend.users) != 1 {
		t.Errorf("backend users = %d, want 1", len(backend.users))
	}
	if len(rec.calls) != 2 || rec.calls[0] != OpUpsertUser {
		t.Errorf("recorded calls = %v, want two upsert_user", rec.calls)
	}
}

func TestClient_UpsertUser_SendsJSONBody(t *testing.T) {
	var got registerUserRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(registerUserResponse{Success: true, UserID: 7, GroupID: got.GroupID})
	})
	c, _, _ := newTestClient(t, handler)

	user, err := c.UpsertUser(context.Background(), "Ada", "ada@example.com", 2)
	if err != nil {
		t.Fatalf("UpsertUser returned error: %v", err)
	}
	if got != (registerUserRequest{Name: "Ada", Email: "ada@example.com", GroupID: 2}) {
		t.Errorf("request body = %+v", got)
	}
	if user.ID != 7 || user.Email != "ada@example.com" {
		t.Errorf("user = %+v", user)
	}
}

func TestClient_UpsertUser_ServerError_ReturnsTypedError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errorResponse{Code: "REGISTER_FAILED", Message: "db down"})
	})
	c, rec, _ := newTestClient(t, handler)

	_, err := c.UpsertUser(context.Background(), "Ada", "ada@example.com", 1)

	var srvErr *ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("expected *ServerError, got %T: %v", err, err)
	}
	if srvErr.StatusCode != http.StatusInternalServerError || srvErr.Code != "REGISTER_FAILED" {
		t.Errorf("ServerError = %+v", srvErr)
	}
	if len(rec.failures) != 1 || rec.failures[0] != (failureCall{OpUpsertUser, KindServer}) {
		t.Errorf("failures = %+v", rec.failures)
	}
}

func TestClient_UpsertUser_SuccessFalse_ReturnsServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(registerUserResponse{Success: false})
	})
	c, _, _ := newTestClient(t, handler)

	_, err := c.UpsertUser(context.Background(), "Ada", "ada@example.com", 1)

	var srvErr *ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("expected *ServerError, got %T", err)
	}
}

func TestClient_UpsertUser_UndecodableBody_ReturnsServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	})
	c, _, _ := newTestClient(t, handler)

	_, err := c.UpsertUser(context.Background(), "Ada", "ada@example.com", 1)

	var srvErr *ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("expected *ServerError, got %T", err)
	}
	if !strings.Contains(srvErr.Message, "undecodable") {
		t.Errorf("Message = %q", srvErr.Message)
	}
}

func TestClient_UpsertUser_Unreachable_ReturnsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	rec := &mockRecorder{}
	var buf bytes.Buffer
	c := NewClient(url, &http.Client{Timeout: time.Second}, newTestLogger(&buf),
		WithDiagnostics(NewDiagnostics(newTestLogger(&buf), rec)))

	_, err := c.UpsertUser(context.Background(), "Ada", "ada@example.com", 1)

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetworkError, got %T: %v", err, err)
	}
	if len(rec.failures) != 1 || rec.failures[0].kind != KindNetwork {
		t.Errorf("failures = %+v", rec.failures)
	}
}

// --- LogClick ---

func TestClient_LogClick_Success_ReturnsTrue(t *testing.T) {
	backend := newFakeBackend()
	c, rec, _ := newTestClient(t, backend)

	ok := c.LogClick(context.Background(), ClickInput{
		UserID:    1,
		GroupID:   2,
		SessionID: "s-1",
		PageURL:   "/comet-promo",
		UserAgent: "test-agent",
		IPAddress: "203.0.113.9",
	})
	if !ok {
		t.Fatal("LogClick returned false")
	}

	if len(backend.clicks) != 1 {
		t.Fatalf("backend clicks = %d, want 1", len(backend.clicks))
	}
	click := backend.clicks[0]
	if click.SessionID != "s-1" || click.PageURL != "/comet-promo" || click.UserAgent != "test-agent" ||
		click.IPAddress != "203.0.113.9" {
		t.Errorf("click = %+v", click)
	}
	if len(rec.calls) != 1 || rec.calls[0] != OpLogClick {
		t.Errorf("calls = %v", rec.calls)
	}
}

func TestClient_LogClick_Backend500_ReturnsFalseAndLogs(t *testing.T) {
	backend := newFakeBackend()
	backend.failLog = true
	c, rec, buf := newTestClient(t, backend)

	if c.LogClick(context.Background(), ClickInput{UserID: 1, GroupID: 1}) {
		t.Fatal("LogClick should return false on 500")
	}

	if len(rec.failures) != 1 || rec.failures[0] != (failureCall{OpLogClick, KindServer}) {
		t.Errorf("failures = %+v", rec.failures)
	}
	if !strings.Contains(buf.String(), "backend call failed") {
		t.Errorf("expected warning log, got: %s", buf.String())
	}
}

func TestClient_LogClick_SuccessFalse_ReturnsFalse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(logClickResponse{Success: false})
	})
	c, _, _ := newTestClient(t, handler)

	if c.LogClick(context.Background(), ClickInput{UserID: 1, GroupID: 1}) {
		t.Error("LogClick should return false when success=false")
	}
}

func TestClient_LogClick_ContextCanceled_ReturnsFalse(t *testing.T) {
	backend := newFakeBackend()
	c, rec, _ := newTestClient(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if c.LogClick(ctx, ClickInput{UserID: 1, GroupID: 1}) {
		t.Error("LogClick should return false for a canceled context")
	}
	if len(rec.failures) != 1 || rec.failures[0].kind != KindNetwork {
		t.Errorf("failures = %+v", rec.failures)
	}
}

// --- Diagnostics ---

func TestDiagnostics_NilIsSafe(t *testing.T) {
	var d *Diagnostics
	d.ReportSuccess(OpLogClick)
	d.ReportFailure(OpLogClick, KindServer, errors.New("boom"))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&NetworkError{Op: "x", Err: errors.New("dial")}, KindNetwork},
		{&ServerError{Op: "x", StatusCode: 500}, KindServer},
		{&NotFoundError{Op: "x"}, KindNotFound},
		{errors.New("other"), KindInternal},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%T) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
