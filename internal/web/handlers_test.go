package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/camguard/internal/hw/camera"
	"github.com/cjeanneret/camguard/internal/journal"
	"github.com/cjeanneret/camguard/internal/logic/capture"
)

// ---------- ValidateOverrides ----------

func TestValidateOverrides(t *testing.T) {
	cases := []struct {
		name    string
		o       Overrides
		wantErr bool
	}{
		{"zero_uses_config", Overrides{0}, false},
		{"typical", Overrides{5000}, false},
		{"max", Overrides{600000}, false},
		{"negative", Overrides{-1}, true},
		{"too_large", Overrides{600001}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateOverrides(tc.o)
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

// ---------- Handler helpers ----------

func newTestHandlers(fn CaptureFunc) *Handlers {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	return NewHandlers(
		NewStatusBroadcaster(),
		fn,
		journal.New(10),
		FormConfig{CameraType: "simulated", TimeoutMs: 2000, Checks: []string{"config"}},
		staticFS,
	)
}

func okCapture(_ context.Context, _ Overrides) (*camera.Photo, error) {
	return &camera.Photo{ID: "abc"}, nil
}

func postCapture(h *Handlers, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/capture", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleCapture(w, req)
	return w
}

// waitIdle waits for the background capture to finish.
func waitIdle(t *testing.T, h *Handlers) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		h.runningMu.Lock()
		running := h.running
		h.runningMu.Unlock()
		if !running {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("capture still running")
}

// ---------- HandleCapture ----------

func TestHandleCapture_ValidPost(t *testing.T) {
	h := newTestHandlers(okCapture)
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w := postCapture(h, `{"timeout_ms": 1000}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "started" {
		t.Errorf("response status = %q, want \"started\"", resp["status"])
	}
	if resp["request_id"] == "" {
		t.Error("response should carry a request_id")
	}

	evt := receive(t, ch)
	if evt.Outcome == nil || !evt.Outcome.OK || evt.Outcome.PhotoID != "abc" {
		t.Errorf("outcome = %+v", evt.Outcome)
	}
	waitIdle(t, h)
	if h.Journal.Len() != 1 {
		t.Errorf("journal has %d entries, want 1", h.Journal.Len())
	}
}

func TestHandleCapture_PassesOverrides(t *testing.T) {
	got := make(chan Overrides, 1)
	h := newTestHandlers(func(_ context.Context, o Overrides) (*camera.Photo, error) {
		got <- o
		return &camera.Photo{ID: "x"}, nil
	})
	postCapture(h, `{"timeout_ms": 1234}`)
	select {
	case o := <-got:
		if o.TimeoutMs != 1234 {
			t.Errorf("TimeoutMs = %d, want 1234", o.TimeoutMs)
		}
	case <-time.After(time.Second):
		t.Fatal("capture not called")
	}
	waitIdle(t, h)
}

func TestHandleCapture_FailureIsJournaledAndBroadcast(t *testing.T) {
	h := newTestHandlers(func(context.Context, Overrides) (*camera.Photo, error) {
		return nil, &capture.Error{Message: "Camera failed to start: device busy", Kind: capture.StartupFailure, Err: errors.New("x")}
	})
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	if w := postCapture(h, `{}`); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	evt := receive(t, ch)
	if evt.Level != LevelError {
		t.Errorf("level = %q, want error", evt.Level)
	}
	if evt.Outcome == nil || evt.Outcome.Kind == nil || *evt.Outcome.Kind != capture.StartupFailure {
		t.Errorf("outcome = %+v", evt.Outcome)
	}
	waitIdle(t, h)
	recent := h.Journal.Recent(1)
	if len(recent) != 1 || recent[0].OK {
		t.Errorf("journal = %+v", recent)
	}
}

func TestHandleCapture_GetMethodNotAllowed(t *testing.T) {
	h := newTestHandlers(okCapture)
	req := httptest.NewRequest(http.MethodGet, "/capture", nil)
	w := httptest.NewRecorder()
	h.HandleCapture(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleCapture_BadRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"invalid_json", "not json"},
		{"negative_timeout", `{"timeout_ms": -5}`},
		{"huge_timeout", `{"timeout_ms": 700000}`},
		{"wrong_type", `{"timeout_ms": "fast"}`},
		{"oversized", `{"pad":"` + strings.Repeat("x", 2<<20) + `"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandlers(okCapture)
			if w := postCapture(h, tc.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestHandleCapture_NilCapture(t *testing.T) {
	h := newTestHandlers(nil)
	if w := postCapture(h, `{}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleCapture_ConcurrentCapture(t *testing.T) {
	started := make(chan struct{})
	blocking := make(chan struct{})
	slow := func(context.Context, Overrides) (*camera.Photo, error) {
		close(started)
		<-blocking
		return &camera.Photo{ID: "slow"}, nil
	}
	h := newTestHandlers(slow)

	if w := postCapture(h, `{}`); w.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d, want %d", w.Code, http.StatusAccepted)
	}
	<-started

	if w := postCapture(h, `{}`); w.Code != http.StatusConflict {
		t.Errorf("concurrent request: status = %d, want %d", w.Code, http.StatusConflict)
	}

	close(blocking)
	waitIdle(t, h)
}

func TestHandleCapture_RateLimiting(t *testing.T) {
	h := newTestHandlers(okCapture)

	if w := postCapture(h, `{}`); w.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d, want %d", w.Code, http.StatusAccepted)
	}
	waitIdle(t, h)

	// Second request within 5 seconds is rate-limited.
	if w := postCapture(h, `{}`); w.Code != http.StatusTooManyRequests {
		t.Errorf("rate-limited request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

// ---------- HandleHistory ----------

func TestHandleHistory(t *testing.T) {
	h := newTestHandlers(okCapture)
	h.Journal.Record(&camera.Photo{ID: "first"}, nil, 0)
	h.Journal.Record(&camera.Photo{ID: "second"}, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/history?limit=1", nil)
	w := httptest.NewRecorder()
	h.HandleHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got []journal.Outcome
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].PhotoID != "second" {
		t.Errorf("history = %+v", got)
	}
}

func TestHandleHistory_EmptyIsArray(t *testing.T) {
	h := newTestHandlers(okCapture)
	w := httptest.NewRecorder()
	h.HandleHistory(w, httptest.NewRequest(http.MethodGet, "/history", nil))
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestHandleHistory_BadLimit(t *testing.T) {
	for _, q := range []string{"abc", "-1", "1001"} {
		t.Run(q, func(t *testing.T) {
			h := newTestHandlers(okCapture)
			w := httptest.NewRecorder()
			h.HandleHistory(w, httptest.NewRequest(http.MethodGet, "/history?limit="+q, nil))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

// ---------- HandleConfig / ServeIndex ----------

func TestHandleConfig(t *testing.T) {
	h := newTestHandlers(okCapture)
	w := httptest.NewRecorder()
	h.HandleConfig(w, httptest.NewRequest(http.MethodGet, "/config", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var fc FormConfig
	if err := json.NewDecoder(w.Body).Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.CameraType != "simulated" || fc.TimeoutMs != 2000 {
		t.Errorf("config = %+v", fc)
	}
}

func TestServeIndex(t *testing.T) {
	h := newTestHandlers(okCapture)
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

func TestServeIndex_Missing(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), okCapture, nil, FormConfig{}, fstest.MapFS{})
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------- HandleStatusStream ----------

func TestHandleStatusStream_DeliversEvents(t *testing.T) {
	h := newTestHandlers(okCapture)
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/status/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.HandleStatusStream(w, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for h.Broadcaster.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.Broadcaster.BroadcastMsg("streamed")
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !strings.HasPrefix(body, ": connected") {
		t.Errorf("stream should start with a comment, got %q", body)
	}
	if !strings.Contains(body, `"msg":"streamed"`) {
		t.Errorf("stream missing event: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
}
