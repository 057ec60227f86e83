package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cjeanneret/camguard/internal/debug"
	"github.com/cjeanneret/camguard/internal/hw/camera"
	"github.com/cjeanneret/camguard/internal/journal"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	maxBodyBytes    = 1 << 20
	minRunInterval  = 5 * time.Second
	maxTimeoutMs    = 600_000
	maxHistoryLimit = 1000
)

// Overrides holds per-request capture parameters.
type Overrides struct {
	TimeoutMs int `json:"timeout_ms"` // 0 = use the configured guard timeout
}

// ValidateOverrides checks request parameters.
func ValidateOverrides(o Overrides) error {
	if o.TimeoutMs < 0 || o.TimeoutMs > maxTimeoutMs {
		return fmt.Errorf("timeout_ms must be between 0 and %d, got %d", maxTimeoutMs, o.TimeoutMs)
	}
	return nil
}

// CaptureFunc runs one guarded capture with the given overrides.
type CaptureFunc func(ctx context.Context, overrides Overrides) (*camera.Photo, error)

// FormConfig holds the defaults shown by the UI.
type FormConfig struct {
	CameraType string   `json:"camera_type"`
	TimeoutMs  int      `json:"timeout_ms"`
	Checks     []string `json:"checks"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Capture      CaptureFunc
	Journal      *journal.Journal
	FormDefaults FormConfig

	baseCtx   context.Context
	limiter   *rate.Limiter
	runningMu sync.Mutex
	running   bool
	staticFS  fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If capture is nil, POST /capture returns 503 Service Unavailable.
// A nil journal is replaced by one holding 50 outcomes.
func NewHandlers(broadcaster *StatusBroadcaster, capture CaptureFunc, j *journal.Journal, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	if j == nil {
		j = journal.New(50)
	}
	return &Handlers{
		Broadcaster:  broadcaster,
		Capture:      capture,
		Journal:      j,
		FormDefaults: formDefaults,
		baseCtx:      context.Background(),
		limiter:      rate.NewLimiter(rate.Every(minRunInterval), 1),
		staticFS:     staticFS,
	}
}

// HandleConfig returns the UI defaults as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.FormDefaults)
}

// ServeIndex serves the main HTML page.
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCapture handles POST /capture. The capture runs in the background;
// its outcome is journaled and broadcast over SSE.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var overrides Overrides
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateOverrides(overrides); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.Capture == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}

	// One capture at a time: the camera is a single physical device.
	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "capture already in progress", http.StatusConflict)
		return
	}
	if !h.limiter.Allow() {
		h.runningMu.Unlock()
		http.Error(w, "too many capture requests", http.StatusTooManyRequests)
		return
	}
	h.running = true
	h.runningMu.Unlock()

	requestID := uuid.NewString()
	debug.Live("Capture %s started (timeout_ms=%d)", requestID, overrides.TimeoutMs)
	go func() {
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.runningMu.Unlock()
		}()

		start := time.Now()
		photo, err := h.Capture(h.baseCtx, overrides)
		o := h.Journal.Record(photo, err, time.Since(start))
		debug.Live("Capture %s finished in %v", requestID, o.Duration)
		h.Broadcaster.BroadcastOutcome(o)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":     "started",
		"request_id": requestID,
	})
}

// HandleHistory handles GET /history?limit=n.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > maxHistoryLimit {
			http.Error(w, fmt.Sprintf("limit must be between 0 and %d", maxHistoryLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.Journal.Recent(limit))
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()
		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
