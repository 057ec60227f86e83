// Package journal keeps a bounded, in-memory history of capture outcomes.
package journal

import (
	"sync"
	"time"

	"github.com/cjeanneret/camguard/internal/hw/camera"
	"github.com/cjeanneret/camguard/internal/logic/capture"
	"github.com/google/uuid"
)

// Outcome records one guarded capture. Exactly one of PhotoID and Message is set.
type Outcome struct {
	ID       string        `json:"id"`
	At       time.Time     `json:"at"`
	OK       bool          `json:"ok"`
	PhotoID  string        `json:"photo_id,omitempty"`
	Kind     *capture.Kind `json:"kind,omitempty"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Journal is a fixed-size ring, safe for concurrent use.
type Journal struct {
	mu    sync.RWMutex
	buf   []Outcome
	next  int
	count int
	now   func() time.Time
}

// New returns a journal keeping the last size outcomes (minimum 1).
func New(size int) *Journal {
	if size < 1 {
		size = 1
	}
	return &Journal{
		buf: make([]Outcome, size),
		now: time.Now,
	}
}

// Record stores the result of a capture and returns the stored outcome.
func (j *Journal) Record(photo *camera.Photo, err error, d time.Duration) Outcome {
	o := Outcome{
		ID:       uuid.NewString(),
		At:       j.now(),
		Duration: d,
	}
	if err != nil {
		k := capture.KindOf(err)
		o.Kind = &k
		o.Message = err.Error()
	} else if photo != nil {
		o.OK = true
		o.PhotoID = photo.ID
	}

	j.mu.Lock()
	j.buf[j.next] = o
	j.next = (j.next + 1) % len(j.buf)
	if j.count < len(j.buf) {
		j.count++
	}
	j.mu.Unlock()
	return o
}

// Recent returns up to n outcomes, newest first. n <= 0 returns all.
func (j *Journal) Recent(n int) []Outcome {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if n <= 0 || n > j.count {
		n = j.count
	}
	out := make([]Outcome, 0, n)
	for i := 1; i <= n; i++ {
		idx := (j.next - i + len(j.buf)) % len(j.buf)
		out = append(out, j.buf[idx])
	}
	return out
}

// Len returns the number of stored outcomes.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.count
}
