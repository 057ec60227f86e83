package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cjeanneret/camguard/internal/hw/camera"
	"github.com/cjeanneret/camguard/internal/preflight"
)

// Options configures a Guard.
type Options struct {
	Timeout time.Duration     // zero waits for the camera indefinitely
	Checks  []preflight.Check // run in order before each capture
	Logger  *log.Logger       // failure records; defaults to log.Default()
}

// Guard takes one photo per call and turns every failure into a classified
// *Error, logged exactly once. It holds no per-call state and may be shared;
// serializing access to a single camera is up to the caller.
type Guard struct {
	timeout time.Duration
	checks  []preflight.Check
	logger  *log.Logger
}

func NewGuard(opts Options) *Guard {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Guard{
		timeout: opts.Timeout,
		checks:  opts.Checks,
		logger:  logger,
	}
}

// WithTimeout returns a copy of g using timeout d.
func (g *Guard) WithTimeout(d time.Duration) *Guard {
	cp := *g
	cp.timeout = d
	return &cp
}

// Timeout returns the configured timeout (zero means none).
func (g *Guard) Timeout() time.Duration {
	return g.timeout
}

type shot struct {
	photo *camera.Photo
	err   error
}

// Capture runs the preflight checks, then calls cam.TakePicture exactly once.
// On success the photo is returned unchanged and nothing is logged.
// On failure the result is always a non-nil *Error and one log line.
func (g *Guard) Capture(ctx context.Context, cam camera.Camera) (*camera.Photo, error) {
	photo, err := g.capture(ctx, cam)
	if err != nil {
		ce := newError(err)
		g.logger.Printf("capture failed [%s]: %v", ce.Kind, err)
		return nil, ce
	}
	return photo, nil
}

func (g *Guard) capture(ctx context.Context, cam camera.Camera) (*camera.Photo, error) {
	if cam == nil {
		return nil, errors.New("camera handle is nil")
	}
	if err := preflight.Run(ctx, g.checks); err != nil {
		return nil, err
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		cause := fmt.Errorf("capture timed out after %v: %w", g.timeout, context.DeadlineExceeded)
		ctx, cancel = context.WithTimeoutCause(ctx, g.timeout, cause)
		defer cancel()
	}

	// The camera runs in its own goroutine so one that ignores ctx cannot
	// hold the caller past the deadline. Its late result is dropped.
	done := make(chan shot, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- shot{err: fmt.Errorf("camera panicked: %v", r)}
			}
		}()
		p, err := cam.TakePicture(ctx)
		done <- shot{photo: p, err: err}
	}()

	var s shot
	select {
	case s = <-done:
	case <-ctx.Done():
		select {
		case s = <-done:
		default:
			// Cause is the timeout message above only when this guard's
			// deadline fired; a caller's cancel or deadline passes through.
			return nil, context.Cause(ctx)
		}
	}

	// The camera's own error is returned as-is, even if it wraps a deadline.
	switch {
	case s.err != nil:
		return nil, s.err
	case s.photo == nil:
		return nil, errors.New("camera returned no photo")
	}
	return s.photo, nil
}
