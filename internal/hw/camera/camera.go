package camera

import (
	"context"
	"errors"
	"time"
)

// ErrStartFailed is wrapped by every backend error that means the camera
// never got ready to shoot. Its text is the pattern callers historically
// matched on, so wrapped messages read "Camera failed to start: <detail>".
var ErrStartFailed = errors.New("Camera failed to start")

// Photo is the handle of a captured picture. Callers own it once returned.
type Photo struct {
	ID      string    `json:"id"`
	Camera  string    `json:"camera"`
	TakenAt time.Time `json:"taken_at"`
}

// Camera is the capture capability consumed by the guard.
// It represents an abstract "camera", regardless of how it's controlled
// (GPIO, USB, network protocol, etc.). TakePicture may block for an
// arbitrary time; implementations should honour ctx but callers cannot rely
// on it.
type Camera interface {
	TakePicture(ctx context.Context) (*Photo, error)
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
