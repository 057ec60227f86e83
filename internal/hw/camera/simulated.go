package camera

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/camguard/internal/debug"
	"github.com/google/uuid"
)

// TypeSimulated is the config name of the in-process camera.
const TypeSimulated = "simulated"

// Simulated is a camera without hardware. It waits Latency, then either
// returns a photo or fails with FailMessage verbatim.
type Simulated struct {
	Latency     time.Duration
	FailMessage string

	shots atomic.Int64
}

// NewSimulated returns a simulated camera.
func NewSimulated(latency time.Duration, failMessage string) *Simulated {
	return &Simulated{Latency: latency, FailMessage: failMessage}
}

func (s *Simulated) TakePicture(ctx context.Context) (*Photo, error) {
	if err := sleep(ctx, s.Latency); err != nil {
		return nil, err
	}
	if s.FailMessage != "" {
		return nil, errors.New(s.FailMessage)
	}
	s.shots.Add(1)
	photo := &Photo{
		ID:      uuid.NewString(),
		Camera:  TypeSimulated,
		TakenAt: time.Now(),
	}
	debug.Shot(photo.Camera, photo.ID)
	return photo, nil
}

// Shots returns the number of successful pictures.
func (s *Simulated) Shots() int64 {
	return s.shots.Load()
}
