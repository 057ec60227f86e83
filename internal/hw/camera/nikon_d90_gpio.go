package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/camguard/internal/debug"
	"github.com/cjeanneret/camguard/internal/hw/gpio"
	"github.com/google/uuid"
)

// TypeNikonD90GPIO is the config name of the GPIO-triggered DSLR backend.
const TypeNikonD90GPIO = "nikon_d90_gpio"

// NikonD90GPIO is a Camera implementation for a Nikon D90
// controlled via the 3-pin remote connector:
// - GND: connected to Raspberry Pi ground
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
//
// The trigger gets no feedback from the body, so a returned Photo means the
// sequence completed on the wire, not that a file was written on the card.
type NikonD90GPIO struct {
	gpio         gpio.Driver
	focusPin     int
	shutterPin   int
	focusDelay   time.Duration // time for autofocus
	shutterDelay time.Duration // shutter hold time

	mu      sync.Mutex
	started bool
}

// NewNikonD90GPIO creates a GPIO-controlled Nikon D90 trigger.
// Pins are not touched until Start (or the first TakePicture).
func NewNikonD90GPIO(g gpio.Driver, focusPin, shutterPin int, focusDelay, shutterDelay time.Duration) *NikonD90GPIO {
	return &NikonD90GPIO{
		gpio:         g,
		focusPin:     focusPin,
		shutterPin:   shutterPin,
		focusDelay:   focusDelay,
		shutterDelay: shutterDelay,
	}
}

// Start configures both lines as outputs held HIGH (inactive).
// Any pin failure is reported as ErrStartFailed.
func (n *NikonD90GPIO) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.start()
}

func (n *NikonD90GPIO) start() error {
	if n.started {
		return nil
	}
	debug.Verbose("Camera: configuring FOCUS pin %d and SHUTTER pin %d", n.focusPin, n.shutterPin)
	for _, pin := range []int{n.focusPin, n.shutterPin} {
		if err := n.gpio.SetupPin(pin, gpio.Output); err != nil {
			return fmt.Errorf("%w: setup pin %d: %v", ErrStartFailed, pin, err)
		}
		if err := n.gpio.WritePin(pin, gpio.High); err != nil {
			return fmt.Errorf("%w: release pin %d: %v", ErrStartFailed, pin, err)
		}
	}
	n.started = true
	return nil
}

// TakePicture runs FOCUS -> wait for AF -> SHUTTER -> hold -> release.
// Concurrent calls are serialized on the trigger lines.
func (n *NikonD90GPIO) TakePicture(ctx context.Context) (*Photo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.start(); err != nil {
		return nil, err
	}
	debug.Verbose("Camera: triggering shot (focus=%d, shutter=%d)", n.focusPin, n.shutterPin)

	if err := n.gpio.WritePin(n.focusPin, gpio.Low); err != nil {
		return nil, fmt.Errorf("activate focus: %w", err)
	}
	if err := sleep(ctx, n.focusDelay); err != nil {
		n.release()
		return nil, err
	}

	if err := n.gpio.WritePin(n.shutterPin, gpio.Low); err != nil {
		n.release()
		return nil, fmt.Errorf("activate shutter: %w", err)
	}
	// The shutter is already down; hold it for the full time regardless of ctx.
	time.Sleep(n.shutterDelay)

	if err := n.gpio.WritePin(n.shutterPin, gpio.High); err != nil {
		n.release()
		return nil, fmt.Errorf("release shutter: %w", err)
	}
	if err := n.gpio.WritePin(n.focusPin, gpio.High); err != nil {
		return nil, fmt.Errorf("release focus: %w", err)
	}

	photo := &Photo{
		ID:      uuid.NewString(),
		Camera:  TypeNikonD90GPIO,
		TakenAt: time.Now(),
	}
	debug.Shot(photo.Camera, photo.ID)
	return photo, nil
}

// release puts both lines back to HIGH, ignoring errors.
func (n *NikonD90GPIO) release() {
	_ = n.gpio.WritePin(n.shutterPin, gpio.High)
	_ = n.gpio.WritePin(n.focusPin, gpio.High)
}
