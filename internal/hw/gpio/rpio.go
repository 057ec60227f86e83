package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/camguard/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// Swapped in tests; go-rpio cannot map registers off a Pi.
var (
	rpioOpen  = rpio.Open
	rpioClose = rpio.Close
)

// RPiDriver drives Raspberry Pi pins through go-rpio. The register map is
// opened on first pin access, so building one never touches hardware and an
// open failure is reported by the operation that needed the pins.
type RPiDriver struct {
	mu     sync.Mutex
	opened bool
	pins   map[int]rpio.Pin
}

// NewRPiRealDriver returns a driver that maps the GPIO registers on first use.
// That requires /dev/gpiomem access (gpio group) or root.
func NewRPiRealDriver() *RPiDriver {
	debug.Info("Using real GPIO driver (go-rpio, opened on first use)")
	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
	}
}

// open maps the registers once. A failed open is retried on the next call.
func (r *RPiDriver) open() error {
	if r.opened {
		return nil
	}
	if err := rpioOpen(); err != nil {
		return fmt.Errorf("open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	debug.Verbose("GPIO memory mapped successfully")
	r.opened = true
	return nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setup(pin, mode)
}

func (r *RPiDriver) setup(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	if mode != Input && mode != Output {
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	if err := r.open(); err != nil {
		return err
	}
	p := rpio.Pin(pin)
	if mode == Input {
		p.Input()
	} else {
		p.Output()
	}
	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[pin]
	if !ok {
		if err := r.setup(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[pin]
	if !ok {
		if err := r.setup(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}
	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

// Close returns every pin it touched to input (safe state) and unmaps GPIO.
// A driver that never opened has nothing to release.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.opened {
		return nil
	}
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}
	r.opened = false
	r.pins = make(map[int]rpio.Pin)
	return rpioClose()
}
