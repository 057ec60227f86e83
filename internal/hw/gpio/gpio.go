package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/camguard/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// ErrPinUnavailable is returned by the mock driver for pins marked as failing.
var ErrPinUnavailable = errors.New("pin unavailable")

// Driver is the pin-level interface the camera triggers are written against.
// The real implementation drives a Raspberry Pi; MockDriver runs anywhere.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns an RPiDriver (for Raspberry Pi); it opens the
// hardware on first use, so NewDriver itself cannot fail.
func NewDriver(mock bool) Driver {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver()
	}
	return NewRPiRealDriver()
}

// MockDriver keeps pin state in memory. Pins listed in Fail reject every
// operation, which is how a camera that cannot start is simulated.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
	modes  map[int]PinMode
	fail   map[int]bool
	closed bool
}

// NewMockDriver returns a mock driver; failPins reject setup and writes.
func NewMockDriver(failPins ...int) *MockDriver {
	m := &MockDriver{
		levels: make(map[int]Level),
		modes:  make(map[int]PinMode),
		fail:   make(map[int]bool),
	}
	for _, p := range failPins {
		m.fail[p] = true
	}
	return m
}

func (m *MockDriver) check(pin int) error {
	if m.closed {
		return errors.New("gpio driver closed")
	}
	if m.fail[pin] {
		return fmt.Errorf("pin %d: %w", pin, ErrPinUnavailable)
	}
	return nil
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(pin); err != nil {
		return err
	}
	m.modes[pin] = mode
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(pin); err != nil {
		return err
	}
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(pin); err != nil {
		return Low, err
	}
	return m.levels[pin], nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
