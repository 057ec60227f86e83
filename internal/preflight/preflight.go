// Package preflight holds the checks run before a capture: configuration
// sanity, device permissions and host compatibility. Each failure wraps one
// of the sentinel errors so callers can classify it with errors.Is.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/cjeanneret/camguard/internal/config"
	"github.com/cjeanneret/camguard/internal/debug"
)

var (
	ErrPermission    = errors.New("camera permission denied")
	ErrInvalidConfig = errors.New("invalid camera configuration")
	ErrIncompatible  = errors.New("camera incompatible with this device")
)

// Check is a named precondition of a capture.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// Run executes checks in order and returns the first failure.
func Run(ctx context.Context, checks []Check) error {
	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			return err
		}
		debug.Verbose("Preflight: %s", c.Name)
		if err := c.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ConfigCheck re-validates cfg. It only catches a Config mutated or built
// in code; ConfigFileCheck is what the binary uses.
func ConfigCheck(cfg *config.Config) Check {
	return Check{
		Name: "config",
		Run: func(context.Context) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
			return nil
		},
	}
}

// ConfigFileCheck re-reads path and fails when the file no longer loads or
// its camera section differs from the one the running camera was built from.
func ConfigFileCheck(cfg *config.Config, path string) Check {
	return Check{
		Name: "config",
		Run: func(context.Context) error {
			onDisk, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
			}
			if onDisk.Camera != cfg.Camera {
				return fmt.Errorf("%w: %s: camera settings changed since startup, restart to apply them", ErrInvalidConfig, path)
			}
			return nil
		},
	}
}

// PermissionCheck verifies that the device node exists and can be opened
// read-write by this process.
func PermissionCheck(path string) Check {
	return Check{
		Name: "permissions",
		Run: func(context.Context) error {
			f, err := os.OpenFile(path, os.O_RDWR, 0)
			if err != nil {
				if os.IsNotExist(err) || os.IsPermission(err) {
					return fmt.Errorf("%w: %s: %v", ErrPermission, path, err)
				}
				return fmt.Errorf("open %s: %w", path, err)
			}
			return f.Close()
		},
	}
}

// CompatibilityCheck verifies the configured camera can run on goos/goarch.
// Real GPIO needs a Raspberry Pi (linux on arm or arm64).
func CompatibilityCheck(cfg *config.Config, goos, goarch string) Check {
	return Check{
		Name: "compatibility",
		Run: func(context.Context) error {
			switch cfg.Camera.Type {
			case config.CameraSimulated:
				return nil
			case config.CameraNikonD90GPIO:
				if cfg.Defaults.MockGPIO {
					return nil
				}
				if goos != "linux" || (goarch != "arm" && goarch != "arm64") {
					return fmt.Errorf("%w: %s needs GPIO on linux/arm or linux/arm64, host is %s/%s",
						ErrIncompatible, cfg.Camera.Type, goos, goarch)
				}
				return nil
			default:
				return fmt.Errorf("%w: unknown camera type %q", ErrIncompatible, cfg.Camera.Type)
			}
		},
	}
}

// FromConfig builds the checks enabled in cfg.Guard for the running host.
// path is the file cfg was loaded from; empty means cfg was built in code
// and is re-validated in memory instead.
func FromConfig(cfg *config.Config, path string) []Check {
	var checks []Check
	if cfg.Guard.CheckConfig {
		if path != "" {
			checks = append(checks, ConfigFileCheck(cfg, path))
		} else {
			checks = append(checks, ConfigCheck(cfg))
		}
	}
	if cfg.Guard.CheckCompatibility {
		checks = append(checks, CompatibilityCheck(cfg, runtime.GOOS, runtime.GOARCH))
	}
	if cfg.Guard.CheckPermissions {
		checks = append(checks, PermissionCheck(cfg.Guard.DevicePath))
	}
	return checks
}
