package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/camguard/internal/config"
	"github.com/cjeanneret/camguard/internal/debug"
	"github.com/cjeanneret/camguard/internal/hw/camera"
	"github.com/cjeanneret/camguard/internal/hw/gpio"
	"github.com/cjeanneret/camguard/internal/journal"
	"github.com/cjeanneret/camguard/internal/logic/capture"
	"github.com/cjeanneret/camguard/internal/preflight"
	"github.com/cjeanneret/camguard/internal/web"
)

const maxCount = 1000

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	timeoutMs := flag.Int("timeout_ms", 0, "override capture timeout in ms (0 = use config)")
	count := flag.Int("count", 1, "number of sequential captures (1-1000)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := validateCLIOverrides(*timeoutMs, *count); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, web.Overrides{TimeoutMs: *timeoutMs})

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Summary("camguard")
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Camera type", cfg.Camera.Type)
	debug.Value("Capture timeout", cfg.CaptureTimeout())

	debug.Step(1, "Building capture guard")
	guard, checks := newGuard(cfg, *cfgPath)

	// Opening real GPIO is deferred to the first capture, so a host that
	// cannot drive the pins is reported by the guard's preflight checks.
	debug.Step(2, "Initializing camera")
	cam, closeCam, err := newCameraFromConfig(cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	defer closeCam()

	debug.Value("Preflight checks", checkNames(checks))
	debug.PrintStruct("Guard config", cfg.Guard)
	j := journal.New(cfg.Web.HistorySize)

	captureFn := func(ctx context.Context, o web.Overrides) (*camera.Photo, error) {
		g := guard
		if o.TimeoutMs > 0 {
			g = guard.WithTimeout(time.Duration(o.TimeoutMs) * time.Millisecond)
		}
		return g.Capture(ctx, cam)
	}

	if port := webPort.port(); port > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		formDefaults := web.FormConfig{
			CameraType: cfg.Camera.Type,
			TimeoutMs:  cfg.Guard.TimeoutMs,
			Checks:     checkNames(checks),
		}
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, captureFn, j, formDefaults)
		if err != nil {
			log.Fatalf("web server: %v", err)
		}
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	// The guard has already logged the failure; only the exit code is left.
	if err := runCaptures(ctx, captureFn, j, *count, os.Stdout); err != nil {
		closeCam()
		os.Exit(1)
	}
}

// runCaptures takes count photos one after another, printing each photo ID.
// It stops at the first failure.
func runCaptures(ctx context.Context, fn web.CaptureFunc, j *journal.Journal, count int, out io.Writer) error {
	for i := 0; i < count; i++ {
		start := time.Now()
		photo, err := fn(ctx, web.Overrides{})
		o := j.Record(photo, err, time.Since(start))
		if err != nil {
			debug.Info("Capture %d/%d failed after %v", i+1, count, o.Duration)
			return err
		}
		debug.Info("Capture %d/%d: photo %s (%v)", i+1, count, photo.ID, o.Duration)
		fmt.Fprintln(out, photo.ID)
	}
	return nil
}

// validateCLIOverrides checks the numeric flags.
// A zero timeout means "use config default".
func validateCLIOverrides(timeoutMs, count int) error {
	if timeoutMs < 0 || timeoutMs > config.MaxTimeoutMs {
		return fmt.Errorf("timeout_ms must be between 0 and %d, got %d", config.MaxTimeoutMs, timeoutMs)
	}
	if count < 1 || count > maxCount {
		return fmt.Errorf("count must be between 1 and %d, got %d", maxCount, count)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero values are applied.
func applyOverrides(cfg *config.Config, overrides web.Overrides) {
	if overrides.TimeoutMs > 0 {
		cfg.Guard.TimeoutMs = overrides.TimeoutMs
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// newCameraFromConfig selects a camera implementation based on configuration.
// The returned func releases whatever hardware the camera holds.
func newCameraFromConfig(cfg *config.Config) (camera.Camera, func(), error) {
	switch cfg.Camera.Type {
	case config.CameraSimulated:
		return camera.NewSimulated(cfg.SimulatedLatency(), cfg.Camera.Simulated.FailMessage), func() {}, nil
	case config.CameraNikonD90GPIO:
		debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
		drv := gpio.NewDriver(cfg.Defaults.MockGPIO)
		debug.Value("Focus pin", cfg.Camera.FocusPin)
		debug.Value("Shutter pin", cfg.Camera.ShutterPin)
		cam := camera.NewNikonD90GPIO(drv, cfg.Camera.FocusPin, cfg.Camera.ShutterPin, cfg.FocusDelay(), cfg.ShutterDelay())
		closeFn := func() {
			if err := drv.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}
		return cam, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// newGuard builds the capture guard and the preflight checks enabled in cfg.
// cfgPath is re-read by the config check before every capture.
func newGuard(cfg *config.Config, cfgPath string) (*capture.Guard, []preflight.Check) {
	checks := preflight.FromConfig(cfg, cfgPath)
	return capture.NewGuard(capture.Options{
		Timeout: cfg.CaptureTimeout(),
		Checks:  checks,
	}), checks
}

func checkNames(checks []preflight.Check) []string {
	names := make([]string, 0, len(checks))
	for _, c := range checks {
		names = append(names, c.Name)
	}
	return names
}
