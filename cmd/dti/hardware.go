package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/infrastructure/config"
	"github.com/nerrad567/dti-core/internal/infrastructure/logging"
	"github.com/nerrad567/dti-core/internal/pipeline"
	"github.com/nerrad567/dti-core/internal/reactor"
)

// drivers holds the two controller drivers and how to release them.
type drivers struct {
	dome      hardware.Driver
	telescope hardware.Driver
	closers   []func() error

	// onLoop is set when status callbacks already run on the reactor
	// goroutine, where Post must not be used.
	onLoop bool
}

// openDrivers dials the dome and telescope controllers, or builds the
// in-process simulation when hardware.mode is "sim".
//
// Parameters:
//   - ctx: Context for the initial dials
//   - cfg: Application configuration
//   - loop: Reactor that schedules simulated motion
//   - log: Logger instance
//
// Returns:
//   - *drivers: Both drivers; Close releases them
//   - error: If either controller cannot be reached
func openDrivers(ctx context.Context, cfg *config.Config, loop *reactor.Loop, log *logging.Logger) (*drivers, error) {
	if cfg.Hardware.Mode == config.HardwareModeSim {
		d := simDrivers(cfg, loop)
		log.Warn("hardware simulation enabled, no controller will move", "motion_delay", cfg.Hardware.SimMotionDelay)
		return d, nil
	}

	d := &drivers{}
	dial := func(sub hardware.Subsystem, ep config.EndpointConfig) (*hardware.Client, error) {
		client, err := hardware.Connect(ctx, hardware.ClientConfig{
			Subsystem:         sub,
			Address:           ep.Address,
			ConnectTimeout:    ep.ConnectTimeout,
			PollInterval:      cfg.Hardware.PollInterval,
			ReconnectInterval: cfg.Scheduler.ReconnectInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to %s controller at %s: %w", sub, ep.Address, err)
		}
		client.SetLogger(log.With("subsystem", sub.String()))
		d.closers = append(d.closers, client.Close)
		log.Info("hardware controller connected", "subsystem", sub.String(), "address", ep.Address)
		return client, nil
	}

	dome, err := dial(hardware.SubsystemDome, cfg.Hardware.Dome)
	if err != nil {
		return nil, err
	}
	telescope, err := dial(hardware.SubsystemTelescope, cfg.Hardware.Telescope)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.dome, d.telescope = dome, telescope
	return d, nil
}

// simDrivers builds simulated controllers resting in their park positions.
func simDrivers(cfg *config.Config, loop *reactor.Loop) *drivers {
	dome := hardware.NewSim(hardware.SubsystemDome, hardware.Status{
		Flags:   hardware.ShutterClosed | hardware.DropoutClosed | hardware.DomeParked,
		Azimuth: cfg.Limits.DomeParkAzimuth,
	})
	telescope := hardware.NewSim(hardware.SubsystemTelescope, hardware.Status{
		Flags: hardware.TelParked | hardware.MirrorView | hardware.FilterCentered |
			hardware.ApertureCentered | hardware.InstShutterClosed,
		HourAngle: cfg.Limits.ParkHourAngle,
		Dec:       cfg.Limits.ParkDec,
	})

	// Sim commands are sent from controllers on the reactor goroutine, so
	// arming a reactor timer here is safe.
	after := func(d time.Duration, fn func()) { loop.AfterFunc(d, fn) }
	dome.EnableMotion(after, cfg.Hardware.SimMotionDelay)
	telescope.EnableMotion(after, cfg.Hardware.SimMotionDelay)

	return &drivers{dome: dome, telescope: telescope, onLoop: true}
}

// route delivers status changes from both drivers to the orchestrator on
// the reactor goroutine.
func (d *drivers) route(loop *reactor.Loop, orch *pipeline.Orchestrator) {
	for _, drv := range []hardware.Driver{d.dome, d.telescope} {
		sub := drv.Subsystem()
		drv.SetOnStatus(func(st hardware.Status) {
			update := func() { orch.HardwareUpdate(sub, st) }
			if d.onLoop {
				loop.Defer(update)
				return
			}
			loop.Post(update)
		})
	}
}

// Close releases every driver that holds a connection.
func (d *drivers) Close() {
	for _, c := range d.closers {
		c() //nolint:errcheck // hardware Close never fails
	}
}
