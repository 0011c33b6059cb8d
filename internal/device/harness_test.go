package device

import (
	"testing"
	"time"

	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/protocol"
	"github.com/nerrad567/dti-core/internal/reactor"
)

var epoch = time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)

const motionDelay = 2 * time.Second

// harness runs a full device set on a manual clock against simulated drivers.
type harness struct {
	t     *testing.T
	clock *reactor.ManualClock
	loop  *reactor.Loop
	dome  *hardware.Sim
	tel   *hardware.Sim
	set   *Set
	done  []Completion
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Site = Site{Name: "test site", Latitude: 52, Longitude: 0}
	cfg.Filters = []string{"U", "B", "V", "R", "I"}
	cfg.Apertures = []string{"10", "15", "20", "30"}
	cfg.Timing.ShutterTimeout = 30 * time.Second
	cfg.Timing.DropoutTimeout = 20 * time.Second
	cfg.Timing.RotationTimeout = 60 * time.Second
	cfg.Timing.MirrorTimeout = 10 * time.Second
	cfg.Timing.WheelTimeout = 10 * time.Second
	cfg.Timing.InstShutterTimeout = 5 * time.Second
	cfg.Timing.FocusTimeout = 20 * time.Second
	cfg.Timing.TelescopeTimeout = 60 * time.Second
	cfg.Timing.EHTStabilize = 30 * time.Second
	cfg.Timing.InstPowerUp = 10 * time.Second
	cfg.Timing.FocusStallTimeout = 5 * time.Second
	return cfg
}

// closedDome is a dome at rest with everything shut and parked.
var closedDome = hardware.Status{
	Flags: hardware.ShutterClosed | hardware.DropoutClosed | hardware.DomeParked,
}

// restingTelescope is a parked telescope with the instrument idle.
var restingTelescope = hardware.Status{
	Flags: hardware.TelParked | hardware.MirrorView | hardware.FilterCentered |
		hardware.ApertureCentered | hardware.InstShutterClosed,
	Dec: 85,
}

func newHarness(t *testing.T, dome, tel hardware.Status, motion bool) *harness {
	t.Helper()

	clock := reactor.NewManualClock(epoch)
	h := &harness{
		t:     t,
		clock: clock,
		loop:  reactor.New(reactor.WithClock(clock)),
		dome:  hardware.NewSim(hardware.SubsystemDome, dome),
		tel:   hardware.NewSim(hardware.SubsystemTelescope, tel),
	}

	env := Env{
		Scheduler: h.loop,
		Sink:      SinkFunc(func(c Completion) { h.done = append(h.done, c) }),
	}
	set, err := NewSet(env, h.dome, h.tel, testConfig())
	if err != nil {
		t.Fatalf("NewSet() error = %v", err)
	}
	h.set = set

	h.dome.SetOnStatus(func(st hardware.Status) { h.set.Update(hardware.SubsystemDome, st) })
	h.tel.SetOnStatus(func(st hardware.Status) { h.set.Update(hardware.SubsystemTelescope, st) })
	if motion {
		after := func(d time.Duration, fn func()) { h.loop.AfterFunc(d, fn) }
		h.dome.EnableMotion(after, motionDelay)
		h.tel.EnableMotion(after, motionDelay)
	}

	h.loop.RunPending()
	return h
}

// advance moves the clock and runs everything that became due.
func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.loop.RunPending()
}

// settle runs a few motion steps.
func (h *harness) settle() {
	for range 4 {
		h.advance(motionDelay)
	}
}

// takeCompletions returns and clears the completions seen so far.
func (h *harness) takeCompletions() []Completion {
	out := h.done
	h.done = nil
	return out
}

func (h *harness) expectCompletion(dev ID, msg *protocol.Message, want protocol.Status) {
	h.t.Helper()
	got := h.takeCompletions()
	if len(got) != 1 {
		h.t.Fatalf("completions = %+v, want exactly one from %s", got, dev)
	}
	c := got[0]
	if c.Device != dev || c.Msg != msg || c.Status != want {
		h.t.Errorf("completion = {%s %p %s}, want {%s %p %s}", c.Device, c.Msg, c.Status, dev, msg, want)
	}
}

func (h *harness) expectNoCompletion() {
	h.t.Helper()
	if got := h.takeCompletions(); len(got) != 0 {
		h.t.Errorf("unexpected completions: %+v", got)
	}
}

func lastCode(t *testing.T, sim *hardware.Sim) hardware.Code {
	t.Helper()
	cmd, ok := sim.LastSent()
	if !ok {
		t.Fatal("no command sent")
	}
	return cmd.Code
}

// southTarget returns a target on the meridian at +30 once LST is 10h.
func southTarget(auto bool) protocol.Target {
	return protocol.Target{
		Auto: auto,
		ID:   7,
		Name: "HD 86728",
		RA:   protocol.RAFromHours(10),
		Dec:  protocol.DecFromDegrees(30),
	}
}

func setLST(c Controller, lst float64) {
	c.ProcessMessage(protocol.New(&protocol.Time{UTC: epoch, LST: lst}))
}
