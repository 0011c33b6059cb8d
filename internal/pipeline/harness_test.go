package pipeline

import (
	"testing"
	"time"

	"github.com/nerrad567/dti-core/internal/device"
	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/protocol"
	"github.com/nerrad567/dti-core/internal/reactor"
)

var epoch = time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)

const motionDelay = 2 * time.Second

// reply is what the mock responder saw at send time.
type reply struct {
	msg    *protocol.Message
	kind   protocol.Kind
	status protocol.Status
	stage  uint8
}

type mockResponder struct {
	replies []reply
	err     error
}

func (m *mockResponder) Send(msg *protocol.Message) error {
	m.replies = append(m.replies, reply{msg: msg, kind: msg.Kind(), status: msg.Status, stage: msg.Stage})
	return m.err
}

func (m *mockResponder) take() []reply {
	out := m.replies
	m.replies = nil
	return out
}

type mockHooks struct {
	runs    []Run
	diags   []Diagnostic
	latches []bool
	updates [][]device.Snapshot
}

func (m *mockHooks) RunFinished(r Run)                  { m.runs = append(m.runs, r) }
func (m *mockHooks) Diagnostic(d Diagnostic)            { m.diags = append(m.diags, d) }
func (m *mockHooks) UnsafeChanged(u bool, _ string)     { m.latches = append(m.latches, u) }
func (m *mockHooks) DevicesUpdated(s []device.Snapshot) { m.updates = append(m.updates, s) }

func (m *mockHooks) lastRun(t *testing.T) Run {
	t.Helper()
	if len(m.runs) == 0 {
		t.Fatal("no run recorded")
	}
	return m.runs[len(m.runs)-1]
}

type harness struct {
	t     *testing.T
	clock *reactor.ManualClock
	loop  *reactor.Loop
	dome  *hardware.Sim
	tel   *hardware.Sim
	orch  *Orchestrator
	out   *mockResponder
	hooks *mockHooks
}

func testConfig() device.Config {
	cfg := device.DefaultConfig()
	cfg.Site = device.Site{Latitude: 52, Longitude: 0}
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

var closedDome = hardware.Status{
	Flags: hardware.ShutterClosed | hardware.DropoutClosed | hardware.DomeParked,
}

var restingTelescope = hardware.Status{
	Flags: hardware.TelParked | hardware.MirrorView | hardware.FilterCentered |
		hardware.ApertureCentered | hardware.InstShutterClosed,
	Dec: 85,
}

func newHarness(t *testing.T, dome, tel hardware.Status, motion bool, opts ...Option) *harness {
	t.Helper()

	clock := reactor.NewManualClock(epoch)
	h := &harness{
		t:     t,
		clock: clock,
		loop:  reactor.New(reactor.WithClock(clock)),
		dome:  hardware.NewSim(hardware.SubsystemDome, dome),
		tel:   hardware.NewSim(hardware.SubsystemTelescope, tel),
		out:   &mockResponder{},
		hooks: &mockHooks{},
	}

	opts = append([]Option{WithResponder(h.out), WithHooks(h.hooks)}, opts...)
	orch, err := New(h.loop, h.dome, h.tel, testConfig(), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.orch = orch

	h.dome.SetOnStatus(func(st hardware.Status) { h.orch.HardwareUpdate(hardware.SubsystemDome, st) })
	h.tel.SetOnStatus(func(st hardware.Status) { h.orch.HardwareUpdate(hardware.SubsystemTelescope, st) })
	if motion {
		after := func(d time.Duration, fn func()) { h.loop.AfterFunc(d, fn) }
		h.dome.EnableMotion(after, motionDelay)
		h.tel.EnableMotion(after, motionDelay)
	}

	h.loop.RunPending()
	return h
}

// run advances the clock a second at a time for d.
func (h *harness) run(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += time.Second {
		h.clock.Advance(time.Second)
		h.loop.RunPending()
	}
}

// submit hands msg to the orchestrator and drains the turn.
func (h *harness) submit(msg *protocol.Message) protocol.Status {
	st := h.orch.Submit(msg)
	h.loop.RunPending()
	return st
}

func (h *harness) setLST(lst float64) {
	h.submit(protocol.New(&protocol.Time{UTC: epoch, LST: lst}))
}

func (h *harness) expectReply(msg *protocol.Message, status protocol.Status) reply {
	h.t.Helper()
	got := h.out.take()
	if len(got) != 1 {
		h.t.Fatalf("replies = %+v, want exactly one", got)
	}
	if got[0].msg != msg || got[0].status != status {
		h.t.Errorf("reply = {%s %s}, want {%s %s}", got[0].kind, got[0].status, msg.Kind(), status)
	}
	return got[0]
}

func southTarget(auto bool) protocol.Target {
	return protocol.Target{
		Auto: auto,
		ID:   7,
		Name: "HD 86728",
		RA:   protocol.RAFromHours(10),
		Dec:  protocol.DecFromDegrees(30),
	}
}

func stageDevices(r Run) []device.ID {
	out := make([]device.ID, len(r.Stages))
	for i, s := range r.Stages {
		out[i] = s.Device
	}
	return out
}

func sameIDs(a, b []device.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
