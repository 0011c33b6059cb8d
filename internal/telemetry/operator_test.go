package telemetry

import (
	"errors"
	"testing"

	"github.com/nerrad567/dti-core/internal/pipeline"
)

type fakePoster struct {
	refuse bool
	posted int
}

func (p *fakePoster) Post(fn func()) bool {
	if p.refuse {
		return false
	}
	p.posted++
	fn()
	return true
}

type fakeOperator struct {
	cmds []pipeline.OperatorCommand
	err  error
}

func (o *fakeOperator) Operate(cmd pipeline.OperatorCommand) error {
	o.cmds = append(o.cmds, cmd)
	return o.err
}

func TestDecodeOperator(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    pipeline.OperatorCommand
		wantErr error
	}{
		{
			name:  "clear without body",
			topic: "dti/operator/clear",
			want:  pipeline.OperatorCommand{Action: pipeline.ActionClear},
		},
		{
			name:    "slew with direction",
			topic:   "dti/operator/slew",
			payload: `{"direction":"east"}`,
			want:    pipeline.OperatorCommand{Action: pipeline.ActionSlew, Direction: "east"},
		},
		{
			name:    "topic wins over body action",
			topic:   "dti/operator/slew_stop",
			payload: `{"action":"clear"}`,
			want:    pipeline.OperatorCommand{Action: pipeline.ActionSlewStop},
		},
		{
			name:    "whitespace body",
			topic:   "dti/operator/estop_ack",
			payload: "  \n",
			want:    pipeline.OperatorCommand{Action: pipeline.ActionEStopAck},
		},
		{
			name:    "not an operator topic",
			topic:   "dti/alerts",
			wantErr: ErrUnknownTopic,
		},
		{
			name:    "bad json",
			topic:   "dti/operator/slew",
			payload: `{direction:east}`,
			wantErr: ErrBadPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeOperator(tt.topic, []byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("DecodeOperator() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeOperator() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeOperator() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOperatorHandler(t *testing.T) {
	t.Run("posts the action onto the reactor", func(t *testing.T) {
		loop, op := &fakePoster{}, &fakeOperator{}
		handler := OperatorHandler(loop, op, nil)

		if err := handler("dti/operator/autotrack_off", nil); err != nil {
			t.Fatalf("handler() error = %v", err)
		}
		if loop.posted != 1 || len(op.cmds) != 1 || op.cmds[0].Action != pipeline.ActionAutoTrackOff {
			t.Errorf("posted=%d cmds=%+v", loop.posted, op.cmds)
		}
	})

	t.Run("refused action is logged", func(t *testing.T) {
		loop := &fakePoster{}
		op := &fakeOperator{err: pipeline.ErrClosureRunning}
		logger := &mockLogger{}

		if err := OperatorHandler(loop, op, logger)("dti/operator/tracking_on", nil); err != nil {
			t.Fatalf("handler() error = %v", err)
		}
		if len(logger.warns) != 1 {
			t.Errorf("logged %d warnings, want 1", len(logger.warns))
		}
	})

	t.Run("stopped reactor", func(t *testing.T) {
		op := &fakeOperator{}
		err := OperatorHandler(&fakePoster{refuse: true}, op, nil)("dti/operator/clear", nil)
		if !errors.Is(err, ErrReactorClosed) {
			t.Errorf("handler() error = %v, want ErrReactorClosed", err)
		}
		if len(op.cmds) != 0 {
			t.Error("action ran although the post was refused")
		}
	})

	t.Run("bad topic never reaches the reactor", func(t *testing.T) {
		loop := &fakePoster{}
		if err := OperatorHandler(loop, &fakeOperator{}, nil)("dti/operator/a/b", nil); !errors.Is(err, ErrUnknownTopic) {
			t.Errorf("handler() error = %v, want ErrUnknownTopic", err)
		}
		if loop.posted != 0 {
			t.Error("bad topic was posted")
		}
	})
}
