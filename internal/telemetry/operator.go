package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/dti-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/dti-core/internal/pipeline"
)

// Operator performs operator actions. Implemented by *pipeline.Orchestrator.
type Operator interface {
	Operate(cmd pipeline.OperatorCommand) error
}

// Poster runs a function on the reactor goroutine. Implemented by *reactor.Loop.
type Poster interface {
	Post(fn func()) bool
}

// DecodeOperator turns an operator topic and its optional JSON body into a
// command. The action comes from the topic; the body may carry a direction.
//
// Example: dti/operator/slew {"direction":"east"}
func DecodeOperator(topic string, payload []byte) (pipeline.OperatorCommand, error) {
	action, ok := mqtt.ParseOperatorTopic(topic)
	if !ok {
		return pipeline.OperatorCommand{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	var cmd pipeline.OperatorCommand
	if body := bytes.TrimSpace(payload); len(body) > 0 {
		if err := json.Unmarshal(body, &cmd); err != nil {
			return pipeline.OperatorCommand{}, fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
	}
	cmd.Action = pipeline.Action(action)
	return cmd, nil
}

// OperatorHandler returns the MQTT handler for dti/operator/+.
//
// The action runs on the reactor; its outcome is logged there because the
// MQTT goroutine has already returned by then.
//
// Parameters:
//   - loop: The reactor the orchestrator runs on
//   - op: The orchestrator
//   - logger: Where refused actions are reported (may be nil)
//
// Returns:
//   - mqtt.MessageHandler: Handler to pass to Client.Subscribe
func OperatorHandler(loop Poster, op Operator, logger Logger) mqtt.MessageHandler {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(topic string, payload []byte) error {
		cmd, err := DecodeOperator(topic, payload)
		if err != nil {
			return err
		}

		if !loop.Post(func() {
			if err := op.Operate(cmd); err != nil {
				logger.Warn("operator action refused", "action", string(cmd.Action), "error", err)
			}
		}) {
			return ErrReactorClosed
		}
		return nil
	}
}
