package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes. Everything the DTI publishes lives under "dti/".
const (
	// TopicPrefix is the root of the DTI topic tree.
	TopicPrefix = "dti"

	// TopicPrefixDevice is the base for per-device state.
	TopicPrefixDevice = "dti/device"

	// TopicPrefixPipeline is the base for finished pipeline runs.
	TopicPrefixPipeline = "dti/pipeline"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "dti/system"

	// TopicPrefixOperator is the base for operator actions (inbound).
	TopicPrefixOperator = "dti/operator"
)

// Topics provides builders for DTI MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("dome_shutter")
//	// Returns: "dti/device/dome_shutter/state"
type Topics struct{}

// DeviceState returns the retained state topic of one device.
//
// Example: dti/device/dome_shutter/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixDevice, deviceID)
}

// PipelineRun returns the topic a finished run of the given kind is published on.
//
// Example: dti/pipeline/target_set
func (Topics) PipelineRun(kind string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixPipeline, kind)
}

// Alerts returns the topic for diagnostics worth an operator's attention.
func (Topics) Alerts() string {
	return TopicPrefix + "/alerts"
}

// SystemStatus returns the online/offline status topic, also used as the LWT.
//
// Example: dti/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// Unsafe returns the retained unsafe latch topic.
func (Topics) Unsafe() string {
	return TopicPrefixSystem + "/unsafe"
}

// OperatorAction returns the topic an operator publishes one action on.
//
// Example: dti/operator/clear
func (Topics) OperatorAction(action string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixOperator, action)
}

// AllOperatorActions returns a pattern matching every operator action.
//
// Pattern: dti/operator/+
func (Topics) AllOperatorActions() string {
	return TopicPrefixOperator + "/+"
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: dti/device/+/state
func (Topics) AllDeviceStates() string {
	return TopicPrefixDevice + "/+/state"
}

// ParseOperatorTopic extracts the action name from an operator topic.
//
// Returns:
//   - string: The action, e.g. "clear"
//   - bool: false if the topic is not a single-level operator topic
func ParseOperatorTopic(topic string) (string, bool) {
	action, ok := strings.CutPrefix(topic, TopicPrefixOperator+"/")
	if !ok || action == "" || strings.Contains(action, "/") {
		return "", false
	}
	return action, true
}
