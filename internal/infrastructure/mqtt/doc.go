// Package mqtt provides MQTT client connectivity for the DTI.
//
// MQTT is the DTI's outward-facing status bus. The scheduler link carries
// observation traffic; MQTT carries what people and dashboards watch:
//
//   - dti/device/{id}/state   retained snapshot of each device
//   - dti/pipeline/{kind}     one message per finished pipeline run
//   - dti/alerts              warning and critical diagnostics
//   - dti/system/unsafe       retained unsafe latch
//   - dti/system/status       online/offline, also the Last Will
//
// Operator actions arrive on dti/operator/{action} with an optional JSON
// body, e.g. dti/operator/slew {"direction":"north"}.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllOperatorActions(), 1,
//	    func(topic string, payload []byte) error {
//	        action, _ := mqtt.ParseOperatorTopic(topic)
//	        ...
//	    })
//
// # Security Considerations
//
//   - TLS should be enabled outside the observatory LAN (cfg.Broker.TLS=true)
//   - The operator topic moves hardware; restrict it with broker ACLs
package mqtt
