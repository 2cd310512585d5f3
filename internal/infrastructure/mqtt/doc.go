// Package mqtt connects the camera gateway to an MQTT broker.
//
// The gateway publishes:
//   - camgate/state/camera/{slug}   retained normalized camera state
//   - camgate/event/motion/{slug}   motion events as they are fetched
//   - camgate/system/status         retained online/offline status (with LWT)
//
// and, when mqtt.commands is enabled, accepts
//
//	camgate/command/camera/{slug}   {"action":"arm"} or {"action":"disarm"}
//
// Client wraps paho.mqtt.golang with auto-reconnect and subscription
// restoration. Bridge sits on top of a Client and speaks the topic scheme.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if errors.Is(err, mqtt.ErrDisabled) {
//	    // MQTT off
//	}
//	defer client.Close()
//
//	bridge := mqtt.NewBridge(client, byte(cfg.MQTT.QoS))
//	bridge.PublishCameraState(ctx, view)
package mqtt
