package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/camgate/internal/camera"
)

// MeasurementCameraTelemetry is the measurement written for each camera refresh.
const MeasurementCameraTelemetry = "camera_telemetry"

// TelemetryPoint builds the point recorded for one normalized camera.
//
// Tags: camera. Fields: armed, motion_detected, motion_enabled,
// notifications_enabled, battery and, when known, temperature_f.
func TelemetryPoint(view camera.View, at time.Time) *write.Point {
	fields := map[string]interface{}{
		"armed":                 view.Armed,
		"motion_detected":       view.MotionDetected,
		"motion_enabled":        view.MotionEnabled,
		"notifications_enabled": view.NotificationsEnabled,
		"battery":               view.Battery,
	}
	if view.Temperature.Known {
		fields["temperature_f"] = int64(view.Temperature.Fahrenheit)
	}

	return write.NewPoint(
		MeasurementCameraTelemetry,
		map[string]string{"camera": view.Name},
		fields,
		at,
	)
}

// WriteCameraTelemetry queues one camera's state. Non-blocking; dropped when
// the client is not connected.
func (c *Client) WriteCameraTelemetry(view camera.View, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(TelemetryPoint(view, at))
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
