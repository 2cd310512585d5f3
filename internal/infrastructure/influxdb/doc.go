// Package influxdb records camera telemetry in InfluxDB.
//
// Every camera refresh writes one camera_telemetry point per camera, tagged by
// camera name, so battery, temperature and arm state can be charted over time.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteCameraTelemetry(view, time.Now())
//
// Writes are non-blocking and batched per batch_size and flush_interval.
// Async write failures are delivered to the SetOnError callback.
package influxdb
