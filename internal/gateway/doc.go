// Package gateway runs camera operations against an authenticated session.
//
// Every operation goes through session.Cache.Do, so each one gets a fresh
// upstream transport and operations on one session never overlap. Results
// are normalized with package camera, traced to the activity log and fanned
// out to the optional state publishers (MQTT, WebSocket) and telemetry
// writer (InfluxDB).
package gateway
