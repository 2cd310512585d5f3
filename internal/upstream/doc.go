// Package upstream is the thin adapter between the gateway and the
// third-party camera service.
//
// Client is the boundary the rest of the gateway programs against. HTTPClient
// implements it over the service's JSON/REST API: password login, two-factor
// PIN verification, the homescreen device listing, camera commands and the
// media list.
//
// A Client is stateful (account identifiers, auth token, last device list)
// but does not own a long-lived transport. Callers attach a fresh
// *http.Client with Rebind before every operation and release it afterwards;
// see session.Cache.Do.
//
// Failures are classified into the sentinels in errors.go so callers can map
// them with errors.Is without inspecting status codes.
package upstream
