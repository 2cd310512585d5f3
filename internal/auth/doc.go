// Package auth drives the upstream login flow for the gateway.
//
// Machine implements the authentication state machine on top of the session
// cache:
//
//	Login:  rate-limit guard ──▶ cached entry? ──▶ upstream password login
//	                                              ├─▶ authenticated (devices > 0)
//	                                              ├─▶ two-factor required
//	                                              └─▶ failed (not stored)
//	Verify: pending entry ──▶ PIN ──▶ post-verify setup ──▶ refresh
//	                                 ├─▶ authenticated (devices > 0)
//	                                 └─▶ failed
//
// A login that succeeds upstream but reports zero devices is treated as a
// failure. A wrong PIN leaves the entry pending so the operator can retry;
// every retry is sent upstream, nothing is retried silently.
//
// The package also issues the short-lived signed tickets used to open the
// live WebSocket stream (claims.go).
package auth
