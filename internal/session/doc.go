// Package session holds the authenticated upstream handles, one per
// credential pair.
//
// A Cache maps a Key (derived from principal and secret) to an Entry. Entries
// are created single-flight: concurrent first requests for the same key share
// one upstream login instead of racing. Entries that end in the Failed state
// are never stored.
//
// Every upstream operation on an entry goes through Cache.Do, which
// serialises operations on that entry and attaches a freshly built transport
// for the duration of the call. Transports are never reused across
// operations.
//
// # States
//
//	Anonymous ──▶ LoggingIn ──▶ Authenticated
//	                  │    └──▶ PendingTwoFactor ──▶ Authenticated
//	                  │                    └──────▶ Failed
//	                  └──▶ Failed
//
// Logout removes the entry and closes its handle (Authenticated ──▶ Anonymous).
package session
