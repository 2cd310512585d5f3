// Package ratelimit implements the login attempt limiter.
//
// The limiter keeps a sliding window of recent attempt timestamps and a
// lockout deadline. Once the number of attempts inside the window reaches the
// configured maximum, further attempts are refused until the lockout expires.
// Refused attempts are not counted, so hammering a locked gateway never
// extends the lockout.
//
// The limiter is process-wide: one gateway fronts one camera account.
package ratelimit
