// Package eventlog provides the bounded, human-readable activity log shown to
// operators of the camera gateway.
//
// Every significant gateway action (login attempts, two-factor prompts, camera
// commands, upstream failures) appends one short line. The log keeps the most
// recent lines only; once capacity is reached the oldest line is evicted.
//
// Lines are rendered as "[HH:MM:SS] message" when read back, matching what the
// dashboard displays.
//
// Thread Safety:
//   - Append and Recent are safe for concurrent use.
//   - Subscribers are notified after the internal lock is released, so a slow
//     subscriber never blocks writers holding the lock.
//
// Usage:
//
//	log := eventlog.New(50)
//	log.Appendf("Armed camera %s", name)
//	for _, e := range log.Recent() {
//	    fmt.Println(e)
//	}
package eventlog
