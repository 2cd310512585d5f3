// Package camera turns raw upstream device records into the canonical view
// served by the gateway.
//
// Upstream records are only partially populated: a field may be missing,
// empty, or carried under a different name in the free-form attribute map.
// Normalize resolves every field through an ordered list of named sources
// (BatterySources, TemperatureSources, MotionEnabledSources, SnoozeSources).
// The first source that yields a non-empty value wins; when none does, the
// field degrades to a documented default so that every field of View is
// always populated (Thumbnail may be null).
//
// # Key Types
//
//   - Record: raw upstream device data
//   - View: canonical device view, the JSON shape of GET /api/cameras
//   - Temperature: Fahrenheit integer or "N/A"
//   - Clip / MotionEvent: raw and canonical motion clip metadata
//
// Normalize is a pure function and safe for concurrent use.
package camera
