package camera

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is a raw device record as reported by the upstream service.
//
// Primary fields are pointers so that "absent" can be told apart from a zero
// value. Attributes holds the upstream's free-form attribute map.
type Record struct {
	ID        string `json:"id"`
	NetworkID string `json:"network_id"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`

	Armed          *bool `json:"armed,omitempty"`
	MotionDetected *bool `json:"motion_detected,omitempty"`

	Battery        *string  `json:"battery,omitempty"`
	BatteryState   *string  `json:"battery_state,omitempty"`
	BatteryVoltage *float64 `json:"battery_voltage,omitempty"`

	// Temperature is in Fahrenheit, TemperatureC in Celsius.
	Temperature  *float64 `json:"temperature,omitempty"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`

	MotionEnabled        *bool   `json:"motion_enabled,omitempty"`
	NotificationsSnoozed *bool   `json:"notifications_snoozed,omitempty"`
	Thumbnail            *string `json:"thumbnail,omitempty"`

	Attributes map[string]any `json:"attributes,omitempty"`
}

// Attr returns an attribute map value, treating nil maps and nil values as absent.
func (r *Record) Attr(key string) (any, bool) {
	if r.Attributes == nil {
		return nil, false
	}
	v, ok := r.Attributes[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// DeclaredType returns the record's device type, falling back to the
// attribute map.
func (r *Record) DeclaredType() string {
	if r.Type != "" {
		return r.Type
	}
	if v, ok := r.Attr("type"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// View is the canonical, fully-populated device view.
type View struct {
	Name                 string      `json:"name"`
	Armed                bool        `json:"armed"`
	Battery              string      `json:"battery"`
	Temperature          Temperature `json:"temperature"`
	MotionDetected       bool        `json:"motion_detected"`
	MotionEnabled        bool        `json:"motion_enabled"`
	NotificationsEnabled bool        `json:"notifications_enabled"`
	Thumbnail            *string     `json:"thumbnail"`
}

// notAvailable is the rendering of an unknown temperature.
const notAvailable = "N/A"

// Temperature is a Fahrenheit reading that may be unknown.
// It encodes as a JSON integer, or the string "N/A" when unknown.
type Temperature struct {
	Fahrenheit int
	Known      bool
}

// Fahrenheit returns a known temperature.
func Fahrenheit(f int) Temperature {
	return Temperature{Fahrenheit: f, Known: true}
}

// String renders the temperature the way it appears in log lines.
func (t Temperature) String() string {
	if !t.Known {
		return notAvailable
	}
	return strconv.Itoa(t.Fahrenheit)
}

// MarshalJSON implements json.Marshaler.
func (t Temperature) MarshalJSON() ([]byte, error) {
	if !t.Known {
		return json.Marshal(notAvailable)
	}
	return json.Marshal(t.Fahrenheit)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Temperature) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*t = Fahrenheit(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("camera: temperature must be an integer or %q: %w", notAvailable, err)
	}
	if s != notAvailable {
		return fmt.Errorf("camera: temperature must be an integer or %q, got %q", notAvailable, s)
	}
	*t = Temperature{}
	return nil
}
