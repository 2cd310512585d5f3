package camera

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Default values used when no source resolves a field.
const (
	DefaultBattery = "Unknown"
	WiredBattery   = "Wired"

	// DefaultSource names the fallback in a Provenance.
	DefaultSource = "default"
)

// wiredTypes are device types that run from mains power.
var wiredTypes = map[string]bool{
	"mini":     true,
	"doorbell": true,
}

// Source is one named extraction strategy for a field.
// Extract reports false when the record carries no usable value.
type Source[T any] struct {
	Name    string
	Extract func(r *Record) (T, bool)
}

// BatterySources is the battery resolution order.
var BatterySources = []Source[string]{
	{Name: "battery", Extract: func(r *Record) (string, bool) {
		return nonEmpty(r.Battery)
	}},
	{Name: "battery_state", Extract: func(r *Record) (string, bool) {
		return nonEmpty(r.BatteryState)
	}},
	{Name: "attributes.battery_state", Extract: func(r *Record) (string, bool) {
		return attrString(r, "battery_state")
	}},
	{Name: "attributes.battery", Extract: func(r *Record) (string, bool) {
		return attrString(r, "battery")
	}},
	{Name: "battery_voltage", Extract: func(r *Record) (string, bool) {
		if r.BatteryVoltage == nil || *r.BatteryVoltage == 0 {
			return "", false
		}
		return formatFloat(*r.BatteryVoltage) + "V", true
	}},
	{Name: "wired_type", Extract: func(r *Record) (string, bool) {
		if wiredTypes[strings.ToLower(r.DeclaredType())] {
			return WiredBattery, true
		}
		return "", false
	}},
}

// TemperatureSources is the temperature resolution order. All sources yield
// whole degrees Fahrenheit.
var TemperatureSources = []Source[int]{
	{Name: "temperature", Extract: func(r *Record) (int, bool) {
		if r.Temperature == nil {
			return 0, false
		}
		return int(math.Round(*r.Temperature)), true
	}},
	{Name: "temperature_c", Extract: func(r *Record) (int, bool) {
		if r.TemperatureC == nil {
			return 0, false
		}
		return CelsiusToFahrenheit(*r.TemperatureC), true
	}},
	{Name: "attributes.temperature", Extract: func(r *Record) (int, bool) {
		f, ok := attrNumber(r, "temperature")
		if !ok {
			return 0, false
		}
		return int(math.Round(f)), true
	}},
	{Name: "attributes.temperature_c", Extract: func(r *Record) (int, bool) {
		c, ok := attrNumber(r, "temperature_c")
		if !ok {
			return 0, false
		}
		return CelsiusToFahrenheit(c), true
	}},
}

// MotionEnabledSources is the motion-detection-enabled resolution order.
// An unresolved value means enabled.
var MotionEnabledSources = []Source[bool]{
	{Name: "motion_enabled", Extract: func(r *Record) (bool, bool) {
		if r.MotionEnabled == nil {
			return false, false
		}
		return *r.MotionEnabled, true
	}},
	{Name: "attributes.motion_detection", Extract: func(r *Record) (bool, bool) {
		return attrBool(r, "motion_detection")
	}},
}

// SnoozeSources is the notification snooze resolution order. An unresolved
// value means not snoozed.
var SnoozeSources = []Source[bool]{
	{Name: "notifications_snoozed", Extract: func(r *Record) (bool, bool) {
		if r.NotificationsSnoozed == nil {
			return false, false
		}
		return *r.NotificationsSnoozed, true
	}},
	{Name: "attributes.notifications_snoozed", Extract: func(r *Record) (bool, bool) {
		return attrBool(r, "notifications_snoozed")
	}},
}

// Provenance names the source that resolved each field, or DefaultSource.
type Provenance struct {
	Battery       string
	Temperature   string
	MotionEnabled string
	Snoozed       string
}

// Normalize maps a raw record to its canonical view.
func Normalize(r Record) View {
	v, _ := NormalizeWithProvenance(r)
	return v
}

// NormalizeWithProvenance maps a raw record to its canonical view and reports
// which source resolved each field.
func NormalizeWithProvenance(r Record) (View, Provenance) {
	var p Provenance

	battery, src, ok := Resolve(&r, BatterySources)
	if !ok {
		battery = DefaultBattery
	}
	p.Battery = src

	var temp Temperature
	f, src, ok := Resolve(&r, TemperatureSources)
	if ok {
		temp = Fahrenheit(f)
	}
	p.Temperature = src

	motionEnabled, src, ok := Resolve(&r, MotionEnabledSources)
	if !ok {
		motionEnabled = true
	}
	p.MotionEnabled = src

	snoozed, src, _ := Resolve(&r, SnoozeSources)
	p.Snoozed = src

	return View{
		Name:                 r.Name,
		Armed:                r.Armed != nil && *r.Armed,
		Battery:              battery,
		Temperature:          temp,
		MotionDetected:       r.MotionDetected != nil && *r.MotionDetected,
		MotionEnabled:        motionEnabled,
		NotificationsEnabled: !snoozed,
		Thumbnail:            r.Thumbnail,
	}, p
}

// Resolve tries each source in order and returns the first value found along
// with the source's name. When nothing resolves it returns DefaultSource and
// false.
func Resolve[T any](r *Record, sources []Source[T]) (T, string, bool) {
	for _, s := range sources {
		if v, ok := s.Extract(r); ok {
			return v, s.Name, true
		}
	}
	var zero T
	return zero, DefaultSource, false
}

// CelsiusToFahrenheit converts and rounds to the nearest whole degree.
func CelsiusToFahrenheit(c float64) int {
	return int(math.Round(c*9/5 + 32))
}

func nonEmpty(s *string) (string, bool) {
	if s == nil || *s == "" {
		return "", false
	}
	return *s, true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// attrString reads a textual attribute. Numbers are rendered; empty strings
// and zero values are treated as absent.
func attrString(r *Record, key string) (string, bool) {
	v, ok := r.Attr(key)
	if !ok {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, x != ""
	case json.Number:
		return x.String(), x.String() != "" && x.String() != "0"
	default:
		f, ok := toFloat(v)
		if !ok || f == 0 {
			return "", false
		}
		return formatFloat(f), true
	}
}

func attrNumber(r *Record, key string) (float64, bool) {
	v, ok := r.Attr(key)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func attrBool(r *Record, key string) (bool, bool) {
	v, ok := r.Attr(key)
	if !ok {
		return false, false
	}
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, false
		}
		return b, true
	default:
		f, ok := toFloat(v)
		if !ok {
			return false, false
		}
		return f != 0, true
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
