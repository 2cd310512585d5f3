package camera

// Defaults for clip metadata the upstream leaves out.
const (
	UnknownCamera    = "Unknown"
	UnknownTimestamp = "unknown"
	MotionEventType  = "motion"
)

// Clip is raw motion clip metadata from the upstream media list.
type Clip struct {
	ID         any     `json:"id,omitempty"`
	DeviceName *string `json:"device_name,omitempty"`
	CreatedAt  *string `json:"created_at,omitempty"`
	Thumbnail  *string `json:"thumbnail,omitempty"`
	Media      *string `json:"media,omitempty"`
}

// MotionEvent is the canonical event shape served by GET /api/events.
type MotionEvent struct {
	Camera    string  `json:"camera"`
	Timestamp string  `json:"timestamp"`
	Type      string  `json:"type"`
	Thumbnail *string `json:"thumbnail"`
	VideoURL  *string `json:"video_url"`
	ID        any     `json:"id"`
}

// ToEvent converts clip metadata to a motion event.
func (c Clip) ToEvent() MotionEvent {
	e := MotionEvent{
		Camera:    UnknownCamera,
		Timestamp: UnknownTimestamp,
		Type:      MotionEventType,
		Thumbnail: c.Thumbnail,
		VideoURL:  c.Media,
		ID:        c.ID,
	}
	if c.DeviceName != nil {
		e.Camera = *c.DeviceName
	}
	if c.CreatedAt != nil {
		e.Timestamp = *c.CreatedAt
	}
	return e
}

// Events converts a list of clips, preserving order.
func Events(clips []Clip) []MotionEvent {
	out := make([]MotionEvent, 0, len(clips))
	for _, c := range clips {
		out = append(out, c.ToEvent())
	}
	return out
}

// Find returns the record with the given name.
func Find(records []Record, name string) (Record, error) {
	for _, r := range records {
		if r.Name == name {
			return r, nil
		}
	}
	return Record{}, ErrDeviceNotFound
}
