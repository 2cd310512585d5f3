package mqtt

import (
	"strings"
)

// Topic prefixes for the gateway's MQTT hierarchy.
const (
	TopicPrefix        = "camgate"
	TopicPrefixState   = TopicPrefix + "/state/camera"
	TopicPrefixEvent   = TopicPrefix + "/event/motion"
	TopicPrefixCommand = TopicPrefix + "/command/camera"
	TopicPrefixSystem  = TopicPrefix + "/system"
)

// Topics provides builders for gateway topics. Camera names are converted to
// a single topic level with Slug.
//
//	mqtt.Topics{}.CameraState("Front Door") // "camgate/state/camera/front-door"
type Topics struct{}

// CameraState is the retained state topic for a camera.
func (Topics) CameraState(name string) string {
	return TopicPrefixState + "/" + Slug(name)
}

// MotionEvent is the topic motion events for a camera are published on.
func (Topics) MotionEvent(name string) string {
	return TopicPrefixEvent + "/" + Slug(name)
}

// CameraCommand is the command topic for a camera.
func (Topics) CameraCommand(name string) string {
	return TopicPrefixCommand + "/" + Slug(name)
}

// AllCameraCommands matches every camera command topic.
func (Topics) AllCameraCommands() string {
	return TopicPrefixCommand + "/+"
}

// SystemStatus is the retained gateway online/offline topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// CommandSlug extracts the camera slug from a command topic.
func (Topics) CommandSlug(topic string) (string, bool) {
	slug, ok := strings.CutPrefix(topic, TopicPrefixCommand+"/")
	if !ok || slug == "" || strings.Contains(slug, "/") {
		return "", false
	}
	return slug, true
}

// Slug lowercases name and maps anything outside [a-z0-9_-] to '-', so the
// result is always exactly one topic level without wildcards.
func Slug(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "unnamed"
	}
	return slug
}
