package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/camgate/internal/camera"
)

// commandTimeout bounds a camera command received over MQTT.
const commandTimeout = 30 * time.Second

// Conn is the part of Client the Bridge needs.
type Conn interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
}

// ArmFunc arms or disarms the named camera.
type ArmFunc func(ctx context.Context, camera string, armed bool) error

// CameraState is the retained payload on a camera state topic.
type CameraState struct {
	camera.View
	UpdatedAt time.Time `json:"updated_at"`
}

// Command is the payload accepted on a camera command topic.
type Command struct {
	Action string `json:"action"`
}

// Command actions.
const (
	ActionArm    = "arm"
	ActionDisarm = "disarm"
)

// Bridge mirrors camera state and motion events to MQTT and, when enabled,
// turns command messages into arm/disarm calls.
type Bridge struct {
	conn Conn
	qos  byte
	now  func() time.Time

	mu    sync.RWMutex
	names map[string]string // slug -> camera name
	arm   ArmFunc
}

// NewBridge returns a Bridge publishing through conn at the given QoS.
func NewBridge(conn Conn, qos byte) *Bridge {
	return &Bridge{
		conn:  conn,
		qos:   qos,
		now:   time.Now,
		names: make(map[string]string),
	}
}

// PublishCameraState publishes view as the camera's retained state.
func (b *Bridge) PublishCameraState(_ context.Context, view camera.View) error {
	payload, err := json.Marshal(CameraState{View: view, UpdatedAt: b.now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding camera state: %w", err)
	}

	b.mu.Lock()
	b.names[Slug(view.Name)] = view.Name
	b.mu.Unlock()

	return b.conn.Publish(Topics{}.CameraState(view.Name), payload, b.qos, true)
}

// PublishMotionEvent publishes ev on the camera's motion topic.
func (b *Bridge) PublishMotionEvent(_ context.Context, ev camera.MotionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding motion event: %w", err)
	}
	return b.conn.Publish(Topics{}.MotionEvent(ev.Camera), payload, b.qos, false)
}

// EnableCommands subscribes to camera command topics and routes them to arm.
func (b *Bridge) EnableCommands(arm ArmFunc) error {
	b.mu.Lock()
	b.arm = arm
	b.mu.Unlock()

	return b.conn.Subscribe(Topics{}.AllCameraCommands(), b.qos, b.HandleCommand)
}

// DisableCommands drops the command subscription.
func (b *Bridge) DisableCommands() error {
	b.mu.Lock()
	b.arm = nil
	b.mu.Unlock()

	return b.conn.Unsubscribe(Topics{}.AllCameraCommands())
}

// HandleCommand processes one command message. Only cameras previously
// published by this bridge can be addressed.
func (b *Bridge) HandleCommand(topic string, payload []byte) error {
	slug, ok := Topics{}.CommandSlug(topic)
	if !ok {
		return fmt.Errorf("%w: topic %q", ErrInvalidCommand, topic)
	}

	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	var armed bool
	switch cmd.Action {
	case ActionArm:
		armed = true
	case ActionDisarm:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, cmd.Action)
	}

	b.mu.RLock()
	name, known := b.names[slug]
	arm := b.arm
	b.mu.RUnlock()

	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownCamera, slug)
	}
	if arm == nil {
		return fmt.Errorf("%w: commands disabled", ErrInvalidCommand)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return arm(ctx, name, armed)
}
