// Package mqtt mirrors bus events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"telekinesis/internal/config"
	"telekinesis/internal/eventbus"
)

const (
	DefaultPrefix  = "telekinesis"
	DefaultTimeout = 5 * time.Second

	StateOnline  = "online"
	StateOffline = "offline"
)

// Publisher publishes raw payloads to a broker.
type Publisher interface {
	// Publish returns an error when the broker does not acknowledge in time.
	// Callers log and continue.
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Close() error
}

// Options configures the broker connection and topic layout.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
	QoS      byte
	Timeout  time.Duration
	// Instance identifies this process in every payload.
	Instance string
}

// OptionsFromConfig converts the mqtt config section. The caller supplies the
// process instance id.
func OptionsFromConfig(c *config.MQTTConfig, instance string) (Options, error) {
	if c == nil || !c.Enabled {
		return Options{}, errors.New("mqtt disabled")
	}
	timeout, err := config.ParseDurationOrDefault("mqtt.timeout", c.Timeout, DefaultTimeout)
	if err != nil {
		return Options{}, err
	}
	if c.QoS < 0 || c.QoS > 2 {
		return Options{}, fmt.Errorf("mqtt.qos must be 0..2 (got %d)", c.QoS)
	}
	o := Options{
		Broker:   strings.TrimSpace(c.Broker),
		ClientID: strings.TrimSpace(c.ClientID),
		Username: c.Username,
		Password: c.Password,
		Prefix:   strings.Trim(strings.TrimSpace(c.TopicPrefix), "/"),
		QoS:      byte(c.QoS),
		Timeout:  timeout,
		Instance: instance,
	}
	if o.Broker == "" {
		return Options{}, errors.New("mqtt.broker required")
	}
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.ClientID == "" {
		o.ClientID = "tkd-" + shortID(instance)
	}
	return o, nil
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "local"
	}
	return id
}

// StatusTopic carries the retained online/offline state.
func StatusTopic(prefix string) string { return prefix + "/status" }

// EventTopic is where events of one type are mirrored, e.g.
// "telekinesis/events/task.completed".
func EventTopic(prefix, typ string) string { return prefix + "/events/" + typ }

// EventPayload is the JSON body of a mirrored event.
type EventPayload struct {
	Instance string `json:"instance"`
	Seq      uint64 `json:"seq,omitempty"`
	Type     string `json:"type"`
	Time     string `json:"time"`
	Data     any    `json:"data,omitempty"`
}

// StatusPayload is the JSON body published on the status topic.
type StatusPayload struct {
	Instance string `json:"instance"`
	State    string `json:"state"`
	Time     string `json:"time,omitempty"`
}

// FormatEvent renders e for publishing.
func FormatEvent(instance string, e eventbus.Event) ([]byte, error) {
	return json.Marshal(EventPayload{
		Instance: instance,
		Seq:      e.Seq,
		Type:     e.Type,
		Time:     e.Time.UTC().Format(time.RFC3339Nano),
		Data:     e.Data,
	})
}

// FormatStatus renders a status payload. A zero t omits the time, which keeps
// the last-will message static.
func FormatStatus(instance, state string, t time.Time) []byte {
	p := StatusPayload{Instance: instance, State: state}
	if !t.IsZero() {
		p.Time = t.UTC().Format(time.RFC3339)
	}
	b, _ := json.Marshal(p)
	return b
}
