package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	logx "telekinesis/pkg/logx"
)

// PahoPublisher publishes through an eclipse/paho client.
//
// The broker holds a retained "offline" will on the status topic; every
// (re)connect announces "online" again.
type PahoPublisher struct {
	client  paho.Client
	opts    Options
	log     logx.Logger
	timeout time.Duration
}

// Dial connects to the broker. It fails when the first connection attempt
// does not complete within the timeout; later drops are retried by paho.
func Dial(o Options, log logx.Logger) (*PahoPublisher, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "mqtt"), logx.String("broker", o.Broker))
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &PahoPublisher{opts: o, log: log, timeout: timeout}

	status := StatusTopic(o.Prefix)
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetConnectTimeout(timeout).
		SetWill(status, string(FormatStatus(o.Instance, StateOffline, time.Time{})), 1, true).
		SetOnConnectHandler(func(c paho.Client) {
			log.Info("mqtt connected")
			c.Publish(status, 1, true, FormatStatus(o.Instance, StateOnline, time.Now()))
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", logx.Err(err))
		})
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(2 * timeout) {
		p.client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: timeout", o.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", o.Broker, err)
	}
	return p, nil
}

func (p *PahoPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports the client's current connection state.
func (p *PahoPublisher) IsConnected() bool { return p.client.IsConnectionOpen() }

// Close publishes the offline state and disconnects.
func (p *PahoPublisher) Close() error {
	if p.client.IsConnectionOpen() {
		if err := p.Publish(StatusTopic(p.opts.Prefix), 1, true, FormatStatus(p.opts.Instance, StateOffline, time.Now())); err != nil {
			p.log.Warn("offline status not published", logx.Err(err))
		}
	}
	p.client.Disconnect(1000)
	return nil
}
