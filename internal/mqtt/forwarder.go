package mqtt

import (
	"context"
	"time"

	"telekinesis/internal/eventbus"
	logx "telekinesis/pkg/logx"
)

// Forwarder mirrors every bus event to "<prefix>/events/<type>".
type Forwarder struct {
	pub  Publisher
	bus  eventbus.Bus
	opts Options

	log    logx.Logger
	errLog logx.Logger
}

func NewForwarder(pub Publisher, bus eventbus.Bus, o Options, log logx.Logger) *Forwarder {
	if log.IsZero() {
		log = logx.Nop()
	}
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	log = log.With(logx.String("comp", "mqtt"))
	return &Forwarder{
		pub:    pub,
		bus:    bus,
		opts:   o,
		log:    log,
		errLog: log.Every(10 * time.Second),
	}
}

// Run forwards until ctx is done, then announces offline. It never returns an
// error for failed publishes; those are logged (rate-limited).
func (f *Forwarder) Run(ctx context.Context) error {
	ch, unsub := f.bus.Subscribe(128)
	defer unsub()

	f.publish(StatusTopic(f.opts.Prefix), 1, true, FormatStatus(f.opts.Instance, StateOnline, time.Now()))
	f.log.Info("event forwarding started", logx.String("prefix", f.opts.Prefix))

	for {
		select {
		case <-ctx.Done():
			f.publish(StatusTopic(f.opts.Prefix), 1, true, FormatStatus(f.opts.Instance, StateOffline, time.Now()))
			f.log.Info("event forwarding stopped")
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			payload, err := FormatEvent(f.opts.Instance, e)
			if err != nil {
				f.errLog.Warn("event not encodable", logx.String("type", e.Type), logx.Err(err))
				continue
			}
			f.publish(EventTopic(f.opts.Prefix, e.Type), f.opts.QoS, false, payload)
		}
	}
}

func (f *Forwarder) publish(topic string, qos byte, retained bool, payload []byte) {
	if err := f.pub.Publish(topic, qos, retained, payload); err != nil {
		f.errLog.Warn("mqtt publish failed", logx.String("topic", topic), logx.Err(err))
	}
}
