package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/satindergrewal/ltcd/internal/ltc"
)

const publishTimeout = 2 * time.Second

// Publisher is the part of mqtt.Client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTOptions configures an MQTTSink.
type MQTTOptions struct {
	Broker     string // host:port
	Topic      string // prefix; the instance ID is appended
	Encoding   string // json or msgpack
	InstanceID string
}

// Dial connects to the broker with auto-reconnect enabled.
func Dial(ctx context.Context, opts MQTTOptions, logger *slog.Logger) (mqtt.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "mqtt", "broker", opts.Broker)

	co := mqtt.NewClientOptions()
	co.AddBroker(fmt.Sprintf("tcp://%s", opts.Broker))
	co.SetClientID(opts.InstanceID)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.OnConnect = func(mqtt.Client) {
		log.Info("mqtt connected", "client_id", opts.InstanceID)
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost, reconnecting", "error", err)
	}

	client := mqtt.NewClient(co)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		client.Disconnect(0)
		return nil, errors.New("mqtt connection timeout")
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.Broker, err)
	}
	return client, nil
}

// MQTTSink publishes readouts to <topic>/<instance id>.
type MQTTSink struct {
	pub        Publisher
	topic      string
	instanceID string
	marshal    func(any) ([]byte, error)
	now        func() time.Time

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewMQTTSink returns a sink publishing through pub.
func NewMQTTSink(pub Publisher, opts MQTTOptions) (*MQTTSink, error) {
	s := &MQTTSink{
		pub:        pub,
		topic:      opts.Topic + "/" + opts.InstanceID,
		instanceID: opts.InstanceID,
		now:        time.Now,
	}
	switch opts.Encoding {
	case "", "json":
		s.marshal = json.Marshal
	case "msgpack":
		s.marshal = msgpack.Marshal
	default:
		return nil, fmt.Errorf("unknown mqtt encoding %q", opts.Encoding)
	}
	return s, nil
}

// Topic is the full publish topic.
func (s *MQTTSink) Topic() string { return s.topic }

func (s *MQTTSink) Deliver(ctx context.Context, n ltc.Notification) error {
	payload, err := s.marshal(NewPayload(s.instanceID, n, s.now()))
	if err != nil {
		s.failed.Add(1)
		return fmt.Errorf("marshal readout: %w", err)
	}

	token := s.pub.Publish(s.topic, 0, false, payload)
	select {
	case <-token.Done():
	case <-time.After(publishTimeout):
		s.failed.Add(1)
		return errors.New("publish timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		s.failed.Add(1)
		return fmt.Errorf("publish: %w", err)
	}
	s.published.Add(1)
	return nil
}

// Stats returns published and failed counts.
func (s *MQTTSink) Stats() (published, failed uint64) {
	return s.published.Load(), s.failed.Load()
}
