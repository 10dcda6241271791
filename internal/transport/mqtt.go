// v1
// internal/transport/mqtt.go
package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/namma-traffic/opsdash/internal/model"
)

// MQTTSession is the broker-backed channel kind for deployments where the
// traffic server publishes envelopes to an MQTT topic instead of serving a
// WebSocket feed. It satisfies the same Session contract: intents publish
// fire-and-forget to the intent topic, and drop while disconnected.
type MQTTSession struct {
	log         *slog.Logger
	client      mqtt.Client
	cb          Callbacks
	intentTopic string

	mu        sync.Mutex
	connected bool
}

// MQTTConfig names the broker endpoints.
type MQTTConfig struct {
	Broker      string // e.g. tcp://broker:1883
	FeedTopic   string
	IntentTopic string
}

// DialMQTT connects and subscribes. A connect failure is a construction
// failure; afterwards paho's own reconnect policy keeps the channel alive
// and resubscribes via the on-connect handler.
func DialMQTT(cfg MQTTConfig, cb Callbacks, log *slog.Logger) (*MQTTSession, error) {
	s := &MQTTSession{log: log, cb: cb, intentTopic: cfg.IntentTopic}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("opsdash-" + uuid.NewString()[:8]).
		SetAutoReconnect(true)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(cfg.FeedTopic, 0, s.onMessage); token.Wait() && token.Error() != nil {
			log.Error("feed subscribe failed", "topic", cfg.FeedTopic, "err", token.Error())
			return
		}
		s.setConnected(true)
		log.Info("mqtt feed subscribed", "topic", cfg.FeedTopic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "err", err)
		s.setConnected(false)
	})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("cannot connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return s, nil
}

func (s *MQTTSession) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var env Envelope
	if err := json.Unmarshal(msg.Payload(), &env); err != nil {
		s.log.Warn("unreadable mqtt message", "topic", msg.Topic(), "err", err)
		return
	}
	if env.Event != EventTrafficUpdate {
		s.log.Info("unhandled mqtt event", "event", env.Event)
		return
	}
	var up model.Update
	if err := json.Unmarshal(env.Data, &up); err != nil {
		s.log.Warn("malformed traffic update", "err", err)
		return
	}
	if s.cb.OnSnapshot != nil {
		s.cb.OnSnapshot(up)
	}
}

func (s *MQTTSession) SendIntent(name string, payload map[string]any) {
	if !s.Connected() {
		s.log.Warn("intent dropped, channel down", "intent", name)
		if s.cb.OnIntentDropped != nil {
			s.cb.OnIntentDropped(name)
		}
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("intent payload marshal failed", "intent", name, "err", err)
		return
	}
	body, err := json.Marshal(Envelope{Event: name, Data: data})
	if err != nil {
		s.log.Error("intent envelope marshal failed", "intent", name, "err", err)
		return
	}
	token := s.client.Publish(s.intentTopic, 0, false, body)
	if s.cb.OnIntentSent != nil {
		s.cb.OnIntentSent(name)
	}
	go func() {
		if token.Wait() && token.Error() != nil {
			s.log.Warn("intent publish failed", "intent", name, "err", token.Error())
		}
	}()
}

func (s *MQTTSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *MQTTSession) Close() error {
	s.client.Disconnect(250)
	s.setConnected(false)
	return nil
}

func (s *MQTTSession) setConnected(up bool) {
	s.mu.Lock()
	changed := s.connected != up
	s.connected = up
	s.mu.Unlock()
	if changed && s.cb.OnLifecycle != nil {
		s.cb.OnLifecycle(up)
	}
}
