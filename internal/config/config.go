// v1
// internal/config/config.go
package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	BindAddr        string        // e.g. ":8090"
	FeedURL         string        // e.g. "ws://controller:5000/feed"; empty runs simulated
	MQTTBroker      string        // e.g. "tcp://mosquitto:1883"; alternative feed channel
	MQTTFeedTopic   string        // inbound snapshot topic
	MQTTIntentTopic string        // outbound intent topic
	KafkaBrokers    []string      // e.g. "kafka:9092"; empty disables the event ledger
	LedgerTopic     string        // e.g. "opsdash.events"
	PointsFile      string        // optional JSON override of the built-in junctions
	LogFile         string        // optional logfile alongside stdout
	TickInterval    time.Duration // simulator cadence, e.g. 2s
	AlertTTL        time.Duration // auto-dismiss window, e.g. 10s
}

func FromEnv() Config {
	bind := os.Getenv("OPSDASH_BIND_ADDR")
	if bind == "" {
		bind = ":8090"
	}
	tick := 2 * time.Second
	if s := os.Getenv("OPSDASH_TICK_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			tick = d
		}
	}
	ttl := 10 * time.Second
	if s := os.Getenv("OPSDASH_ALERT_TTL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			ttl = d
		}
	}
	return Config{
		BindAddr:        bind,
		FeedURL:         os.Getenv("OPSDASH_FEED_URL"),
		MQTTBroker:      os.Getenv("OPSDASH_MQTT_BROKER"),
		MQTTFeedTopic:   envOr("OPSDASH_MQTT_FEED_TOPIC", "traffic/updates"),
		MQTTIntentTopic: envOr("OPSDASH_MQTT_INTENT_TOPIC", "traffic/intents"),
		KafkaBrokers:    splitCSV(os.Getenv("OPSDASH_KAFKA_BROKERS")),
		LedgerTopic:     envOr("OPSDASH_LEDGER_TOPIC", "opsdash.events"),
		PointsFile:      os.Getenv("OPSDASH_POINTS_FILE"),
		LogFile:         os.Getenv("OPSDASH_LOG_FILE"),
		TickInterval:    tick,
		AlertTTL:        ttl,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
