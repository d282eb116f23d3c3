package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"netglobe/internal/logging"
	"netglobe/internal/models"
	"netglobe/internal/ratelimit"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

type MQTTConfig struct {
	Broker         string        `yaml:"broker" env:"BROKER"`
	ClientID       string        `yaml:"client_id" env:"CLIENT_ID"`
	Username       string        `yaml:"username" env:"USERNAME"`
	Password       string        `yaml:"password" env:"PASSWORD"`
	TopicPrefix    string        `yaml:"topic_prefix" env:"TOPIC_PREFIX"`
	QoS            byte          `yaml:"qos" env:"QOS"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

func (c MQTTConfig) Enabled() bool { return strings.TrimSpace(c.Broker) != "" }

func (c MQTTConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2 (got %d)", c.QoS)
	}
	if strings.ContainsAny(c.TopicPrefix, "#+") {
		return errors.New("mqtt topic_prefix must not contain wildcards")
	}
	return nil
}

// publisher is the part of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes each event as JSON to <prefix>/<category>.
type MQTT struct {
	client publisher
	closer func()
	prefix string
	qos    byte
	log    *logrus.Logger
	errors *ratelimit.Counter
}

// DialMQTT connects to the broker and returns a publishing sink.
func DialMQTT(cfg MQTTConfig, log *logrus.Logger) (*MQTT, error) {
	if log == nil {
		log = logging.GetLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ClientID == "" {
		host, _ := os.Hostname()
		cfg.ClientID = fmt.Sprintf("netglobe-%s-%d", host, os.Getpid())
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("mqtt connection lost")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout after %s", cfg.Broker, cfg.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}

	log.WithFields(logrus.Fields{"broker": cfg.Broker, "client_id": cfg.ClientID}).Info("mqtt connected")
	m := newMQTT(client, cfg, log)
	m.closer = func() { client.Disconnect(250) }
	return m, nil
}

func newMQTT(p publisher, cfg MQTTConfig, log *logrus.Logger) *MQTT {
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "netglobe/connections"
	}
	return &MQTT{
		client: p,
		prefix: prefix,
		qos:    cfg.QoS,
		log:    log,
		errors: ratelimit.NewCounter(time.Minute, nil),
	}
}

// Topic returns the topic an event is published to.
func (m *MQTT) Topic(ev models.EnrichedEvent) string {
	cat := ev.Category
	if cat == "" {
		cat = "other"
	}
	return m.prefix + "/" + cat
}

func (m *MQTT) Emit(ev models.EnrichedEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	tok := m.client.Publish(m.Topic(ev), m.qos, false, payload)
	if m.qos == 0 {
		return
	}
	go func() {
		if tok.WaitTimeout(5*time.Second) && tok.Error() == nil {
			return
		}
		if n, ok := m.errors.Inc(); ok {
			m.log.WithError(tok.Error()).WithField("total", n).Warn("mqtt publish failed")
		}
	}()
}

func (m *MQTT) Close() {
	if m.closer != nil {
		m.closer()
	}
}
