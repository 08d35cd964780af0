// Package emitter fans session events out to an MQTT broker so other
// systems (payroll, dashboards) can follow attendance as it happens.
package emitter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ecstasyos/presence/server/internal/presence/capture"
	"github.com/ecstasyos/presence/server/internal/presence/types"
)

var ErrNotConnected = errors.New("mqtt not connected")

type Config struct {
	Broker      string // host:port or a full tcp:// URL
	ClientID    string
	TopicPrefix string // e.g. "presence/attendance"
	QoS         byte
}

// MQTTEmitter publishes one JSON message per event to
// <prefix>/<site>/<kind>.
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client
	logger *log.Logger

	mu        sync.Mutex
	published map[string]uint64
	errors    uint64
}

// Stats is a point-in-time copy of publish counters.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Dial connects to the broker. Reconnects are automatic afterwards.
func Dial(cfg Config, logger *log.Logger) (*MQTTEmitter, error) {
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Printf("mqtt connected (broker=%s client_id=%s)", broker, cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Printf("mqtt connection lost, reconnecting: %v", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return New(client, cfg, logger), nil
}

// New wraps an already configured client.
func New(client mqtt.Client, cfg Config, logger *log.Logger) *MQTTEmitter {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "presence/attendance"
	}
	return &MQTTEmitter{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		published: make(map[string]uint64),
	}
}

// Topic returns the topic an event is published on. Sessions without a
// site publish under "_".
func (e *MQTTEmitter) Topic(ev capture.Event) string {
	site := ev.SiteID
	if site == "" {
		site = "_"
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(e.cfg.TopicPrefix, "/"), site, ev.Kind)
}

// Publish sends ev and waits briefly for the broker's acknowledgement.
func (e *MQTTEmitter) Publish(ev capture.Event) error {
	if !e.client.IsConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := json.Marshal(Message(ev))
	if err != nil {
		e.countError()
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	topic := e.Topic(ev)
	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()
	return nil
}

// Listen satisfies capture.Listener. Failures are logged only.
func (e *MQTTEmitter) Listen(ev capture.Event) {
	if err := e.Publish(ev); err != nil {
		e.logger.Printf("emit event %s: %v", ev.ID, err)
	}
}

func (e *MQTTEmitter) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	pub := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		pub[k] = v
	}
	return Stats{Connected: e.client.IsConnected(), Published: pub, Errors: e.errors}
}

func (e *MQTTEmitter) Close() {
	if e.client.IsConnected() {
		e.client.Disconnect(250)
	}
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// Message is the wire form of an event.
func Message(ev capture.Event) types.EventMessage {
	m := types.EventMessage{
		EventID:    ev.ID,
		SessionID:  ev.SessionID,
		Kind:       string(ev.Kind),
		Outcome:    ev.Outcome.String(),
		EmployeeID: ev.Identity.EmployeeID,
		Email:      ev.Identity.Email,
		Name:       ev.Identity.Name,
		SiteID:     ev.SiteID,
		At:         ev.At.UTC().Format(time.RFC3339Nano),
	}
	if ev.Faces >= 0 {
		n := ev.Faces
		m.Faces = &n
	}
	if p := ev.Position; p != nil {
		m.Location = &types.LocationBody{Lat: p.Lat, Lng: p.Lng, AccuracyM: p.AccuracyM}
	}
	return m
}
