// Package bridge connects the ring arbiter to the device over MQTT. Call
// lifecycle events and device state arrive as JSON on subscribed topics; every
// actuator instruction of the arbiter is published as a Command.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/timzifer/ringd/config"
	"github.com/timzifer/ringd/ringer"
	"github.com/timzifer/ringd/settings"
)

// ErrNotConnected is returned for commands published while the broker is
// unreachable.
var ErrNotConnected = errors.New("bridge: not connected")

// Client is the subset of the paho client used by the bridge.
type Client interface {
	IsConnected() bool
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// SettingsWriter applies settings writes received on the settings topic.
type SettingsWriter interface {
	UserID() int
	PutStringForUser(ctx context.Context, ns settings.Namespace, key, value string, userID int) bool
	Validator(ns settings.Namespace, key string) (settings.Validator, bool)
}

// Topics names the MQTT topics used by the bridge. Empty topics are not
// subscribed.
type Topics struct {
	Events   string
	Device   string
	Commands string
	Settings string
}

// TopicsFor returns the topics configured in cfg.
func TopicsFor(cfg config.MQTTConfig) Topics {
	return Topics{
		Events:   cfg.Topics.Events,
		Device:   cfg.Topics.Device,
		Commands: cfg.Topics.Commands,
		Settings: cfg.Topics.Settings,
	}
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger.With().Str("component", "bridge").Logger()
	}
}

// WithSettingsWriter enables the settings topic.
func WithSettingsWriter(w SettingsWriter) Option {
	return func(b *Bridge) {
		b.settings = w
	}
}

// Bridge translates between MQTT and the arbiter.
type Bridge struct {
	client     Client
	ownsClient bool
	topics     Topics
	qos        byte
	sink       func(ringer.Event)
	settings   SettingsWriter
	logger     zerolog.Logger
	now        func() time.Time

	tracker *CallTracker
	device  *DeviceState
}

// New creates a bridge on an existing client. Call Start to subscribe. Events
// decoded from the events topic are applied to the call tracker and passed
// to sink.
func New(client Client, topics Topics, qos byte, sink func(ringer.Event), opts ...Option) (*Bridge, error) {
	b, err := newBridge(topics, qos, sink, opts...)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("bridge: client must not be nil")
	}
	b.client = client
	return b, nil
}

func newBridge(topics Topics, qos byte, sink func(ringer.Event), opts ...Option) (*Bridge, error) {
	if qos > 2 {
		return nil, fmt.Errorf("bridge: invalid qos %d", qos)
	}
	if sink == nil {
		return nil, errors.New("bridge: event sink must not be nil")
	}
	if strings.TrimSpace(topics.Commands) == "" {
		return nil, errors.New("bridge: commands topic is required")
	}
	b := &Bridge{
		topics: topics,
		qos:    qos,
		sink:   sink,
		logger: zerolog.Nop(),
		now:    time.Now,
		device: NewDeviceState(),
	}
	b.tracker = NewCallTracker(b.silenceCall)
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Connect dials the broker described by cfg. Subscriptions are renewed on
// every reconnect.
func Connect(cfg config.MQTTConfig, sink func(ringer.Event), opts ...Option) (*Bridge, error) {
	b, err := newBridge(TopicsFor(cfg), cfg.QoS, sink, opts...)
	if err != nil {
		return nil, err
	}
	client, err := buildClient(cfg, b.logger, func(c mqtt.Client) {
		b.subscribe(c)
	})
	if err != nil {
		return nil, err
	}
	b.client = client
	b.ownsClient = true
	return b, nil
}

func buildClient(cfg config.MQTTConfig, logger zerolog.Logger, onConnect mqtt.OnConnectHandler) (mqtt.Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker address is required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "ringd-" + uuid.NewString()
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.KeepAlive.Duration > 0 {
		opts.SetKeepAlive(cfg.KeepAlive.Duration)
	}
	connectTimeout := 30 * time.Second
	if cfg.ConnectTimeout.Duration > 0 {
		connectTimeout = cfg.ConnectTimeout.Duration
	}
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(true)
	opts.OnConnect = onConnect

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt: connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info().Msg("mqtt: reconnecting")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect failed: %w", err)
	}
	return client, nil
}

// Start subscribes the configured topics on the bridge's client.
func (b *Bridge) Start() {
	b.subscribe(b.client)
}

func (b *Bridge) subscribe(client Client) {
	for _, sub := range []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{b.topics.Events, b.handleEvent},
		{b.topics.Device, b.handleDevice},
		{b.topics.Settings, b.handleSetting},
	} {
		if sub.topic == "" {
			continue
		}
		if sub.topic == b.topics.Settings && b.settings == nil {
			continue
		}
		token := client.Subscribe(sub.topic, b.qos, sub.handler)
		if token.Wait() && token.Error() != nil {
			b.logger.Error().Err(token.Error()).Str("topic", sub.topic).Msg("mqtt: subscribe failed")
		} else {
			b.logger.Info().Str("topic", sub.topic).Msg("mqtt: subscribed")
		}
	}
}

func (b *Bridge) handleEvent(_ mqtt.Client, msg mqtt.Message) {
	ev, err := DecodeEvent(msg.Payload())
	if err != nil {
		b.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("mqtt: decode failed")
		return
	}
	b.tracker.Apply(ev)
	b.sink(ev)
}

func (b *Bridge) handleDevice(_ mqtt.Client, msg mqtt.Message) {
	if err := b.device.ApplyJSON(msg.Payload()); err != nil {
		b.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("mqtt: decode failed")
	}
}

func (b *Bridge) handleSetting(_ mqtt.Client, msg mqtt.Message) {
	var payload settingPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		b.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("mqtt: decode failed")
		return
	}
	ns, err := settings.ParseNamespace(payload.Namespace)
	if err != nil {
		b.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("mqtt: decode failed")
		return
	}
	if v, ok := b.settings.Validator(ns, payload.Key); ok && !v.Validate(payload.Value) {
		b.logger.Warn().
			Str("namespace", ns.String()).
			Str("key", payload.Key).
			Str("value", payload.Value).
			Str("validator", v.Kind().String()).
			Msg("rejecting invalid setting")
		return
	}
	user := b.settings.UserID()
	if payload.User != nil {
		user = *payload.User
	}
	if !b.settings.PutStringForUser(context.Background(), ns, payload.Key, payload.Value, user) {
		b.logger.Warn().Str("namespace", ns.String()).Str("key", payload.Key).Msg("setting write failed")
	}
}

// Tracker returns the call tracker fed by the events topic.
func (b *Bridge) Tracker() *CallTracker {
	return b.tracker
}

// Device returns the device state fed by the device topic.
func (b *Bridge) Device() *DeviceState {
	return b.device
}

// Collaborators returns the arbiter collaborators backed by this bridge. The
// interruption filter is left unset.
func (b *Bridge) Collaborators() ringer.Collaborators {
	return ringer.Collaborators{
		Audio:    audioActuator{b: b},
		Vibrator: vibratorActuator{b: b},
		Ringtone: ringtoneActuator{b: b},
		Tones:    toneFactory{b: b},
		Lines:    lineResolver{b: b},
		Calls:    b.tracker,
	}
}

// Close disconnects a client created by Connect.
func (b *Bridge) Close() {
	if b == nil || b.client == nil {
		return
	}
	if b.ownsClient && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}

// publish sends a command without waiting for the broker. Failures already
// known when the call returns are reported.
func (b *Bridge) publish(cmd Command) error {
	if !b.client.IsConnected() {
		return ErrNotConnected
	}
	cmd.ID = uuid.NewString()
	cmd.Timestamp = b.now().UTC()
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("bridge: encode command: %w", err)
	}
	token := b.client.Publish(b.topics.Commands, b.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("bridge: publish %s %s: %w", cmd.Target, cmd.Action, err)
		}
	default:
	}
	return nil
}

func (b *Bridge) silenceCall(_ context.Context, call ringer.CallID) {
	if err := b.publish(Command{Target: TargetCall, Action: "silence", Call: string(call)}); err != nil {
		b.logger.Warn().Err(err).Str("call", string(call)).Msg("silence command failed")
	}
}
