package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-plug/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-plug/internal/plug"
)

// defaultCommandTimeout bounds a command's wait for a controller slot. The
// invocation itself is bounded by the controller timeout.
const defaultCommandTimeout = 60 * time.Second

// MQTTClient is the subset of *mqtt.Client the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Gateway is the subset of *plug.Gateway the bridge drives.
type Gateway interface {
	PowerOn(ctx context.Context) (plug.Result, error)
	PowerOff(ctx context.Context) (plug.Result, error)
	Toggle(ctx context.Context) (plug.Result, error)
	GetStatus(ctx context.Context) plug.Result
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Bridge.
type Options struct {
	MQTT     MQTTClient
	Gateway  Gateway
	DeviceID string
	Topics   mqtt.Topics
	QoS      byte

	// CommandTimeout defaults to 60s.
	CommandTimeout time.Duration
	Logger         Logger
}

// Bridge connects MQTT commands and events to the gateway.
type Bridge struct {
	mqtt     MQTTClient
	gateway  Gateway
	deviceID string
	topics   mqtt.Topics
	qos      byte
	timeout  time.Duration
	logger   Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stats   Stats
}

// Stats counts bridge traffic.
type Stats struct {
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	StatesPublished  uint64 `json:"states_published"`
	EventsPublished  uint64 `json:"events_published"`
	PublishErrors    uint64 `json:"publish_errors"`
}

// NewBridge validates opts and returns a stopped bridge.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, errors.New("bridge: mqtt client is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("bridge: gateway is required")
	}
	if opts.DeviceID == "" {
		return nil, errors.New("bridge: device id is required")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("bridge: invalid qos %d", opts.QoS)
	}

	b := &Bridge{
		mqtt:     opts.MQTT,
		gateway:  opts.Gateway,
		deviceID: opts.DeviceID,
		topics:   opts.Topics,
		qos:      opts.QoS,
		timeout:  opts.CommandTimeout,
		logger:   opts.Logger,
		now:      time.Now,
	}
	if b.timeout <= 0 {
		b.timeout = defaultCommandTimeout
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	return b, nil
}

// Start subscribes to the device's command topic. Commands are cancelled
// when ctx ends or Stop is called.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errors.New("bridge: already started")
	}

	b.ctx, b.cancel = context.WithCancel(ctx)
	topic := b.topics.Command(b.deviceID)
	if err := b.mqtt.Subscribe(topic, b.qos, b.handleCommand); err != nil {
		b.cancel()
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	b.started = true

	b.logger.Info("MQTT bridge started", "command_topic", topic)
	return nil
}

// Stop unsubscribes and waits for in-flight commands.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	b.mu.Unlock()

	if err := b.mqtt.Unsubscribe(b.topics.Command(b.deviceID)); err != nil {
		b.logger.Warn("failed to unsubscribe command topic", "error", err)
	}
	b.cancel()
	b.wg.Wait()
	b.logger.Info("MQTT bridge stopped")
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// handleCommand decodes a command and runs it asynchronously.
func (b *Bridge) handleCommand(_ string, payload []byte) error {
	b.count(func(s *Stats) { s.CommandsReceived++ })

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.reject(cmd, ErrCodeInvalidPayload, "command is not valid JSON")
		return fmt.Errorf("decoding command: %w", err)
	}
	if cmd.DeviceID != "" && cmd.DeviceID != b.deviceID {
		b.reject(cmd, ErrCodeWrongDevice, fmt.Sprintf("device %q is not bridged here", cmd.DeviceID))
		return nil
	}
	switch cmd.Command {
	case CommandOn, CommandOff, CommandToggle, CommandStatus:
	default:
		b.reject(cmd, ErrCodeInvalidCommand, fmt.Sprintf("unknown command %q", cmd.Command))
		return nil
	}

	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	b.logger.Info("received command", "command_id", cmd.ID, "command", cmd.Command, "source", cmd.Source)

	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.execute(ctx, cmd)
	}()
	return nil
}

func (b *Bridge) execute(ctx context.Context, cmd CommandMessage) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var (
		res plug.Result
		err error
	)
	switch cmd.Command {
	case CommandOn:
		res, err = b.gateway.PowerOn(ctx)
	case CommandOff:
		res, err = b.gateway.PowerOff(ctx)
	case CommandToggle:
		res, err = b.gateway.Toggle(ctx)
	case CommandStatus:
		res = b.gateway.GetStatus(ctx)
	}

	if err != nil {
		code := ErrCodeControlFailed
		if errors.Is(err, plug.ErrStatusUnknown) {
			code = ErrCodeStatusUnknown
		}
		b.reject(cmd, code, err.Error())
		return
	}

	b.publishAck(AckMessage{
		CommandID: cmd.ID,
		Timestamp: b.now().UTC(),
		DeviceID:  b.deviceID,
		Command:   cmd.Command,
		Status:    AckAccepted,
		Result:    &res,
	})
}

func (b *Bridge) reject(cmd CommandMessage, code, message string) {
	b.count(func(s *Stats) { s.CommandsFailed++ })
	b.logger.Warn("command rejected", "command_id", cmd.ID, "code", code, "message", message)

	b.publishAck(AckMessage{
		CommandID: cmd.ID,
		Timestamp: b.now().UTC(),
		DeviceID:  b.deviceID,
		Command:   cmd.Command,
		Status:    AckFailed,
		Error:     &AckError{Code: code, Message: message},
	})
}

func (b *Bridge) publishAck(ack AckMessage) {
	b.publish(b.topics.Ack(b.deviceID), ack, false)
}

// Record implements plug.Recorder.
func (b *Bridge) Record(_ context.Context, ev plug.Event) {
	now := b.now().UTC()

	if b.publish(b.topics.Event(string(ev.Action)), newEventMessage(ev, now), false) {
		b.count(func(s *Stats) { s.EventsPublished++ })
	}

	on, ok := ev.KnownPower()
	if !ok {
		return
	}
	state := StateMessage{
		DeviceID:  b.deviceID,
		Timestamp: ev.Result.Timestamp,
		IsOn:      on,
		Method:    ev.Result.Method,
		Status:    ev.Result.Status,
	}
	if b.publish(b.topics.State(b.deviceID), state, true) {
		b.count(func(s *Stats) { s.StatesPublished++ })
	}
}

// publish marshals v and sends it, logging failures.
func (b *Bridge) publish(topic string, v any, retained bool) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("failed to encode MQTT payload", "topic", topic, "error", err)
		return false
	}
	if err := b.mqtt.Publish(topic, payload, b.qos, retained); err != nil {
		b.count(func(s *Stats) { s.PublishErrors++ })
		b.logger.Warn("failed to publish", "topic", topic, "error", err)
		return false
	}
	return true
}

func (b *Bridge) count(fn func(*Stats)) {
	b.mu.Lock()
	fn(&b.stats)
	b.mu.Unlock()
}
