package device

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/fanbridge/internal/infrastructure/mqtt"
)

// Publisher sends a message to the transport.
// *mqtt.Client satisfies this interface.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Gateway validates API commands, publishes them to the fan controller and
// mirrors them into the aggregate once the publish succeeds.
type Gateway struct {
	agg    *Aggregate
	pub    Publisher
	qos    byte
	logger Logger
}

// NewGateway creates a command gateway. Commands are published with qos
// and are never retained.
func NewGateway(agg *Aggregate, pub Publisher, qos byte) *Gateway {
	return &Gateway{
		agg:    agg,
		pub:    pub,
		qos:    qos,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
}

// SetMode publishes a mode change. It returns an error wrapping
// ErrValidation for anything but "auto" or "manual", and one wrapping
// ErrPublish if the transport refused the message.
func (g *Gateway) SetMode(ctx context.Context, raw string) (Mode, error) {
	m, err := ParseMode(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := g.send(ctx, FieldMode, mqtt.TopicMode, string(m)); err != nil {
		return "", err
	}
	return m, nil
}

// SetControl publishes an on/off command.
func (g *Gateway) SetControl(ctx context.Context, raw string) (Control, error) {
	c, err := ParseControl(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := g.send(ctx, FieldControl, mqtt.TopicControl, string(c)); err != nil {
		return "", err
	}
	return c, nil
}

// SetThreshold publishes a new setpoint. raw is the decoded JSON value and
// may be a number or a numeric string.
func (g *Gateway) SetThreshold(ctx context.Context, raw any) (float64, error) {
	v, err := thresholdFromJSON(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := g.send(ctx, FieldThreshold, mqtt.TopicThreshold, FormatThreshold(v)); err != nil {
		return 0, err
	}
	return v, nil
}

// send publishes value outside the aggregate lock, then mirrors it.
func (g *Gateway) send(ctx context.Context, field Field, topic, value string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublish, topic, err)
	}

	if err := g.pub.Publish(topic, []byte(value), g.qos, false); err != nil {
		g.logger.Error("failed to publish fan command", "topic", topic, "value", value, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrPublish, topic, err)
	}

	if err := g.agg.ApplyCommandEcho(field, value); err != nil {
		// Value was validated before publishing.
		g.logger.Error("failed to mirror fan command", "field", field, "value", value, "error", err)
	}

	g.logger.Info("fan command published", "topic", topic, "value", value)
	return nil
}

// thresholdFromJSON accepts the shapes encoding/json produces for a
// threshold field.
func thresholdFromJSON(raw any) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, fmt.Errorf("threshold is required")
	case float64:
		if err := checkFinite(v); err != nil {
			return 0, err
		}
		return v, nil
	case json.Number:
		return ParseThreshold(v.String())
	case string:
		return ParseThreshold(v)
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("threshold must be a number, got %T", raw)
	}
}
