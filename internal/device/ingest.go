package device

import (
	"fmt"

	"github.com/nerrad567/fanbridge/internal/infrastructure/mqtt"
)

// Subscriber registers topic handlers on the transport.
// *mqtt.Client satisfies this interface.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Subscribe registers the aggregate for every inbound fan topic.
func (a *Aggregate) Subscribe(sub Subscriber, qos byte) error {
	for _, topic := range (mqtt.Topics{}).Inbound() {
		if err := sub.Subscribe(topic, qos, a.HandleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	return nil
}

// HandleMessage is the transport callback for inbound fan topics.
// Rejected payloads are logged and dropped; the transport never sees an
// error.
func (a *Aggregate) HandleMessage(topic string, payload []byte) error {
	if err := a.ApplyTransportUpdate(topic, payload); err != nil {
		a.getLogger().Warn("discarding fan message",
			"topic", topic,
			"payload", string(payload),
			"error", err,
		)
	}
	return nil
}
