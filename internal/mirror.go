package internal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/WelcomerTeam/Sandwich-Roulette/gatewayjson"
	"github.com/rs/zerolog"
)

// Time Stop waits for an in flight publish before closing the producer.
const MirrorStopTimeout = 5 * time.Second

// Producer publishes mirrored events to a message broker.
type Producer interface {
	String() string
	Channel() string

	Connect(ctx context.Context, clientName string, args map[string]interface{}) error
	Publish(ctx context.Context, channel string, data []byte) error
	Close()
}

var producers = map[string]func() Producer{}

// Producers returns the names of every available producer.
func Producers() []string {
	names := make([]string, 0, len(producers))
	for name := range producers {
		names = append(names, name)
	}

	return names
}

// NewProducer returns an unconnected producer by name.
func NewProducer(producerType string) (Producer, error) {
	newProducer, ok := producers[strings.ToLower(producerType)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProducer, producerType)
	}

	return newProducer(), nil
}

// MirroredEvent is the payload published for every dispatch.
type MirroredEvent struct {
	Data     gatewayjson.RawMessage `json:"d"`
	Sequence int32                  `json:"s"`
	Type     string                 `json:"t"`
	GuildID  discord.Snowflake      `json:"guild_id,omitempty"`
	Op       discord.GatewayOp      `json:"op"`
}

// EventMirror republishes every dispatch event to a producer.
type EventMirror struct {
	*Actor

	producer Producer
	channel  string

	closeOnce sync.Once
}

func NewEventMirror(logger zerolog.Logger, producer Producer, channel string, opts ...ActorOption) *EventMirror {
	m := &EventMirror{
		producer: producer,
		channel:  channel,
	}

	if m.channel == "" {
		m.channel = producer.Channel()
	}

	m.Actor = NewActor(logger.With().Str("producer", producer.String()).Logger(), "mirror", m.receive, opts...)

	return m
}

func (m *EventMirror) Subscription() Subscription {
	return Subscription{
		Events: map[discord.GatewayOp][]string{
			discord.GatewayOpDispatch: {AnyType},
		},
	}
}

// Stop stops the actor and closes the producer once the actor loop has exited.
func (m *EventMirror) Stop() {
	m.Actor.Stop()

	m.closeOnce.Do(func() {
		select {
		case <-m.Done():
		case <-time.After(MirrorStopTimeout):
			m.Logger.Warn().Dur("timeout", MirrorStopTimeout).Msg("Timed out waiting for mirror to stop")
		}

		m.producer.Close()
	})
}

func (m *EventMirror) receive(ctx context.Context, message interface{}) error {
	event, ok := message.(*Event)
	if !ok {
		return nil
	}

	data, err := gatewayjson.Marshal(MirroredEvent{
		Op:       event.Op,
		Type:     event.Type,
		Sequence: event.Sequence,
		Data:     event.Data,
		GuildID:  event.GuildID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mirrored event: %w", err)
	}

	// Mirroring is best effort and never stops the gateway.
	if err = m.producer.Publish(ctx, m.channel, data); err != nil {
		mirrorPublishFailures.WithLabelValues(m.producer.String()).Inc()

		m.Logger.Warn().Err(err).Str("type", event.Type).Msg("Failed to publish event")
	}

	return nil
}

// GetEntry returns the value of key in m, ignoring case.
func GetEntry(m map[string]interface{}, key string) interface{} {
	key = strings.ToLower(key)
	for i, k := range m {
		if strings.ToLower(i) == key {
			return k
		}
	}

	return nil
}
