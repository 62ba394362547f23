package internal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

func init() {
	producers["jetstream"] = func() Producer { return &JetStreamMQClient{} }
}

type JetStreamMQClient struct {
	NatsClient      *nats.Conn          `json:"-"`
	JetStreamClient jetstream.JetStream `json:"-"`
	JetStreamStream jetstream.Stream    `json:"-"`

	channel string
}

func (jetstreamMQ *JetStreamMQClient) String() string {
	return "jetstream"
}

func (jetstreamMQ *JetStreamMQClient) Channel() string {
	return jetstreamMQ.channel
}

func (jetstreamMQ *JetStreamMQClient) Connect(ctx context.Context, clientName string, args map[string]interface{}) error {
	var ok bool

	var address string

	if address, ok = GetEntry(args, "Address").(string); !ok {
		return fmt.Errorf("%w: jetstream Address", ErrProducerArgument)
	}

	if jetstreamMQ.channel, ok = GetEntry(args, "Channel").(string); !ok {
		return fmt.Errorf("%w: jetstream Channel", ErrProducerArgument)
	}

	var err error

	jetstreamMQ.NatsClient, err = nats.Connect(address, nats.Name(clientName))
	if err != nil {
		return fmt.Errorf("jetstreamMQ connect nats: %w", err)
	}

	jetstreamMQ.JetStreamClient, err = jetstream.New(jetstreamMQ.NatsClient)
	if err != nil {
		return fmt.Errorf("jetstreamMQ new: %w", err)
	}

	jetstreamMQ.JetStreamStream, err = jetstreamMQ.JetStreamClient.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:              jetstreamMQ.channel,
		Subjects:          []string{jetstreamMQ.channel + ".*"},
		Retention:         jetstream.InterestPolicy,
		Discard:           jetstream.DiscardOld,
		MaxAge:            5 * time.Minute,
		Storage:           jetstream.MemoryStorage,
		MaxMsgsPerSubject: 1_000_000,
		MaxMsgSize:        math.MaxInt32,
		NoAck:             true,
	})
	if err != nil {
		return fmt.Errorf("jetstreamMQ create stream: %w", err)
	}

	return nil
}

// Publish publishes to the "events" subject of the stream named channel.
func (jetstreamMQ *JetStreamMQClient) Publish(ctx context.Context, channel string, data []byte) error {
	_, err := jetstreamMQ.JetStreamClient.PublishAsync(
		channel+".events",
		data,
	)

	return err
}

func (jetstreamMQ *JetStreamMQClient) Close() {
	if jetstreamMQ.NatsClient != nil {
		jetstreamMQ.NatsClient.Close()
		jetstreamMQ.NatsClient = nil
	}
}
