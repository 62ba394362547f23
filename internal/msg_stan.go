package internal

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/stan.go"
)

func init() {
	producers["stan"] = func() Producer { return &StanMQClient{} }
}

type StanMQClient struct {
	NatsClient *nats.Conn `json:"-"`
	StanClient stan.Conn  `json:"-"`

	async bool

	channel string
	cluster string
}

func (stanMQ *StanMQClient) String() string {
	return "stan"
}

func (stanMQ *StanMQClient) Channel() string {
	return stanMQ.channel
}

func (stanMQ *StanMQClient) Cluster() string {
	return stanMQ.cluster
}

func (stanMQ *StanMQClient) Connect(ctx context.Context, clientName string, args map[string]interface{}) error {
	var ok bool

	var address string

	if address, ok = GetEntry(args, "Address").(string); !ok {
		return fmt.Errorf("%w: stan Address", ErrProducerArgument)
	}

	if stanMQ.cluster, ok = GetEntry(args, "Cluster").(string); !ok {
		return fmt.Errorf("%w: stan Cluster", ErrProducerArgument)
	}

	if stanMQ.channel, ok = GetEntry(args, "Channel").(string); !ok {
		return fmt.Errorf("%w: stan Channel", ErrProducerArgument)
	}

	var useNatsConnection bool
	var err error

	if useNatsConnectionStr, ok := GetEntry(args, "UseNATSConnection").(string); ok {
		if useNatsConnection, err = strconv.ParseBool(useNatsConnectionStr); err != nil {
			useNatsConnection = true
		}
	} else {
		useNatsConnection = true
	}

	if asyncStr, ok := GetEntry(args, "Async").(string); ok {
		stanMQ.async, _ = strconv.ParseBool(asyncStr)
	}

	var option stan.Option

	if useNatsConnection {
		stanMQ.NatsClient, err = nats.Connect(address, nats.Name(clientName))
		if err != nil {
			return fmt.Errorf("stanMQ connect nats: %w", err)
		}

		option = stan.NatsConn(stanMQ.NatsClient)
	} else {
		option = stan.NatsURL(address)
	}

	stanMQ.StanClient, err = stan.Connect(
		stanMQ.cluster,
		clientName,
		option,
	)
	if err != nil {
		return fmt.Errorf("stanMQ connect stan: %w", err)
	}

	return nil
}

func (stanMQ *StanMQClient) Publish(ctx context.Context, channel string, data []byte) error {
	if stanMQ.async {
		_, err := stanMQ.StanClient.PublishAsync(
			channel,
			data,
			nil,
		)

		return err
	}

	return stanMQ.StanClient.Publish(
		channel,
		data,
	)
}

func (stanMQ *StanMQClient) Close() {
	if stanMQ.StanClient != nil {
		stanMQ.StanClient.Close()
		stanMQ.StanClient = nil
	}

	if stanMQ.NatsClient != nil {
		stanMQ.NatsClient.Close()
		stanMQ.NatsClient = nil
	}
}
