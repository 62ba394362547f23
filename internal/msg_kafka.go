package internal

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
)

func init() {
	producers["kafka"] = func() Producer { return &KafkaMQClient{} }
}

type KafkaMQClient struct {
	KafkaClient *kafka.Writer

	channel string
}

func parseKafkaBalancer(balancer string) kafka.Balancer {
	switch balancer {
	case "crc32":
		return &kafka.CRC32Balancer{}
	case "hash":
		return &kafka.Hash{}
	case "murmur2":
		return &kafka.Murmur2Balancer{}
	case "roundrobin":
		return &kafka.RoundRobin{}
	case "leastbytes":
		return &kafka.LeastBytes{}
	default:
		return nil
	}
}

func (kafkaMQ *KafkaMQClient) String() string {
	return "kafka"
}

func (kafkaMQ *KafkaMQClient) Channel() string {
	return kafkaMQ.channel
}

func (kafkaMQ *KafkaMQClient) Connect(ctx context.Context, clientName string, args map[string]interface{}) error {
	var ok bool

	var address string

	if address, ok = GetEntry(args, "Address").(string); !ok {
		return fmt.Errorf("%w: kafka Address", ErrProducerArgument)
	}

	kafkaMQ.channel, _ = GetEntry(args, "Channel").(string)

	var balancer kafka.Balancer

	if balancerStr, ok := GetEntry(args, "Balancer").(string); ok {
		balancer = parseKafkaBalancer(balancerStr)
	}

	var async bool

	if asyncStr, ok := GetEntry(args, "Async").(string); ok {
		async, _ = strconv.ParseBool(asyncStr)
	}

	kafkaMQ.KafkaClient = &kafka.Writer{
		Addr:     kafka.TCP(address),
		Balancer: balancer,
		Async:    async,
		Transport: &kafka.Transport{
			ClientID: clientName,
		},
	}

	return nil
}

func (kafkaMQ *KafkaMQClient) Publish(ctx context.Context, channel string, data []byte) error {
	return kafkaMQ.KafkaClient.WriteMessages(
		ctx,
		kafka.Message{
			Topic: channel,
			Value: data,
		},
	)
}

func (kafkaMQ *KafkaMQClient) Close() {
	if kafkaMQ.KafkaClient != nil {
		kafkaMQ.KafkaClient.Close()
		kafkaMQ.KafkaClient = nil
	}
}
