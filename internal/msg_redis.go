package internal

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

func init() {
	producers["redis"] = func() Producer { return &RedisMQClient{} }
}

type RedisMQClient struct {
	redisClient *redis.Client

	channel string
}

func (redisMQ *RedisMQClient) String() string {
	return "redis"
}

func (redisMQ *RedisMQClient) Channel() string {
	return redisMQ.channel
}

func (redisMQ *RedisMQClient) Connect(ctx context.Context, clientName string, args map[string]interface{}) error {
	var ok bool

	var address string

	if address, ok = GetEntry(args, "Address").(string); !ok {
		return fmt.Errorf("%w: redis Address", ErrProducerArgument)
	}

	password, _ := GetEntry(args, "Password").(string)
	redisMQ.channel, _ = GetEntry(args, "Channel").(string)

	var db int
	var err error

	switch value := GetEntry(args, "DB").(type) {
	case int:
		db = value
	case string:
		db, err = strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("redisMQ connect db atoi: %w", err)
		}
	}

	redisMQ.redisClient = redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			return cn.ClientSetName(ctx, clientName).Err()
		},
	})

	err = redisMQ.redisClient.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("redisMQ connect ping: %w", err)
	}

	return nil
}

func (redisMQ *RedisMQClient) Publish(ctx context.Context, channel string, data []byte) error {
	return redisMQ.redisClient.Publish(
		ctx,
		channel,
		data,
	).Err()
}

func (redisMQ *RedisMQClient) Close() {
	if redisMQ.redisClient != nil {
		redisMQ.redisClient.Close()
		redisMQ.redisClient = nil
	}
}
