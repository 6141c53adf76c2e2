package sessiongroup

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ocx/meshrpc/internal/archive"
	"github.com/ocx/meshrpc/internal/metadata"
	"github.com/ocx/meshrpc/internal/msgpack"
	"github.com/ocx/meshrpc/internal/objectview"
)

// RedisGroupBackend mirrors a Group's Notify/NotifyFilter fan-out onto a
// Redis Pub/Sub channel, so Groups running in separate processes stay in
// sync. Local fan-out is unaffected; this is an additional side-effect.
// Adapted from internal/infra/redis_adapter.go's GoRedisAdapter.
type RedisGroupBackend struct {
	rdb     *redis.Client
	channel string
	cfg     archive.Config
}

// NewRedisGroupBackend opens a connection to addr and binds it to channel,
// the Pub/Sub channel the group's notifies are published on.
func NewRedisGroupBackend(addr, password string, db int, channel string) (*RedisGroupBackend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("sessiongroup: redis ping failed (%s): %w", addr, err)
	}
	return &RedisGroupBackend{rdb: rdb, channel: channel}, nil
}

// Close shuts down the underlying Redis client.
func (b *RedisGroupBackend) Close() error {
	return b.rdb.Close()
}

// Publish encodes method and params with the same msgpack wire codec
// sessions use for their own NOTIFY frames, and publishes the result on the
// backend's channel.
func (b *RedisGroupBackend) Publish(method string, params []objectview.ConstView) error {
	payload, err := b.encode(method, params)
	if err != nil {
		return fmt.Errorf("sessiongroup: encoding notify payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisGroupBackend) encode(method string, params []objectview.ConstView) ([]byte, error) {
	var buf bytes.Buffer
	w := msgpack.NewWriter(&buf, b.cfg)

	if err := w.ArrayPush(2); err != nil {
		return nil, err
	}
	if err := w.Write(method); err != nil {
		return nil, err
	}
	if err := w.ArrayPush(len(params)); err != nil {
		return nil, err
	}
	for _, p := range params {
		if err := metadata.Archive(w, p.Meta, p.Ptr); err != nil {
			return nil, err
		}
	}
	if err := w.ArrayPop(); err != nil {
		return nil, err
	}
	if err := w.ArrayPop(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Subscribe registers handler to run for every payload other processes
// publish on the backend's channel. Decoding a payload back into a method
// name and parameter values uses msgpack.NewReader over the raw bytes,
// mirroring how ProtocolAdapter.HandleSingleMessage reads a NOTIFY frame.
// Returns an unsubscribe function.
func (b *RedisGroupBackend) Subscribe(ctx context.Context, handler func(payload []byte)) (func(), error) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("sessiongroup: subscribe to %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	go func() {
		for msg := range ch {
			handler([]byte(msg.Payload))
		}
	}()

	return func() { sub.Close() }, nil
}
