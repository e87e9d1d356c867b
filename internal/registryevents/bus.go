// Package registryevents publishes host/service registration and
// service-health transitions on a Redis channel (spec §10 supplemented
// feature), adapted from the teacher's internal/clients/redis.SSEBus. It
// gives dispatcher replicas in a cluster a lightweight "a host just came
// back online" signal without every replica polling Postgres alone.
package registryevents

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/logger"
)

// EventKind enumerates the registry events published on the bus.
type EventKind string

const (
	EventHostOnline    EventKind = "host_online"
	EventServiceOnline EventKind = "service_online"
	EventServiceState  EventKind = "service_state"
)

// Event is the envelope published to RedisChannel.
type Event struct {
	Kind        EventKind           `json:"kind"`
	Host        string              `json:"host,omitempty"`
	ServiceType string              `json:"service_type,omitempty"`
	Online      bool                `json:"online,omitempty"`
	State       domain.ServiceState `json:"state,omitempty"`
	Signature   int64               `json:"signature,omitempty"`
	At          time.Time           `json:"at"`
}

// Bus publishes registry events. A nil *Bus (no REDIS_ADDR configured) is
// safe to call — every Publish* method becomes a no-op, since the bus is
// an optional cross-instance signal, not a correctness requirement (the
// dispatcher still discovers state changes by polling the store).
type Bus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// New connects to Redis at addr and returns a Bus publishing on channel.
// Returns (nil, nil) if addr is blank — callers get a safe no-op Bus.
func New(addr, channel string, baseLog *logger.Logger) (*Bus, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Bus{
		log:     baseLog.With("component", "RegistryEventBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *Bus) publish(ctx context.Context, e Event) {
	if b == nil || b.rdb == nil {
		return
	}
	e.At = time.Now()
	raw, err := json.Marshal(e)
	if err != nil {
		b.log.Warn("failed to marshal registry event", "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("failed to publish registry event", "error", err)
	}
}

func (b *Bus) PublishHostOnline(ctx context.Context, host string, online bool) {
	b.publish(ctx, Event{Kind: EventHostOnline, Host: host, Online: online})
}

func (b *Bus) PublishServiceOnline(ctx context.Context, serviceType, host string, online bool) {
	b.publish(ctx, Event{Kind: EventServiceOnline, ServiceType: serviceType, Host: host, Online: online})
}

func (b *Bus) PublishServiceState(ctx context.Context, serviceType, host string, state domain.ServiceState, signature int64) {
	b.publish(ctx, Event{Kind: EventServiceState, ServiceType: serviceType, Host: host, State: state, Signature: signature})
}

// Subscribe starts a background goroutine forwarding decoded events to
// onEvent until ctx is done. A nil Bus returns nil immediately (nothing to
// subscribe to).
func (b *Bus) Subscribe(ctx context.Context, onEvent func(Event)) error {
	if b == nil || b.rdb == nil || onEvent == nil {
		return nil
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
					b.log.Warn("bad registry event payload", "error", err)
					continue
				}
				onEvent(e)
			}
		}
	}()
	return nil
}

func (b *Bus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
