package health

import (
	"context"

	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/logger"
	"github.com/opencast/servicereg/internal/registryevents"
)

// StatsObserver is spec §10's supplemented feature: an observer callback
// invoked after every service state-machine transition (the dispatcher
// reports no dispatch outcomes through it), matching §9's Design Note ("statistics export... treated as observer
// callbacks invoked after successful state changes; not on the critical
// path"). The default is a no-op; a logging and a Redis-publishing
// implementation are provided.
type StatsObserver interface {
	OnServiceStateChanged(ctx context.Context, serviceType, host string, from, to domain.ServiceState, signature int64)
}

type noopObserver struct{}

func NewNoopObserver() StatsObserver { return noopObserver{} }

func (noopObserver) OnServiceStateChanged(context.Context, string, string, domain.ServiceState, domain.ServiceState, int64) {
}

type loggingObserver struct {
	log *logger.Logger
}

func NewLoggingObserver(baseLog *logger.Logger) StatsObserver {
	return &loggingObserver{log: baseLog.With("component", "StatsObserver")}
}

func (o *loggingObserver) OnServiceStateChanged(_ context.Context, serviceType, host string, from, to domain.ServiceState, signature int64) {
	o.log.Info("service state changed", "service_type", serviceType, "host", host, "from", from, "to", to, "signature", signature)
}

type redisObserver struct {
	bus *registryevents.Bus
}

// NewRedisObserver publishes state transitions on the registry event bus
// so other replicas/observers can react without polling the store.
func NewRedisObserver(bus *registryevents.Bus) StatsObserver {
	return &redisObserver{bus: bus}
}

func (o *redisObserver) OnServiceStateChanged(ctx context.Context, serviceType, host string, from, to domain.ServiceState, signature int64) {
	o.bus.PublishServiceState(ctx, serviceType, host, to, signature)
}
