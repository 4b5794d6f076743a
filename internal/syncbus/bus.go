// Package syncbus is an optional internal event bus the Sync Coordinator
// publishes progress transitions to. When no NATS URL is configured, Bus
// degrades to a no-op so the gateway runs standalone without a broker.
package syncbus

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/store"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/sync"
)

// SyncProgressSubject is the internal NATS subject sync progress is
// published to; the Management API's websocket stream subscribes here.
const SyncProgressSubject = "gateway.sync.progress"

// RuleFireSubject is the internal NATS subject the Rule Engine publishes
// fired rules to, for operators running multiple gateway replicas to fan
// the same fire notifications out without each replica re-querying the
// Store.
const RuleFireSubject = "gateway.rule.fires"

// Bus wraps an optional *nats.Conn. A Bus built with an empty url is a
// valid no-op publisher.
type Bus struct {
	nc     *nats.Conn
	logger *log.Logger
}

// Connect dials url if non-empty. An empty url yields a no-op Bus rather
// than an error, since NATS is an optional dependency of this gateway.
func Connect(url string, logger *log.Logger) (*Bus, error) {
	if url == "" {
		logger.Info("syncbus: no NATS_URL configured, sync progress publishing disabled")
		return &Bus{logger: logger}, nil
	}

	nc, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("syncbus: disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("syncbus: reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("syncbus: error", "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("syncbus: connected", "url", url)
	return &Bus{nc: nc, logger: logger}, nil
}

// Close releases the underlying connection, if any.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

// PublishSyncProgress satisfies sync.Publisher. A nil connection (no NATS
// configured) makes this a silent no-op.
func (b *Bus) PublishSyncProgress(p sync.Progress) {
	if b.nc == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		b.logger.Error("syncbus: marshal sync progress", "error", err)
		return
	}
	if err := b.nc.Publish(SyncProgressSubject, data); err != nil {
		b.logger.Error("syncbus: publish sync progress", "error", err)
	}
}

// PublishRuleFire satisfies rules.FirePublisher. A nil connection makes
// this a silent no-op.
func (b *Bus) PublishRuleFire(fire store.RuleFire) {
	if b.nc == nil {
		return
	}
	data, err := json.Marshal(fire)
	if err != nil {
		b.logger.Error("syncbus: marshal rule fire", "error", err)
		return
	}
	if err := b.nc.Publish(RuleFireSubject, data); err != nil {
		b.logger.Error("syncbus: publish rule fire", "error", err)
	}
}

// Subscribe registers fn to run for every sync progress message published
// on SyncProgressSubject. It returns a no-op unsubscribe function when the
// bus has no live connection.
func (b *Bus) Subscribe(fn func(sync.Progress)) (unsubscribe func(), err error) {
	if b.nc == nil {
		return func() {}, nil
	}
	sub, err := b.nc.Subscribe(SyncProgressSubject, func(msg *nats.Msg) {
		var p sync.Progress
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			b.logger.Error("syncbus: unmarshal sync progress", "error", err)
			return
		}
		fn(p)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}
