// Package dispatcher fans campaign lifecycle events out to notifiers over an
// in-process watermill pub/sub. Publishing never fails the caller: the ledger
// change that produced the event is already committed.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/bytedance/sonic"

	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/logging"
	"kvtogether_backend/internals/metrics"
)

const Topic = "campaign.events"

type Config struct {
	Buffer          int64
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Buffer:          256,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

type Dispatcher struct {
	cfg      Config
	pubsub   *gochannel.GoChannel
	notifier Notifier
	logger   watermill.LoggerAdapter

	startOnce sync.Once
	started   chan struct{}
}

func New(cfg Config, notifier Notifier) *Dispatcher {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	logger := newZerologAdapter(logging.WithComponent("notifications"))
	return &Dispatcher{
		cfg:      cfg,
		pubsub:   gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: cfg.Buffer}, logger),
		notifier: notifier,
		logger:   logger,
		started:  make(chan struct{}),
	}
}

// Publish hands ev to the router. Errors are logged and counted only.
func (d *Dispatcher) Publish(ctx context.Context, ev funding.Event) {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		metrics.NotificationsPublished.WithLabelValues(string(ev.Kind), "encode_error").Inc()
		logging.Ctx(ctx).Error().Err(err).Str("kind", string(ev.Kind)).Msg("encode notification")
		return
	}
	msg := message.NewMessage(ev.ID.String(), payload)
	msg.Metadata.Set("kind", string(ev.Kind))
	if rid := logging.RequestIDFromContext(ctx); rid != "" {
		msg.Metadata.Set("request_id", rid)
	}

	if err := d.pubsub.Publish(Topic, msg); err != nil {
		metrics.NotificationsPublished.WithLabelValues(string(ev.Kind), "publish_error").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("kind", string(ev.Kind)).Msg("publish notification")
		return
	}
	metrics.NotificationsPublished.WithLabelValues(string(ev.Kind), "ok").Inc()
}

func (d *Dispatcher) handle(msg *message.Message) error {
	var ev funding.Event
	if err := sonic.Unmarshal(msg.Payload, &ev); err != nil {
		// Poison payloads are dropped; retrying cannot fix them.
		d.logger.Error("decode notification", err, watermill.LogFields{"message_uuid": msg.UUID})
		return nil
	}
	ctx := msg.Context()
	if rid := msg.Metadata.Get("request_id"); rid != "" {
		ctx = logging.ContextWithRequestID(ctx, rid)
	}
	return d.notifier.Notify(ctx, ev)
}

func (d *Dispatcher) newRouter() (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, d.logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      d.cfg.MaxRetries,
			InitialInterval: d.cfg.InitialInterval,
			MaxInterval:     d.cfg.MaxInterval,
			Multiplier:      2,
			Logger:          d.logger,
		}.Middleware,
	)
	router.AddConsumerHandler("campaign-notifier", Topic, d.pubsub, d.handle)
	return router, nil
}

// Serve runs the router until ctx is done. It implements suture.Service.
func (d *Dispatcher) Serve(ctx context.Context) error {
	router, err := d.newRouter()
	if err != nil {
		return err
	}
	go func() {
		select {
		case <-router.Running():
			d.startOnce.Do(func() { close(d.started) })
		case <-ctx.Done():
		}
	}()
	if err := router.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("notification router: %w", err)
	}
	return ctx.Err()
}

// Started is closed once the first router is consuming.
func (d *Dispatcher) Started() <-chan struct{} { return d.started }

func (d *Dispatcher) Close() error { return d.pubsub.Close() }

func (d *Dispatcher) String() string { return "notification-dispatcher" }
