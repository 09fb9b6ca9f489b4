package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const defaultPublishTimeout = 5 * time.Second

// Fanout publishes events to the transport without ever blocking or failing
// the caller.
//
// Contract:
//   - Publish must be invoked only after the triggering store mutation has
//     committed.
//   - Each publish runs in its own goroutine with its own timeout context;
//     serialization or transport errors are logged and swallowed, never
//     retried in the request path.
//   - Wait drains in-flight publishes; the app calls it on shutdown and
//     tests call it before asserting.
type Fanout struct {
	log       *slog.Logger
	transport Transport
	timeout   time.Duration

	wg sync.WaitGroup
}

// Option configures the Fanout.
type Option func(*Fanout)

// WithPublishTimeout overrides the per-publish timeout.
func WithPublishTimeout(d time.Duration) Option {
	return func(f *Fanout) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFanout constructs a Fanout over the given transport.
func NewFanout(log *slog.Logger, transport Transport, opts ...Option) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	f := &Fanout{
		log:       log,
		transport: transport,
		timeout:   defaultPublishTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(f)
	}
	return f
}

// Publish sends event+payload to channel, fire-and-forget.
func (f *Fanout) Publish(channel, event string, payload any) {
	if f == nil || f.transport == nil || channel == "" || event == "" {
		return
	}

	data, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		publishFailures.WithLabelValues(event, "encode").Inc()
		f.log.Error("notify.publish.encode_fail", "channel", channel, "event", event, "err", err)
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()

		if err := f.transport.Publish(ctx, channel, data); err != nil {
			publishFailures.WithLabelValues(event, "transport").Inc()
			f.log.Warn("notify.publish.fail", "channel", channel, "event", event, "err", err)
			return
		}
		publishes.WithLabelValues(event).Inc()
		f.log.Debug("notify.publish.ok", "channel", channel, "event", event)
	}()
}

// Wait blocks until all in-flight publishes have finished.
func (f *Fanout) Wait() {
	if f == nil {
		return
	}
	f.wg.Wait()
}
