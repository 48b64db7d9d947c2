// Package feed subscribes to the upstream NATS subject carrying raw
// frames and is the sole caller of Sender.Publish, giving the core's
// single-producer contract a concrete upstream. It uses a plain
// subscription rather than JetStream, since the pool is explicitly
// lossy and has no replay concept for JetStream's ack/redelivery
// machinery to serve.
package feed

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/adred/ringcast/internal/metrics"
	"github.com/adred/ringcast/ringpool"
)

// wireHeaderSize is the length of the timestamp prefix on every NATS
// message body: an 8-byte little-endian monotonic timestamp followed
// by exactly bufsize bytes of frame payload.
const wireHeaderSize = 8

// feedWorkers and feedQueueSize size the dispatch pool between the
// NATS client's delivery goroutine and Sender.Publish. A single worker
// keeps Publish calls serial, as the single-producer contract needs.
const (
	feedWorkers   = 1
	feedQueueSize = 1024
)

// Feed publishes every message received on a NATS subject into a pool
// via its Sender.
type Feed struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	sender  *ringpool.Sender
	bufsize int
	log     zerolog.Logger
	reg     *metrics.Registry
	pool    *workerPool
}

// Connect dials the NATS URL and returns a Feed ready to Start.
func Connect(url string, sender *ringpool.Sender, bufsize int, reg *metrics.Registry, log zerolog.Logger) (*Feed, error) {
	nc, err := nats.Connect(url, nats.MaxReconnects(5))
	if err != nil {
		return nil, fmt.Errorf("feed: connect %s: %w", url, err)
	}
	return &Feed{
		nc:      nc,
		sender:  sender,
		bufsize: bufsize,
		log:     log,
		reg:     reg,
		pool:    newWorkerPool(feedWorkers, feedQueueSize),
	}, nil
}

// Start subscribes to subject and publishes every well-formed message
// into the pool. Malformed messages (wrong length) are logged and
// dropped rather than propagated: a feed-level parsing error is not
// a core contract violation.
func (f *Feed) Start(subject string) error {
	sub, err := f.nc.Subscribe(subject, func(msg *nats.Msg) {
		if len(msg.Data) != wireHeaderSize+f.bufsize {
			f.log.Warn().
				Int("got_len", len(msg.Data)).
				Int("want_len", wireHeaderSize+f.bufsize).
				Msg("feed: dropping malformed frame message")
			return
		}

		ts := binary.LittleEndian.Uint64(msg.Data[:wireHeaderSize])
		payload := append([]byte(nil), msg.Data[wireHeaderSize:]...)

		f.pool.submit(func() {
			start := time.Now()
			err := f.sender.Publish(payload, ts)
			f.reg.PublishSeconds.Observe(time.Since(start).Seconds())
			if err != nil {
				f.reg.PublishFailedTotal.Inc()
				f.log.Debug().Err(err).Msg("feed: publish skipped")
				return
			}
			f.reg.PublishesTotal.Inc()
		})
	})
	if err != nil {
		return fmt.Errorf("feed: subscribe %s: %w", subject, err)
	}
	f.sub = sub
	f.log.Info().Str("subject", subject).Msg("feed: subscribed")
	return nil
}

// Stop unsubscribes, drains and stops the dispatch pool, and closes
// the NATS connection.
func (f *Feed) Stop() {
	if f.sub != nil {
		_ = f.sub.Unsubscribe()
	}
	f.pool.stop()
	f.nc.Close()
	if dropped := f.pool.droppedCount(); dropped > 0 {
		f.log.Warn().Int64("dropped", dropped).Msg("feed: dispatch pool dropped messages while running")
	}
}

// EncodeMessage builds a NATS message body for a frame: useful for
// the companion publisher side and for tests.
func EncodeMessage(ts uint64, payload []byte) []byte {
	buf := make([]byte, wireHeaderSize+len(payload))
	binary.LittleEndian.PutUint64(buf[:wireHeaderSize], ts)
	copy(buf[wireHeaderSize:], payload)
	return buf
}
