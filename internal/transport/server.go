// Package transport serves the public WebSocket endpoint: it upgrades
// incoming HTTP connections, clones a Receiver per client, pushes
// borrowed frames out over the wire protocol, and heartbeats idle
// connections.
package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/adred/ringcast/internal/metrics"
	"github.com/adred/ringcast/internal/ratelimit"
	"github.com/adred/ringcast/internal/resource"
	"github.com/adred/ringcast/internal/wire"
	"github.com/adred/ringcast/ringpool"
)

// acquireTimeout bounds how long a new connection waits for a free
// slot before being rejected.
const acquireTimeout = 5 * time.Second

// Config controls the transport server's admission and heartbeat
// behavior.
type Config struct {
	ListenAddr      string
	MaxConnections  int
	HeartbeatPeriod time.Duration
	HeartbeatWait   time.Duration
}

// Server accepts WebSocket connections and fans a pool's frames out to
// each one via its own cloned Receiver.
type Server struct {
	cfg      Config
	root     *ringpool.Receiver
	limiters *ratelimit.Limiters
	reg      *metrics.Registry
	guard    *resource.Guard
	log      zerolog.Logger

	httpServer *http.Server
	sem        chan struct{}
	connCount  atomic.Int64

	clients      sync.Map // map[*client]struct{}
	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

// New builds a transport server. root is the receiver every accepted
// connection clones from; it is never borrowed from directly. guard
// may be nil, in which case admission is governed only by the
// connection-count cap and the connect rate limiter.
func New(cfg Config, root *ringpool.Receiver, limiters *ratelimit.Limiters, reg *metrics.Registry, guard *resource.Guard, log zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		root:     root,
		limiters: limiters,
		reg:      reg,
		guard:    guard,
		log:      log,
		sem:      make(chan struct{}, cfg.MaxConnections),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.httpServer = &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	return s
}

// ListenAndServe blocks serving the WebSocket endpoint until Shutdown
// is called, returning http.ErrServerClosed in that case.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("transport: listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new connections, closes every live client
// (which in turn closes its cloned Receiver), and waits for their
// pumps to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)

	err := s.httpServer.Shutdown(ctx)

	s.clients.Range(func(key, _ any) bool {
		key.(*client).conn.Close()
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	return err
}

// client is one accepted connection's state: its socket, its own
// cloned Receiver, and the bookkeeping its two pumps share. pumpsLeft
// tracks both pumps exiting so the client can be safely recycled; it
// must never be returned to the pool while either pump might still
// touch its fields.
type client struct {
	conn       net.Conn
	receiver   *ringpool.Receiver
	id         int64
	lastSentTS uint64
	closeOnce  sync.Once
	pumpsLeft  atomic.Int32
}

var nextClientID int64

// clientPool recycles *client structs across connections, avoiding an
// allocation on every accept under high connection churn. A pooled
// client is only reused once both its pumps have exited via
// pumpExited.
var clientPool = sync.Pool{New: func() any { return new(client) }}

func acquireClient(conn net.Conn, receiver *ringpool.Receiver, id int64) *client {
	c := clientPool.Get().(*client)
	c.conn = conn
	c.receiver = receiver
	c.id = id
	c.lastSentTS = 0
	c.closeOnce = sync.Once{}
	c.pumpsLeft.Store(2)
	return c
}

// pumpExited marks one of the client's two pumps as finished; once
// both have, the client struct is returned to the pool.
func pumpExited(c *client) {
	if c.pumpsLeft.Add(-1) == 0 {
		c.conn = nil
		c.receiver = nil
		clientPool.Put(c)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	if !s.limiters.Connect.Allow() {
		http.Error(w, "connection rate limited", http.StatusTooManyRequests)
		return
	}

	if s.guard != nil {
		if accept, reason := s.guard.ShouldAccept(s.connCount.Load()); !accept {
			s.log.Warn().Str("reason", reason).Msg("transport: connection rejected by guard")
			http.Error(w, "server overloaded: "+reason, http.StatusServiceUnavailable)
			return
		}
	}

	select {
	case s.sem <- struct{}{}:
	case <-time.After(acquireTimeout):
		http.Error(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		<-s.sem
		s.log.Warn().Err(err).Msg("transport: websocket upgrade failed")
		return
	}

	receiver, err := s.root.Clone()
	if err != nil {
		s.writeCloseAndDrop(conn, "server at capacity: "+err.Error())
		<-s.sem
		return
	}

	c := acquireClient(conn, receiver, atomic.AddInt64(&nextClientID, 1))
	s.clients.Store(c, struct{}{})
	s.connCount.Add(1)
	s.reg.ActiveConnections.Inc()
	s.reg.ClonesTotal.Inc()

	s.wg.Add(2)
	go s.pushLoop(c)
	go s.readLoop(c)
}

// writeCloseAndDrop best-effort sends a MsgClose frame and closes a
// connection that never made it past admission (no cloned receiver
// to release).
func (s *Server) writeCloseAndDrop(conn net.Conn, reason string) {
	s.reg.CloneFailedTotal.Inc()
	if msg, err := wire.EncodeMessage(wire.MsgClose, 0, wire.CloseBody{Reason: reason}); err == nil {
		conn.SetWriteDeadline(time.Now().Add(acquireTimeout))
		_ = wsutil.WriteServerMessage(conn, ws.OpBinary, msg)
	}
	conn.Close()
}

func (s *Server) closeClient(c *client) {
	c.closeOnce.Do(func() {
		c.conn.Close()
		c.receiver.Close()
		s.clients.Delete(c)
		s.connCount.Add(-1)
		s.reg.ActiveConnections.Dec()
		<-s.sem
	})
}

// readLoop consumes client frames: MsgHeartbeat keeps the read
// deadline alive, MsgClose ends the connection, anything else is
// ignored.
func (s *Server) readLoop(c *client) {
	defer pumpExited(c)
	defer s.wg.Done()
	defer s.closeClient(c)

	c.conn.SetReadDeadline(time.Now().Add(s.cfg.HeartbeatWait))

	for {
		raw, op, err := wsutil.ReadClientData(c.conn)
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(s.cfg.HeartbeatWait))

		if op == ws.OpClose {
			return
		}
		if op != ws.OpBinary && op != ws.OpText {
			continue
		}

		h, _, err := wire.DecodeMessage(raw)
		if err != nil {
			s.log.Debug().Err(err).Int64("client_id", c.id).Msg("transport: malformed client frame")
			continue
		}

		switch h.MsgType {
		case wire.MsgClose:
			return
		case wire.MsgHeartbeat:
			// read deadline already refreshed above; nothing else to do.
		}
	}
}

// pushLoop borrows the latest frame on each heartbeat tick and, if it
// is newer than the last one sent, writes a MsgFrame; otherwise it
// writes a MsgHeartbeat so an idle feed still proves liveness to the
// client. A tick refused by the heartbeat rate limiter writes nothing.
func (s *Server) pushLoop(c *client) {
	defer pumpExited(c)
	defer s.wg.Done()
	defer s.closeClient(c)

	ticker := time.NewTicker(s.cfg.HeartbeatPeriod)
	defer ticker.Stop()

	msgID := uint32(0)

	for range ticker.C {
		if !s.limiters.Heartbeat.Allow() {
			continue
		}

		view, err := c.receiver.Borrow()
		if err != nil {
			s.reg.BorrowFailedTotal.Inc()
			if errors.Is(err, ringpool.ErrSenderClosed) {
				s.writeFrame(c, wire.MsgClose, wire.CloseBody{Reason: "upstream feed closed"}, &msgID)
				return
			}
			continue
		}
		s.reg.BorrowsTotal.Inc()

		data := make([]byte, len(view.Data))
		copy(data, view.Data)
		ts := view.Timestamp
		c.receiver.Release(view)

		if ts == c.lastSentTS {
			if !s.writeFrame(c, wire.MsgHeartbeat, struct{}{}, &msgID) {
				return
			}
			continue
		}
		c.lastSentTS = ts

		if !s.writeFrame(c, wire.MsgFrame, wire.FrameBody{Timestamp: ts, Data: data}, &msgID) {
			return
		}
	}
}

func (s *Server) writeFrame(c *client, msgType byte, body any, msgID *uint32) bool {
	*msgID++
	msg, err := wire.EncodeMessage(msgType, *msgID, body)
	if err != nil {
		s.log.Error().Err(err).Int64("client_id", c.id).Msg("transport: encode frame failed")
		return false
	}

	c.conn.SetWriteDeadline(time.Now().Add(s.cfg.HeartbeatWait))
	if err := wsutil.WriteServerMessage(c.conn, ws.OpBinary, msg); err != nil {
		s.log.Debug().Err(err).Int64("client_id", c.id).Msg("transport: write failed, dropping client")
		return false
	}
	return true
}

