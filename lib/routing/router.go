/*
 * DBRelay
 * Copyright (C) 2026  DBRelay Authors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package routing implements the connection routing engine: a
// protocol-aware TCP reverse proxy for the MySQL client protocol with
// admission control, per-source blocking and out-of-band permission checks.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/dbrelay/dbrelay/lib/abac"
	"github.com/dbrelay/dbrelay/lib/defaults"
	"github.com/dbrelay/dbrelay/lib/fabric"
	"github.com/dbrelay/dbrelay/lib/routing/protocol"
	"github.com/dbrelay/dbrelay/lib/utils"
)

// Router accepts MySQL client connections on a bound address and proxies
// each to a backend picked from the destination set. One acceptor task, one
// worker task per session, one drainer task for revalidation events.
type Router struct {
	cfg *Config
	log *slog.Logger

	destinations *DestinationSet
	blockList    *BlockList
	registry     *SessionRegistry
	policy       *abac.Client

	mu       sync.Mutex
	listener net.Listener

	stopping atomic.Bool
	active   atomic.Int32
	handled  atomic.Uint64

	revalidateCh chan struct{}
}

// New builds a router from the configuration: resolves the destination set
// from CSV or a fabric cache URI, verifies the bind endpoint is not among
// the destinations and constructs the policy client. The router refuses to
// construct without a working policy client when the check is enabled.
func New(cfg Config) (*Router, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	registerMetrics()

	destinations := NewDestinationSet(cfg.Mode, cfg.Logger)
	var endpoints []utils.Endpoint
	var err error
	if fabric.IsFabricURI(cfg.Destinations) {
		endpoints, err = fabric.ResolveURI(cfg.Destinations)
	} else {
		endpoints, err = utils.ParseEndpointsCSV(cfg.Destinations, defaults.MySQLPort)
	}
	if err != nil {
		return nil, trace.Wrap(err)
	}
	for _, ep := range endpoints {
		if ep.Equal(cfg.BindEndpoint()) {
			return nil, trace.BadParameter("bind address can not be part of destinations")
		}
		destinations.Add(ep)
	}
	if destinations.Len() == 0 {
		return nil, trace.BadParameter("no destinations available")
	}

	policy, err := abac.NewClient(cfg.ABAC)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	return &Router{
		cfg:          &cfg,
		log:          cfg.Logger,
		destinations: destinations,
		blockList:    NewBlockList(uint64(cfg.MaxConnectErrors), cfg.Logger),
		registry:     NewSessionRegistry(cfg.Logger),
		policy:       policy,
		revalidateCh: make(chan struct{}, 1),
	}, nil
}

// Serve binds the listen endpoint and runs the admission loop until Stop is
// called or the context ends. Bind and listen failures are returned to the
// caller; accept failures are logged and the loop keeps going.
func (r *Router) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", r.cfg.BindEndpoint().String())
	if err != nil {
		return trace.Wrap(err, "setting up service using %s", r.cfg.BindEndpoint().String())
	}
	return r.ServeListener(ctx, listener)
}

// ServeListener runs the admission loop on an already bound listener.
func (r *Router) ServeListener(ctx context.Context, listener net.Listener) error {
	r.mu.Lock()
	r.listener = listener
	r.mu.Unlock()
	defer listener.Close()

	// Closing the listener when the context ends unblocks Accept.
	stopOnDone := context.AfterFunc(ctx, func() { listener.Close() })
	defer stopOnDone()

	go r.drainRevalidations(ctx)

	r.log.InfoContext(ctx, "Listening.",
		"address", listener.Addr().String(),
		"mode", string(r.cfg.Mode))

	for !r.stopping.Load() {
		conn, err := listener.Accept()
		if err != nil {
			if r.stopping.Load() || ctx.Err() != nil {
				break
			}
			r.log.ErrorContext(ctx, "Failed to accept client connection.", "error", err)
			continue
		}
		r.admit(ctx, conn)
	}

	r.log.InfoContext(ctx, "Stopped.")
	return nil
}

// admit runs the admission checks on a freshly accepted connection and
// spawns a session worker when they pass.
func (r *Router) admit(ctx context.Context, conn net.Conn) {
	sourceKey, err := utils.SourceKeyFromAddr(conn.RemoteAddr())
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to resolve client address.", "error", err)
		pkt := protocol.ErrorPacket(0, mysql.ER_OUT_OF_RESOURCES, "Out of resources (please check logs)")
		if err := protocol.WritePacket(conn, pkt); err != nil {
			r.log.DebugContext(ctx, "Write error.", "error", err)
		}
		conn.Close()
		return
	}

	// Sources over their failure budget are turned away before any
	// session state is created.
	if r.blockList.Exceeded(sourceKey) {
		rejectedSessions.WithLabelValues(r.cfg.Name, rejectReasonBlocked).Inc()
		pkt := protocol.ErrorPacket(0, mysql.ER_HOST_IS_BLOCKED,
			fmt.Sprintf("Too many connection errors from %s", sourceKey.String()))
		if err := protocol.WritePacket(conn, pkt); err != nil {
			r.log.DebugContext(ctx, "Write error.", "error", err)
		}
		conn.Close()
		return
	}

	if int64(r.active.Load()) >= r.cfg.MaxConnections {
		rejectedSessions.WithLabelValues(r.cfg.Name, rejectReasonMaxConnections).Inc()
		pkt := protocol.ErrorPacket(0, mysql.ER_CON_COUNT_ERROR, "Too many connections")
		if err := protocol.WritePacket(conn, pkt); err != nil {
			r.log.DebugContext(ctx, "Write error.", "error", err)
		}
		conn.Close()
		r.log.WarnContext(ctx, "Reached max active connections.", "max_connections", r.cfg.MaxConnections)
		return
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			r.log.ErrorContext(ctx, "Failed to set TCP_NODELAY.", "error", err)
			conn.Close()
			return
		}
	}

	r.active.Add(1)
	activeSessions.WithLabelValues(r.cfg.Name).Inc()
	go r.handleConnection(ctx, conn, sourceKey)
}

// handleConnection is the session worker: it opens the backend, performs the
// policy check, registers the session, runs the splice and cleans up.
func (r *Router) handleConnection(ctx context.Context, clientConn net.Conn, sourceKey utils.SourceKey) {
	sessionID := uuid.New()
	log := r.log.With("session_id", sessionID)
	defer func() {
		r.active.Add(-1)
		activeSessions.WithLabelValues(r.cfg.Name).Dec()
	}()

	serverConn, err := r.destinations.Connect(r.cfg.connectTimeout())
	if err != nil {
		// The backend is at fault here, not the client, so the source's
		// failure budget is untouched.
		log.WarnContext(ctx, "Can't connect to MySQL server.", "error", err)
		rejectedSessions.WithLabelValues(r.cfg.Name, rejectReasonNoBackend).Inc()
		pkt := protocol.ErrorPacket(0, protocol.ErrCannotConnect, "Can't connect to MySQL server")
		if err := protocol.WritePacket(clientConn, pkt); err != nil {
			log.DebugContext(ctx, "Write error.", "error", err)
		}
		clientConn.Close()
		return
	}

	clientIP, clientPort := peerAddr(clientConn)
	if !r.policy.Permitted(ctx, clientIP, clientPort) {
		msg := fmt.Sprintf("Can't connect to remote MySQL server for client '%s', ABAC check failure.",
			r.cfg.BindEndpoint().String())
		log.WarnContext(ctx, "Session denied by policy.", "client_ip", clientIP, "client_port", clientPort)
		rejectedSessions.WithLabelValues(r.cfg.Name, rejectReasonPolicy).Inc()
		pkt := protocol.ErrorPacket(0, protocol.ErrCannotConnect, msg)
		if err := protocol.WritePacket(clientConn, pkt); err != nil {
			log.DebugContext(ctx, "Write error.", "error", err)
		}
		clientConn.Close()
		serverConn.Close()
		return
	}
	if r.cfg.ABAC.Enabled {
		r.registry.Add(sessionID, clientIP, clientPort, clientConn)
		defer r.registry.Remove(sessionID)
	}

	r.handled.Add(1)
	handledSessions.WithLabelValues(r.cfg.Name).Inc()
	log.DebugContext(ctx, "Routing started.",
		"client", clientConn.RemoteAddr().String(),
		"server", serverConn.RemoteAddr().String())

	s := &session{
		id:               sessionID,
		log:              log,
		clientConn:       clientConn,
		serverConn:       serverConn,
		bufferLength:     int(r.cfg.NetBufferLength),
		handshakeTimeout: r.cfg.clientConnectTimeout(),
		startedAt:        r.cfg.Clock.Now(),
	}
	handshakeDone, extraMsg := s.run()

	if !handshakeDone {
		log.DebugContext(ctx, "Routing failed.", "client", clientIP, "detail", extraMsg)
		r.blockList.NoteFailure(ctx, sourceKey, clientIP, serverConn)
		blockedHosts.WithLabelValues(r.cfg.Name).Set(float64(len(r.blockList.Snapshot())))
	}

	clientConn.Close()
	serverConn.Close()
	log.DebugContext(ctx, "Routing stopped.",
		"bytes_up", s.bytesUp.Load(),
		"bytes_down", s.bytesDown.Load(),
		"detail", extraMsg)
}

// drainRevalidations serves revalidation events until the context ends. The
// out-of-band trigger (a process signal or an administrative call) only
// enqueues; the sweep runs here.
func (r *Router) drainRevalidations(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.revalidateCh:
			r.log.InfoContext(ctx, "Revalidating connections.")
			r.registry.Revalidate(ctx, r.policy.Permitted)
		}
	}
}

// Revalidate schedules a sweep over live sessions that force-closes those
// whose permission has been revoked. Safe to call from signal handlers and
// concurrent tasks; coalesces when a sweep is already pending.
func (r *Router) Revalidate() {
	select {
	case r.revalidateCh <- struct{}{}:
	default:
	}
}

// Stop asks the admission loop to stop. In-flight sessions drain naturally.
func (r *Router) Stop() {
	r.stopping.Store(true)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener != nil {
		r.listener.Close()
	}
}

// Stopping reports whether Stop was called.
func (r *Router) Stopping() bool {
	return r.stopping.Load()
}

// Active returns the number of live sessions.
func (r *Router) Active() int {
	return int(r.active.Load())
}

// Handled returns the total number of sessions that reached a backend and
// passed the policy check. Sessions rejected before that are not counted.
func (r *Router) Handled() uint64 {
	return r.handled.Load()
}

// Addr returns the bound listen address, or nil before Serve.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Mode returns the route's destination strategy.
func (r *Router) Mode() Mode {
	return r.cfg.Mode
}

// BlockedHosts returns a snapshot of the blocked sources.
func (r *Router) BlockedHosts() []utils.SourceKey {
	return r.blockList.Snapshot()
}

// peerAddr splits a connection's remote address into IP string and port.
func peerAddr(conn net.Conn) (string, int) {
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return tcpAddr.IP.String(), tcpAddr.Port
	}
	host, port, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String(), 0
	}
	p, _ := utils.ParsePort(port)
	return host, int(p)
}
