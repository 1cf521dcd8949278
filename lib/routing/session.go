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

package routing

import (
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/dbrelay/dbrelay/lib/routing/protocol"
	"github.com/dbrelay/dbrelay/lib/utils"
)

// session proxies one client connection to one backend connection. The
// worker owns both sockets; anything else wanting to end the session closes
// the client socket, which surfaces here as a read error.
type session struct {
	id         uuid.UUID
	log        *slog.Logger
	clientConn net.Conn
	serverConn net.Conn

	bufferLength     int
	handshakeTimeout time.Duration

	startedAt time.Time
	bytesUp   atomic.Uint64 // server to client
	bytesDown atomic.Uint64 // client to server
}

// run drives the session: handshake inspection first, opaque splice after.
// It returns whether the handshake completed; a false return is a handshake
// failure chargeable to the client. extraMsg carries the failure detail for
// the teardown log line.
func (s *session) run() (handshakeDone bool, extraMsg string) {
	buf := make([]byte, s.bufferLength)
	seq := 0

	// Handshake phase. The server always talks first, so reads alternate
	// server to client then client to server until the inspector reports
	// completion.
	for {
		n, err := s.copyPacket(s.serverConn, s.clientConn, buf, &seq)
		if err != nil {
			return false, describeCopyError("server-client", err)
		}
		s.bytesUp.Add(uint64(n))
		if seq == protocol.HandshakeComplete {
			break
		}

		n, err = s.copyPacket(s.clientConn, s.serverConn, buf, &seq)
		if err != nil {
			return false, describeCopyError("client-server", err)
		}
		s.bytesDown.Add(uint64(n))
		if seq == protocol.HandshakeComplete {
			break
		}
	}

	// Inspection is over; clear the handshake deadlines and splice bytes
	// until either side closes.
	if err := s.clearDeadlines(); err != nil {
		return true, describeCopyError("deadline", err)
	}
	return true, s.splice()
}

// copyPacket performs one handshake-phase transfer: read one region from
// src under the handshake deadline, validate its framing, write it through
// to dst. seq is updated with the inspector's decision.
func (s *session) copyPacket(src, dst net.Conn, buf []byte, seq *int) (int, error) {
	if err := src.SetReadDeadline(time.Now().Add(s.handshakeTimeout)); err != nil {
		return 0, trace.ConvertSystemError(err)
	}
	n, err := src.Read(buf)
	if err != nil {
		return 0, trace.ConvertSystemError(err)
	}

	newSeq, err := protocol.InspectHandshake(buf[:n], *seq)
	if err != nil {
		return 0, trace.Wrap(err)
	}
	*seq = newSeq

	if err := protocol.WritePacket(dst, buf[:n]); err != nil {
		return 0, trace.Wrap(err)
	}
	return n, nil
}

// clearDeadlines removes the handshake read deadlines from both sockets.
func (s *session) clearDeadlines() error {
	if err := s.clientConn.SetReadDeadline(time.Time{}); err != nil {
		return trace.ConvertSystemError(err)
	}
	if err := s.serverConn.SetReadDeadline(time.Time{}); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

// splice runs the post-handshake double-copy loop. Both directions run until
// one side closes; the first close tears down both sockets, which ends the
// other direction.
func (s *session) splice() string {
	errCh := make(chan error, 2)

	go func() {
		defer s.clientConn.Close()
		defer s.serverConn.Close()
		n, err := io.CopyBuffer(s.clientConn, s.serverConn, make([]byte, s.bufferLength))
		s.bytesUp.Add(uint64(n))
		errCh <- err
	}()
	go func() {
		defer s.clientConn.Close()
		defer s.serverConn.Close()
		n, err := io.CopyBuffer(s.serverConn, s.clientConn, make([]byte, s.bufferLength))
		s.bytesDown.Add(uint64(n))
		errCh <- err
	}()

	extraMsg := ""
	for range 2 {
		if err := <-errCh; err != nil && !utils.IsOKNetworkError(err) {
			extraMsg = err.Error()
		}
	}
	return extraMsg
}

// describeCopyError renders a handshake-phase failure for the teardown log,
// distinguishing the readiness timeout the way operators expect to see it.
func describeCopyError(direction string, err error) string {
	if utils.IsTimeoutError(err) {
		return "wait for " + direction + " timed out"
	}
	return "copy " + direction + " failed: " + err.Error()
}
