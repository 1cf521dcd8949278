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
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
)

// registryEntry ties a live session's client connection to the source
// address the policy was checked against.
type registryEntry struct {
	sessionID  uuid.UUID
	sourceIP   string
	sourcePort int
	clientConn net.Conn
}

// SessionRegistry tracks live sessions so an external revalidation signal
// can re-check their permission and tear down the revoked ones. Sessions add
// themselves after admission and remove themselves on every exit path; the
// revalidation sweep only closes sockets, it never removes entries.
type SessionRegistry struct {
	mu      sync.Mutex
	entries []registryEntry
	log     *slog.Logger
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry(log *slog.Logger) *SessionRegistry {
	return &SessionRegistry{log: log}
}

// Add registers a live session.
func (r *SessionRegistry) Add(sessionID uuid.UUID, sourceIP string, sourcePort int, clientConn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, registryEntry{
		sessionID:  sessionID,
		sourceIP:   sourceIP,
		sourcePort: sourcePort,
		clientConn: clientConn,
	})
}

// Remove drops the session from the registry. Safe to call for sessions that
// were never added.
func (r *SessionRegistry) Remove(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].sessionID == sessionID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Revalidate re-checks every live session against the permission function
// and closes the client socket of each session that is no longer permitted.
// Closing unblocks the owning worker's splice loop; the worker removes its
// own entry during teardown.
func (r *SessionRegistry) Revalidate(ctx context.Context, permitted func(ctx context.Context, ip string, port int) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if permitted(ctx, entry.sourceIP, entry.sourcePort) {
			continue
		}
		r.log.WarnContext(ctx, "Invalidating connection.",
			"session_id", entry.sessionID,
			"source_ip", entry.sourceIP,
			"source_port", entry.sourcePort)
		if err := entry.clientConn.Close(); err != nil {
			r.log.DebugContext(ctx, "Failed to close client connection.", "error", err)
		}
	}
}
