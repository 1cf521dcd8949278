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
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gravitational/trace"

	"github.com/dbrelay/dbrelay/lib/utils"
)

// Mode selects the destination strategy of a route.
type Mode string

const (
	// ModeReadOnly selects destinations round-robin.
	ModeReadOnly Mode = "read-only"
	// ModeReadWrite walks destinations in order and fails over to the next
	// one only when the previous does not accept.
	ModeReadWrite Mode = "read-write"
)

// CheckAndSetDefaults validates the mode.
func (m Mode) CheckAndSetDefaults() error {
	switch m {
	case ModeReadOnly, ModeReadWrite:
		return nil
	}
	return trace.BadParameter("invalid mode; valid are %v and %v (was %q)", ModeReadWrite, ModeReadOnly, m)
}

// DestinationSet is an ordered list of backend endpoints with a selection
// strategy. The round-robin cursor is guarded by the set's own mutex so
// parallel session workers never race on it.
type DestinationSet struct {
	mu        sync.Mutex
	mode      Mode
	endpoints []utils.Endpoint
	cursor    int
	log       *slog.Logger
}

// NewDestinationSet returns an empty destination set for the given mode.
func NewDestinationSet(mode Mode, log *slog.Logger) *DestinationSet {
	return &DestinationSet{
		mode: mode,
		log:  log,
	}
}

// Add appends an endpoint to the set.
func (d *DestinationSet) Add(ep utils.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints = append(d.endpoints, ep)
}

// Len returns the number of endpoints.
func (d *DestinationSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.endpoints)
}

// Endpoints returns a snapshot of the configured endpoints.
func (d *DestinationSet) Endpoints() []utils.Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]utils.Endpoint, len(d.endpoints))
	copy(out, d.endpoints)
	return out
}

// Connect opens a TCP connection to a backend according to the strategy,
// spending at most connectTimeout per attempted endpoint. In read-only mode
// attempts start at the cursor, which advances by one before the call
// returns; in read-write mode attempts always start at index zero. Fails
// after one full pass over the set.
func (d *DestinationSet) Connect(connectTimeout time.Duration) (net.Conn, error) {
	endpoints, start := d.pick()
	if len(endpoints) == 0 {
		return nil, trace.NotFound("no destinations available")
	}
	for i := range endpoints {
		ep := endpoints[(start+i)%len(endpoints)]
		conn, err := net.DialTimeout("tcp", ep.String(), connectTimeout)
		if err != nil {
			d.log.Debug("Failed to connect to destination.", "destination", ep.String(), "error", err)
			continue
		}
		return conn, nil
	}
	return nil, trace.ConnectionProblem(nil, "no destination accepted the connection")
}

// pick snapshots the endpoint list and computes the starting index,
// advancing the round-robin cursor under the lock.
func (d *DestinationSet) pick() ([]utils.Endpoint, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.endpoints) == 0 {
		return nil, 0
	}
	endpoints := make([]utils.Endpoint, len(d.endpoints))
	copy(endpoints, d.endpoints)
	if d.mode != ModeReadOnly {
		return endpoints, 0
	}
	start := d.cursor % len(endpoints)
	d.cursor = (d.cursor + 1) % len(endpoints)
	return endpoints, start
}
