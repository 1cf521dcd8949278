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
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"

	"github.com/dbrelay/dbrelay/lib/routing/protocol"
	"github.com/dbrelay/dbrelay/lib/utils"
)

// BlockList counts handshake failures per source and marks sources whose
// count reached the configured threshold as blocked. NoteFailure is the only
// writer; admission reads go through Exceeded.
type BlockList struct {
	mu        sync.Mutex
	counters  map[utils.SourceKey]uint64
	blocked   map[utils.SourceKey]struct{}
	maxErrors uint64
	log       *slog.Logger
}

// NewBlockList returns an empty block list with the given failure budget.
func NewBlockList(maxErrors uint64, log *slog.Logger) *BlockList {
	return &BlockList{
		counters:  make(map[utils.SourceKey]uint64),
		blocked:   make(map[utils.SourceKey]struct{}),
		maxErrors: maxErrors,
		log:       log,
	}
}

// NoteFailure records one handshake failure for the source and reports
// whether the source is now blocked. When server is non-nil a synthesized
// handshake response is written to it, best effort, so the backend observes
// a clean protocol close instead of a bare reset.
func (b *BlockList) NoteFailure(ctx context.Context, key utils.SourceKey, sourceStr string, server net.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counters[key]++
	blocked := b.counters[key] >= b.maxErrors
	if blocked {
		b.blocked[key] = struct{}{}
		b.log.WarnContext(ctx, fmt.Sprintf("blocking client host %s", sourceStr))
	} else {
		b.log.InfoContext(ctx, fmt.Sprintf("%d authentication errors for %s (max %d)",
			b.counters[key], sourceStr, b.maxErrors))
	}

	if server != nil {
		if err := protocol.WritePacket(server, protocol.FakeHandshakeResponse()); err != nil {
			b.log.DebugContext(ctx, "Failed to write fake handshake response.", "error", err)
		}
	}
	return blocked
}

// Exceeded reports whether the source already spent its failure budget. This
// is the admission-time fast path; it does not mutate anything.
func (b *BlockList) Exceeded(key utils.SourceKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters[key] >= b.maxErrors
}

// Count returns the current failure count for the source.
func (b *BlockList) Count(key utils.SourceKey) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters[key]
}

// Snapshot returns the blocked sources in byte order of their keys.
func (b *BlockList) Snapshot() []utils.SourceKey {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]utils.SourceKey, 0, len(b.blocked))
	for key := range b.blocked {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i][:]) < string(out[j][:])
	})
	return out
}
