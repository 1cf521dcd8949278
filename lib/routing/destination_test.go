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
	"net"
	"testing"
	"time"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	"github.com/dbrelay/dbrelay/lib/utils"
)

// testBackend is a listener that accepts and holds connections open.
type testBackend struct {
	listener net.Listener
	endpoint utils.Endpoint
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			t.Cleanup(func() { conn.Close() })
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	return &testBackend{
		listener: listener,
		endpoint: utils.NewEndpoint("127.0.0.1", uint16(addr.Port)),
	}
}

func remoteEndpoint(t *testing.T, conn net.Conn) utils.Endpoint {
	t.Helper()
	addr := conn.RemoteAddr().(*net.TCPAddr)
	return utils.NewEndpoint(addr.IP.String(), uint16(addr.Port))
}

func TestRoundRobinFairness(t *testing.T) {
	backends := []*testBackend{
		newTestBackend(t), newTestBackend(t), newTestBackend(t),
	}
	set := NewDestinationSet(ModeReadOnly, testLogger())
	for _, b := range backends {
		set.Add(b.endpoint)
	}

	counts := make(map[utils.Endpoint]int)
	for range 6 {
		conn, err := set.Connect(time.Second)
		require.NoError(t, err)
		counts[remoteEndpoint(t, conn)]++
		conn.Close()
	}
	for _, b := range backends {
		require.Equal(t, 2, counts[b.endpoint])
	}
}

func TestRoundRobinSkipsDeadEndpoint(t *testing.T) {
	dead := newTestBackend(t)
	dead.listener.Close()
	alive := newTestBackend(t)

	set := NewDestinationSet(ModeReadOnly, testLogger())
	set.Add(dead.endpoint)
	set.Add(alive.endpoint)

	for range 4 {
		conn, err := set.Connect(time.Second)
		require.NoError(t, err)
		require.Equal(t, alive.endpoint, remoteEndpoint(t, conn))
		conn.Close()
	}
}

func TestFailoverOrder(t *testing.T) {
	primary := newTestBackend(t)
	fallback := newTestBackend(t)

	set := NewDestinationSet(ModeReadWrite, testLogger())
	set.Add(primary.endpoint)
	set.Add(fallback.endpoint)

	// Primary accepts: every selection goes to it.
	for range 3 {
		conn, err := set.Connect(time.Second)
		require.NoError(t, err)
		require.Equal(t, primary.endpoint, remoteEndpoint(t, conn))
		conn.Close()
	}

	// Primary goes down: selection fails over to the next in order.
	primary.listener.Close()
	conn, err := set.Connect(time.Second)
	require.NoError(t, err)
	require.Equal(t, fallback.endpoint, remoteEndpoint(t, conn))
	conn.Close()

	// Primary comes back on the same port: selection returns to it, not
	// to the fallback.
	listener, err := net.Listen("tcp", primary.endpoint.String())
	require.NoError(t, err)
	defer listener.Close()
	go func() {
		for {
			c, err := listener.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()
	conn, err = set.Connect(time.Second)
	require.NoError(t, err)
	require.Equal(t, primary.endpoint, remoteEndpoint(t, conn))
	conn.Close()
}

func TestConnectFailsAfterFullPass(t *testing.T) {
	dead := newTestBackend(t)
	dead.listener.Close()

	set := NewDestinationSet(ModeReadWrite, testLogger())
	set.Add(dead.endpoint)

	_, err := set.Connect(time.Second)
	require.Error(t, err)
	require.True(t, trace.IsConnectionProblem(err))
}

func TestConnectEmptySet(t *testing.T) {
	set := NewDestinationSet(ModeReadOnly, testLogger())
	_, err := set.Connect(time.Second)
	require.True(t, trace.IsNotFound(err))
}
