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

// Package defaults keeps default values shared between the routing engine,
// its configuration and the command line front end.
package defaults

import "time"

const (
	// MySQLPort is the standard MySQL server port, used when a destination
	// entry carries no explicit port.
	MySQLPort = 3306

	// BindAddress is the address the acceptor binds to when the
	// configuration names only a port.
	BindAddress = "0.0.0.0"

	// ListenBacklog is the nominal accept queue depth. net.Listen takes no
	// backlog argument, so this value is not passed to the kernel and the
	// system default applies.
	ListenBacklog = 20

	// DestinationConnectTimeout bounds a single backend connect attempt.
	DestinationConnectTimeout = time.Second

	// ClientConnectTimeout bounds client readiness during the handshake
	// phase of a session.
	ClientConnectTimeout = 9 * time.Second

	// MaxConnections is the default ceiling on concurrent sessions.
	MaxConnections = 512

	// MaxConnectErrors is the default per-source handshake failure budget
	// before the source is blocked.
	MaxConnectErrors = 100

	// NetBufferLength is the default splice buffer size in bytes.
	NetBufferLength = 16 * 1024

	// ABACRequestTimeout bounds a single permission check round trip.
	ABACRequestTimeout = 5 * time.Second
)

const (
	// MinNetBufferLength and MaxNetBufferLength bound net_buffer_length.
	MinNetBufferLength = 1024
	MaxNetBufferLength = 1048576

	// MinClientConnectTimeout and MaxClientConnectTimeout bound
	// client_connect_timeout, in seconds.
	MinClientConnectTimeout = 2
	MaxClientConnectTimeout = 31536000
)
