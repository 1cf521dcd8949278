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

package protocol

import (
	"encoding/binary"
	"io"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/gravitational/trace"
)

const (
	// packetHeaderSize is the MySQL packet header size: 3-byte little-endian
	// payload length plus 1-byte sequence number.
	packetHeaderSize = 4

	// packetTypeSize is the size of the command/response type byte.
	packetTypeSize = 1

	// packetHeaderAndTypeSize is the combined size of the packet header and
	// the type byte.
	packetHeaderAndTypeSize = packetHeaderSize + packetTypeSize
)

// ErrCannotConnect is the client-side "Can't connect to MySQL server" code.
// go-mysql ships only server-side ER codes so the CR code is kept here.
const ErrCannotConnect uint16 = 2003

// ErrorPacket synthesizes a protocol 4.1 ERR packet carrying the given error
// code and message, with the generic HY000 SQL state:
//
//	length(3) | seq(1) | 0xff | code(2 LE) | '#' | state(5) | message
func ErrorPacket(seq uint8, code uint16, message string) []byte {
	payload := make([]byte, 0, packetTypeSize+2+1+5+len(message))
	payload = append(payload, mysql.ERR_HEADER)
	payload = binary.LittleEndian.AppendUint16(payload, code)
	payload = append(payload, '#')
	payload = append(payload, mysql.DEFAULT_MYSQL_STATE...)
	payload = append(payload, message...)
	return withHeader(payload, seq)
}

// fake handshake response fields, written to a backend whose client is being
// rejected so the backend observes a protocol-level close instead of a reset.
const (
	fakeUser     = "ROUTER"
	fakeDatabase = "fake_router_login"

	fakeMaxPacketSize = 16 * 1024 * 1024
	fakeCharset       = 0x08 // latin1
)

// FakeHandshakeResponse synthesizes a client handshake response with a fixed
// username, an empty auth response and a filler database name. Sequence
// number is 1, the position of a real client's reply to the server greeting.
func FakeHandshakeResponse() []byte {
	caps := uint32(mysql.CLIENT_PROTOCOL_41 | mysql.CLIENT_LONG_PASSWORD |
		mysql.CLIENT_CONNECT_WITH_DB | mysql.CLIENT_SECURE_CONNECTION)

	payload := make([]byte, 0, 64)
	payload = binary.LittleEndian.AppendUint32(payload, caps)
	payload = binary.LittleEndian.AppendUint32(payload, fakeMaxPacketSize)
	payload = append(payload, fakeCharset)
	payload = append(payload, make([]byte, 23)...)
	payload = append(payload, fakeUser...)
	payload = append(payload, 0x00)
	payload = append(payload, 0x00) // zero-length auth response
	payload = append(payload, fakeDatabase...)
	payload = append(payload, 0x00)
	return withHeader(payload, 1)
}

// withHeader prepends the 4-byte packet header to a payload.
func withHeader(payload []byte, seq uint8) []byte {
	pkt := make([]byte, 0, packetHeaderSize+len(payload))
	pkt = append(pkt,
		byte(len(payload)),
		byte(len(payload)>>8),
		byte(len(payload)>>16),
		seq)
	return append(pkt, payload...)
}

// WritePacket writes the whole packet to the connection, retrying short
// writes. A partial or failed write is returned as an error.
func WritePacket(w io.Writer, pkt []byte) error {
	for len(pkt) > 0 {
		n, err := w.Write(pkt)
		if err != nil {
			return trace.ConvertSystemError(err)
		}
		pkt = pkt[n:]
	}
	return nil
}
