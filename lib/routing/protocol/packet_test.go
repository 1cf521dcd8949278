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
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/stretchr/testify/require"
)

func TestErrorPacket(t *testing.T) {
	tests := []struct {
		name    string
		seq     uint8
		code    uint16
		message string
	}{
		{name: "too many connections", seq: 0, code: mysql.ER_CON_COUNT_ERROR, message: "Too many connections"},
		{name: "host blocked", seq: 0, code: mysql.ER_HOST_IS_BLOCKED, message: "Too many connection errors from ::1"},
		{name: "out of resources", seq: 0, code: mysql.ER_OUT_OF_RESOURCES, message: "Out of resources (please check logs)"},
		{name: "cannot connect", seq: 2, code: ErrCannotConnect, message: "Can't connect to MySQL server"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt := ErrorPacket(tt.seq, tt.code, tt.message)

			payloadLen := int(pkt[0]) | int(pkt[1])<<8 | int(pkt[2])<<16
			require.Len(t, pkt, packetHeaderSize+payloadLen)
			require.Equal(t, tt.seq, pkt[3])
			require.Equal(t, mysql.ERR_HEADER, pkt[4])
			require.Equal(t, tt.code, binary.LittleEndian.Uint16(pkt[5:7]))
			require.Equal(t, byte('#'), pkt[7])
			require.Equal(t, "HY000", string(pkt[8:13]))
			require.Equal(t, tt.message, string(pkt[13:]))
		})
	}
}

func TestFakeHandshakeResponse(t *testing.T) {
	pkt := FakeHandshakeResponse()

	payloadLen := int(pkt[0]) | int(pkt[1])<<8 | int(pkt[2])<<16
	require.Len(t, pkt, packetHeaderSize+payloadLen)
	require.EqualValues(t, 1, pkt[3])

	payload := pkt[packetHeaderSize:]
	caps := binary.LittleEndian.Uint32(payload[0:4])
	require.NotZero(t, caps&mysql.CLIENT_PROTOCOL_41)
	require.Zero(t, caps&mysql.CLIENT_SSL)

	// Fixed username, no credentials, filler database name.
	require.True(t, bytes.Contains(payload, []byte("ROUTER\x00")))
	require.True(t, bytes.Contains(payload, []byte("fake_router_login\x00")))

	// The 23-byte filler after capabilities, max packet size and charset
	// must be all zero.
	require.Equal(t, make([]byte, 23), payload[9:32])
	require.Equal(t, "ROUTER", string(payload[32:38]))
	// Zero-length auth response between username and database.
	require.Equal(t, byte(0x00), payload[38])
	require.Equal(t, byte(0x00), payload[39])
}

// shortWriter writes at most one byte per call, exercising the short-write
// retry in WritePacket.
type shortWriter struct {
	written bytes.Buffer
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.written.WriteByte(p[0])
	return 1, nil
}

func TestWritePacketRetriesShortWrites(t *testing.T) {
	pkt := ErrorPacket(0, mysql.ER_CON_COUNT_ERROR, "Too many connections")
	w := &shortWriter{}
	require.NoError(t, WritePacket(w, pkt))
	require.Equal(t, pkt, w.written.Bytes())
}
