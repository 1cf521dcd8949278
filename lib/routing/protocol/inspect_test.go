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
	"testing"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/stretchr/testify/require"
)

// handshakePacket builds a packet with the given sequence number and payload.
func handshakePacket(seq uint8, payload []byte) []byte {
	return withHeader(payload, seq)
}

// clientResponse builds a client handshake response payload that leads with
// the capability flags.
func clientResponse(caps uint32) []byte {
	payload := binary.LittleEndian.AppendUint32(nil, caps)
	payload = binary.LittleEndian.AppendUint32(payload, 16*1024*1024)
	payload = append(payload, 0x08)
	payload = append(payload, make([]byte, 23)...)
	payload = append(payload, "someuser\x00"...)
	return payload
}

func TestInspectHandshake(t *testing.T) {
	tests := []struct {
		name      string
		buf       []byte
		curSeq    int
		wantSeq   int
		wantError bool
	}{
		{
			name:      "short read aborts",
			buf:       []byte{0x01, 0x00, 0x00},
			curSeq:    0,
			wantError: true,
		},
		{
			name:    "header only keeps sequence",
			buf:     []byte{0x00, 0x00, 0x00, 0x00},
			curSeq:  0,
			wantSeq: 0,
		},
		{
			name:    "server greeting",
			buf:     handshakePacket(0, []byte{0x0a, 0x35, 0x2e, 0x37}),
			curSeq:  0,
			wantSeq: 0,
		},
		{
			name:      "sequence break aborts",
			buf:       handshakePacket(9, []byte{0x0a}),
			curSeq:    1,
			wantError: true,
		},
		{
			name:    "server error completes handshake",
			buf:     ErrorPacket(2, mysql.ER_ACCESS_DENIED_ERROR, "Access denied"),
			curSeq:  1,
			wantSeq: HandshakeComplete,
		},
		{
			name:    "client response without ssl",
			buf:     handshakePacket(1, clientResponse(mysql.CLIENT_PROTOCOL_41)),
			curSeq:  0,
			wantSeq: 1,
		},
		{
			name:    "client ssl request completes handshake",
			buf:     handshakePacket(1, clientResponse(mysql.CLIENT_PROTOCOL_41|mysql.CLIENT_SSL)),
			curSeq:  0,
			wantSeq: HandshakeComplete,
		},
		{
			name:      "truncated capability flags abort",
			buf:       handshakePacket(1, []byte{0x0d, 0xa6}),
			curSeq:    0,
			wantError: true,
		},
		{
			name:    "second server packet advances sequence",
			buf:     handshakePacket(2, []byte{0x00, 0x00, 0x00}),
			curSeq:  1,
			wantSeq: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, err := InspectHandshake(tt.buf, tt.curSeq)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantSeq, seq)
		})
	}
}
