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
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/gravitational/trace"
)

// HandshakeComplete is the sequence number at which handshake inspection
// stops and the session becomes an opaque byte splicer.
const HandshakeComplete = 2

// InspectHandshake validates one handshake-phase read. buf holds the freshly
// filled region of the splice buffer, curSeq the sequence number recorded by
// the previous inspection (zero before any packet was seen).
//
// It returns the new sequence number to record. A returned sequence of
// HandshakeComplete means inspection is over: either the server answered with
// an ERR packet, or the client asked to switch to TLS. Framing violations
// (short reads, sequence breaks, truncated capability words) are returned as
// errors and must abort the session.
func InspectHandshake(buf []byte, curSeq int) (int, error) {
	if len(buf) < packetHeaderSize {
		return curSeq, trace.BadParameter("handshake packet too short: %d bytes", len(buf))
	}
	seq := int(buf[3])
	if curSeq > 0 && seq != curSeq+1 {
		return curSeq, trace.BadParameter("incorrect packet sequence number: %d after %d", seq, curSeq)
	}

	rest, ok := skipBytes(buf, packetHeaderSize)
	if !ok {
		return seq, nil
	}
	_, typ, ok := readByte(rest)
	if !ok {
		// Header only, nothing to classify yet.
		return seq, nil
	}

	// Server error during handshake ends inspection; the session still
	// forwards the packet so the client sees the real failure.
	if typ == mysql.ERR_HEADER {
		return HandshakeComplete, nil
	}

	// Sequence 1 is the client handshake response: a client switching to
	// TLS ends inspection, everything after is encrypted.
	if seq == 1 {
		_, caps, ok := readUint32(rest)
		if !ok {
			return curSeq, trace.BadParameter("handshake response too short for capability flags")
		}
		if caps&mysql.CLIENT_SSL != 0 {
			return HandshakeComplete, nil
		}
	}
	return seq, nil
}
