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

package utils

import (
	"net"

	"github.com/gravitational/trace"
)

// SourceKey is the 16-byte canonical form of a client address: the address
// bytes for IPv6, the IPv4-mapped IPv6 form for IPv4. Keying on it keeps
// IPv4 and IPv6 clients from ever colliding the way textual addresses can.
type SourceKey [16]byte

// SourceKeyFromIP canonicalizes an IP to its source key.
func SourceKeyFromIP(ip net.IP) (SourceKey, error) {
	var key SourceKey
	b := ip.To16()
	if b == nil {
		return key, trace.BadParameter("invalid IP address %q", ip.String())
	}
	copy(key[:], b)
	return key, nil
}

// SourceKeyFromAddr canonicalizes the IP part of a network address, which
// must be a TCP address.
func SourceKeyFromAddr(addr net.Addr) (SourceKey, error) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return SourceKey{}, trace.BadParameter("expected TCP address, got %T", addr)
	}
	return SourceKeyFromIP(tcpAddr.IP)
}

// IP returns the key back as a net.IP.
func (k SourceKey) IP() net.IP {
	return net.IP(k[:])
}

// String returns the textual form of the underlying address.
func (k SourceKey) String() string {
	ip := k.IP()
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}
