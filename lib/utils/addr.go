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
	"fmt"
	"net"
	"strings"

	"github.com/gravitational/trace"
)

// Endpoint is a host and TCP port pair. A zero Port marks the endpoint as
// invalid/unresolved.
type Endpoint struct {
	// Host is a host name or a textual IP address. IPv6 addresses are kept
	// without brackets.
	Host string
	// Port is the TCP port, zero when unknown.
	Port uint16
}

// NewEndpoint returns an endpoint for the given host and port.
func NewEndpoint(host string, port uint16) Endpoint {
	return Endpoint{Host: host, Port: port}
}

// IsValid reports whether the endpoint names both a host and a port.
func (e Endpoint) IsValid() bool {
	return e.Host != "" && e.Port != 0
}

// Equal reports host-string and port equality.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Host == other.Host && e.Port == other.Port
}

// String returns the host:port form, bracketing IPv6 hosts.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, fmt.Sprintf("%d", e.Port))
}

// ParsePort parses a TCP port out of its textual form, rejecting ports
// outside 1..65535.
func ParsePort(s string) (uint16, error) {
	if len(s) == 0 || len(s) > 5 || strings.TrimLeft(s, "0123456789") != "" {
		return 0, trace.BadParameter("invalid TCP port: invalid characters or too long")
	}
	var port int
	for _, r := range s {
		port = port*10 + int(r-'0')
	}
	if port < 1 || port > 65535 {
		return 0, trace.BadParameter("invalid TCP port: impossible port number")
	}
	return uint16(port), nil
}

// ParseEndpoint parses "host", "host:port", "[host]:port" into an Endpoint,
// using defaultPort when the input carries no port.
func ParseEndpoint(s string, defaultPort uint16) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, trace.BadParameter("empty address")
	}
	// Bare IPv6 address without brackets carries no port.
	if strings.Count(s, ":") > 1 && !strings.HasPrefix(s, "[") {
		return Endpoint{Host: s, Port: defaultPort}, nil
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port part at all.
		host = strings.Trim(s, "[]")
		if host == "" {
			return Endpoint{}, trace.BadParameter("invalid address %q", s)
		}
		return Endpoint{Host: host, Port: defaultPort}, nil
	}
	if host == "" {
		return Endpoint{}, trace.BadParameter("invalid address %q", s)
	}
	port, err := ParsePort(portStr)
	if err != nil {
		return Endpoint{}, trace.Wrap(err)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// ParseEndpointsCSV splits a comma separated list of addresses, parsing each
// entry with ParseEndpoint. Entries default to defaultPort when they name no
// port of their own.
func ParseEndpointsCSV(csv string, defaultPort uint16) ([]Endpoint, error) {
	var out []Endpoint
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ep, err := ParseEndpoint(part, defaultPort)
		if err != nil {
			return nil, trace.BadParameter("destination address %q is invalid", part)
		}
		if !ep.IsValid() {
			return nil, trace.BadParameter("destination address %q is invalid", part)
		}
		out = append(out, ep)
	}
	return out, nil
}
