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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePort(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr string
	}{
		{in: "3306", want: 3306},
		{in: "1", want: 1},
		{in: "65535", want: 65535},
		{in: "0", wantErr: "impossible port number"},
		{in: "65536", wantErr: "impossible port number"},
		{in: "999292", wantErr: "invalid TCP port: invalid characters or too long"},
		{in: "abc", wantErr: "invalid TCP port: invalid characters or too long"},
		{in: "", wantErr: "invalid TCP port: invalid characters or too long"},
		{in: "-1", wantErr: "invalid TCP port: invalid characters or too long"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			port, err := ParsePort(tt.in)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, port)
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		defaultPort uint16
		want        Endpoint
		wantErr     bool
	}{
		{name: "host only", in: "10.0.10.5", defaultPort: 3306, want: Endpoint{Host: "10.0.10.5", Port: 3306}},
		{name: "host and port", in: "10.0.11.6:3307", defaultPort: 3306, want: Endpoint{Host: "10.0.11.6", Port: 3307}},
		{name: "hostname", in: "db.example.com", defaultPort: 3306, want: Endpoint{Host: "db.example.com", Port: 3306}},
		{name: "bare ipv6", in: "::1", defaultPort: 3306, want: Endpoint{Host: "::1", Port: 3306}},
		{name: "bracketed ipv6 with port", in: "[::1]:3307", defaultPort: 3306, want: Endpoint{Host: "::1", Port: 3307}},
		{name: "whitespace trimmed", in: "  10.0.10.5:3306 ", defaultPort: 3306, want: Endpoint{Host: "10.0.10.5", Port: 3306}},
		{name: "empty", in: "", wantErr: true},
		{name: "bad port", in: "10.0.10.5:999292", wantErr: true},
		{name: "port not a number", in: "10.0.10.5:bad", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := ParseEndpoint(tt.in, tt.defaultPort)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, ep)
		})
	}
}

func TestParseEndpointsCSV(t *testing.T) {
	eps, err := ParseEndpointsCSV("10.0.10.5, 10.0.11.6:3307 ,db.example.com", 3306)
	require.NoError(t, err)
	require.Equal(t, []Endpoint{
		{Host: "10.0.10.5", Port: 3306},
		{Host: "10.0.11.6", Port: 3307},
		{Host: "db.example.com", Port: 3306},
	}, eps)

	_, err = ParseEndpointsCSV("10.0.10.5,10.0.10.6:bad", 3306)
	require.ErrorContains(t, err, "is invalid")
}

func TestEndpointString(t *testing.T) {
	require.Equal(t, "10.0.10.5:3306", Endpoint{Host: "10.0.10.5", Port: 3306}.String())
	require.Equal(t, "[::1]:3307", Endpoint{Host: "::1", Port: 3307}.String())
}

func TestEndpointEqual(t *testing.T) {
	a := Endpoint{Host: "127.0.0.1", Port: 3306}
	require.True(t, a.Equal(Endpoint{Host: "127.0.0.1", Port: 3306}))
	require.False(t, a.Equal(Endpoint{Host: "127.0.0.1", Port: 3307}))
	require.False(t, a.Equal(Endpoint{Host: "localhost", Port: 3306}))
}
