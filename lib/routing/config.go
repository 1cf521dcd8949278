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
	"log/slog"
	"math"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/dbrelay/dbrelay"
	"github.com/dbrelay/dbrelay/lib/abac"
	"github.com/dbrelay/dbrelay/lib/defaults"
	"github.com/dbrelay/dbrelay/lib/utils"
)

// Config is the configuration of one route: one listening endpoint proxying
// to one destination set. Field names mirror the options of a routing
// configuration section.
type Config struct {
	// Name names the route; it shows up in logs and metrics. Defaults to
	// "routing".
	Name string `json:"name,omitempty"`
	// Destinations is a CSV of host[:port] entries or a fabric+cache:// URI.
	Destinations string `json:"destinations"`
	// BindPort is the acceptor port, an alternative to a port inside
	// BindAddress.
	BindPort int64 `json:"bind_port,omitempty"`
	// BindAddress is the acceptor address as host or host:port.
	BindAddress string `json:"bind_address,omitempty"`
	// Mode selects the destination strategy, read-only or read-write.
	Mode Mode `json:"mode"`
	// ConnectTimeout is the backend connect timeout in seconds.
	ConnectTimeout int64 `json:"connect_timeout,omitempty"`
	// MaxConnections caps concurrent sessions.
	MaxConnections int64 `json:"max_connections,omitempty"`
	// MaxConnectErrors is the per-source handshake failure budget.
	MaxConnectErrors int64 `json:"max_connect_errors,omitempty"`
	// ClientConnectTimeout is the handshake readiness timeout in seconds.
	ClientConnectTimeout int64 `json:"client_connect_timeout,omitempty"`
	// NetBufferLength is the splice buffer size in bytes.
	NetBufferLength int64 `json:"net_buffer_length,omitempty"`
	// ABAC configures the out-of-band permission check.
	ABAC abac.Config `json:"abac,omitempty"`

	// Clock is used to control time in tests.
	Clock clockwork.Clock `json:"-"`
	// Logger is the logger the route emits to.
	Logger *slog.Logger `json:"-"`

	// bindEndpoint is the resolved listen endpoint, computed by
	// CheckAndSetDefaults.
	bindEndpoint utils.Endpoint
}

// CheckAndSetDefaults validates the configuration and fills in defaults. The
// error messages name the offending option and section the way the
// configuration file spells them.
func (c *Config) CheckAndSetDefaults() error {
	if c.Name == "" {
		c.Name = "routing"
	}
	if c.Destinations == "" {
		return trace.BadParameter("option destinations in [%s] is required", c.Name)
	}
	if c.BindPort == 0 && c.BindAddress == "" {
		return trace.BadParameter("either bind_port or bind_address is required")
	}
	if c.BindPort != 0 && (c.BindPort < 1 || c.BindPort > 65535) {
		return trace.BadParameter("option bind_port in [%s] needs value between 1 and 65535 inclusive, was '%d'",
			c.Name, c.BindPort)
	}

	bindHost := defaults.BindAddress
	bindPort := uint16(0)
	if c.BindPort != 0 {
		bindPort = uint16(c.BindPort)
	}
	if c.BindAddress != "" {
		ep, err := utils.ParseEndpoint(c.BindAddress, bindPort)
		if err != nil {
			return trace.BadParameter("option bind_address in [%s] is incorrect (%v)",
				c.Name, trace.Unwrap(err))
		}
		bindHost = ep.Host
		bindPort = ep.Port
	}
	if bindPort == 0 {
		return trace.BadParameter("no bind_port, and TCP port in bind_address is not valid")
	}
	c.bindEndpoint = utils.NewEndpoint(bindHost, bindPort)

	if err := c.Mode.CheckAndSetDefaults(); err != nil {
		return trace.BadParameter("option mode in [%s] is invalid; valid are %v and %v (was '%s')",
			c.Name, ModeReadWrite, ModeReadOnly, c.Mode)
	}

	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = int64(defaults.DestinationConnectTimeout / time.Second)
	}
	if c.ConnectTimeout < 1 || c.ConnectTimeout > 65535 {
		return trace.BadParameter("option connect_timeout in [%s] needs value between 1 and 65535 inclusive, was '%d'",
			c.Name, c.ConnectTimeout)
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = defaults.MaxConnections
	}
	if c.MaxConnections < 1 || c.MaxConnections > 65535 {
		return trace.BadParameter("option max_connections in [%s] needs value between 1 and 65535 inclusive, was '%d'",
			c.Name, c.MaxConnections)
	}
	if c.MaxConnectErrors == 0 {
		c.MaxConnectErrors = defaults.MaxConnectErrors
	}
	if c.MaxConnectErrors < 1 || c.MaxConnectErrors > math.MaxUint32 {
		return trace.BadParameter("option max_connect_errors in [%s] needs value between 1 and %d inclusive, was '%d'",
			c.Name, uint32(math.MaxUint32), c.MaxConnectErrors)
	}
	if c.ClientConnectTimeout == 0 {
		c.ClientConnectTimeout = int64(defaults.ClientConnectTimeout / time.Second)
	}
	if c.ClientConnectTimeout < defaults.MinClientConnectTimeout || c.ClientConnectTimeout > defaults.MaxClientConnectTimeout {
		return trace.BadParameter("option client_connect_timeout in [%s] needs value between %d and %d inclusive, was '%d'",
			c.Name, defaults.MinClientConnectTimeout, defaults.MaxClientConnectTimeout, c.ClientConnectTimeout)
	}
	if c.NetBufferLength == 0 {
		c.NetBufferLength = defaults.NetBufferLength
	}
	if c.NetBufferLength < defaults.MinNetBufferLength || c.NetBufferLength > defaults.MaxNetBufferLength {
		return trace.BadParameter("option net_buffer_length in [%s] needs value between %d and %d inclusive, was '%d'",
			c.Name, defaults.MinNetBufferLength, defaults.MaxNetBufferLength, c.NetBufferLength)
	}

	if err := c.ABAC.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.With(
			dbrelay.ComponentKey, dbrelay.ComponentRouting,
			"route", c.Name)
	}
	return nil
}

// BindEndpoint returns the resolved listen endpoint. Valid only after
// CheckAndSetDefaults.
func (c *Config) BindEndpoint() utils.Endpoint {
	return c.bindEndpoint
}

// connectTimeout is the per-endpoint backend connect timeout.
func (c *Config) connectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// clientConnectTimeout is the handshake readiness timeout.
func (c *Config) clientConnectTimeout() time.Duration {
	return time.Duration(c.ClientConnectTimeout) * time.Second
}

// CheckRouteConfigs cross-validates a set of route configurations the way a
// multi-section configuration file is validated: bind endpoints must be
// unique, and a wildcard bind must not share a port with any other route.
func CheckRouteConfigs(configs []*Config) error {
	seen := make([]utils.Endpoint, 0, len(configs))
	for _, cfg := range configs {
		ep := cfg.BindEndpoint()
		for _, prev := range seen {
			if prev.Equal(ep) {
				return trace.BadParameter("duplicate IP or name found in bind_address '%s'", ep.String())
			}
			wildcard := ep.Host == "0.0.0.0" || ep.Host == "::" ||
				prev.Host == "0.0.0.0" || prev.Host == "::"
			if wildcard && prev.Port == ep.Port {
				return trace.BadParameter("duplicate IP or name found in bind_address '%s'", ep.String())
			}
		}
		seen = append(seen, ep)
	}
	return nil
}
