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

// Package abac implements the attestation based access control client: an
// out-of-band yes/no permission check for a client (ip, port) tuple against
// an external HTTP policy endpoint. The check fails closed.
package abac

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gravitational/trace"

	"github.com/dbrelay/dbrelay"
	"github.com/dbrelay/dbrelay/lib/defaults"
)

// checkPath is the policy endpoint path the check is POSTed to.
const checkPath = "/appAccessesObject"

// Config holds the policy client configuration.
type Config struct {
	// Enabled turns the check on. A disabled client permits everything.
	Enabled bool `json:"enabled"`
	// Host is the policy service host.
	Host string `json:"host"`
	// Port is the policy service port.
	Port int `json:"port"`
	// ID identifies this router to the policy service.
	ID string `json:"id"`
	// PrincipalID is the principal the check is performed for.
	PrincipalID string `json:"principal_id"`
	// TestIP, when set, replaces the probed client IP in every check.
	TestIP string `json:"test_ip,omitempty"`
	// TestPort replaces the probed client port when TestIP is set.
	TestPort int `json:"test_port,omitempty"`
	// RequestTimeout bounds one permission check round trip.
	RequestTimeout time.Duration `json:"-"`
	// Logger is the logger the client emits to.
	Logger *slog.Logger `json:"-"`
}

// CheckAndSetDefaults validates the configuration.
func (c *Config) CheckAndSetDefaults() error {
	if c.Enabled && c.Host == "" {
		return trace.BadParameter("abac is enabled but abac_host is missing")
	}
	if c.Enabled && (c.Port < 1 || c.Port > 65535) {
		return trace.BadParameter("abac_port needs value between 1 and 65535 inclusive, was '%d'", c.Port)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.ABACRequestTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.With(dbrelay.ComponentKey, dbrelay.ComponentABAC)
	}
	return nil
}

// request is the JSON body of a permission check.
type request struct {
	Principal   string   `json:"principal"`
	OtherValues []string `json:"otherValues"`
}

// Client performs permission checks against the policy endpoint. The HTTP
// handle is guarded by a mutex: session workers and the reset path share it.
type Client struct {
	cfg Config
	url string

	mu         sync.Mutex
	httpClient *http.Client
}

// NewClient returns a policy client for the given configuration. The router
// refuses to run without a working policy client when the check is enabled,
// so construction failures must be treated as fatal by the caller.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	c := &Client{
		cfg: cfg,
		url: fmt.Sprintf("http://%s%s",
			net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)), checkPath),
	}
	if err := c.Reset(); err != nil {
		return nil, trace.Wrap(err)
	}
	return c, nil
}

// Reset disposes the current HTTP handle and creates a fresh one pinned to
// the configured URL. Called at construction and after transport errors.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	c.httpClient = &http.Client{Timeout: c.cfg.RequestTimeout}
	return nil
}

// Permitted checks whether the client at (ip, port) may proxy through. The
// decision fails closed: transport errors, non-200 statuses and exception
// bodies all deny. A disabled client always permits.
func (c *Client) Permitted(ctx context.Context, ip string, port int) bool {
	if !c.cfg.Enabled {
		return true
	}
	if c.cfg.TestIP != "" {
		ip, port = c.cfg.TestIP, c.cfg.TestPort
	}

	body, err := json.Marshal(request{
		Principal:   c.cfg.PrincipalID,
		OtherValues: []string{fmt.Sprintf("%s:%d", ip, port), c.cfg.ID},
	})
	if err != nil {
		c.cfg.Logger.ErrorContext(ctx, "Failed to encode permission check.", "error", err)
		return false
	}

	c.mu.Lock()
	httpClient := c.httpClient
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.cfg.Logger.ErrorContext(ctx, "Failed to build permission check request.", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		c.cfg.Logger.ErrorContext(ctx, "Permission check transport error.", "error", err)
		if err := c.Reset(); err != nil {
			c.cfg.Logger.ErrorContext(ctx, "Failed to reset policy client.", "error", err)
		}
		return false
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.cfg.Logger.ErrorContext(ctx, "Failed to read permission check response.", "error", err)
		return false
	}
	c.cfg.Logger.DebugContext(ctx, "Permission check result.",
		"ip", ip, "port", port, "status", resp.StatusCode)

	if strings.Contains(string(respBody), "RuntimeException") {
		c.cfg.Logger.DebugContext(ctx, "Permission denied by policy.", "ip", ip, "port", port)
		return false
	}
	if resp.StatusCode != http.StatusOK {
		c.cfg.Logger.ErrorContext(ctx, "Unexpected permission check status.",
			"status", resp.StatusCode, "ip", ip, "port", port)
		return false
	}
	return true
}
