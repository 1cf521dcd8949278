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
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activeSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbrelay_active_sessions",
			Help: "Number of currently proxied sessions",
		},
		[]string{"route"},
	)
	handledSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbrelay_handled_sessions_total",
			Help: "Total number of sessions that reached a backend and passed the policy check",
		},
		[]string{"route"},
	)
	rejectedSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbrelay_rejected_sessions_total",
			Help: "Connections rejected at admission, by reason",
		},
		[]string{"route", "reason"},
	)
	blockedHosts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbrelay_blocked_hosts",
			Help: "Number of source hosts currently blocked",
		},
		[]string{"route"},
	)
)

const (
	rejectReasonBlocked        = "host_blocked"
	rejectReasonMaxConnections = "max_connections"
	rejectReasonPolicy         = "policy_denied"
	rejectReasonNoBackend      = "backend_unreachable"
)

var metricsOnce sync.Once

// registerMetrics registers the routing collectors with the default
// registerer, tolerating double registration across routes.
func registerMetrics() {
	metricsOnce.Do(func() {
		for _, c := range []prometheus.Collector{
			activeSessions, handledSessions, rejectedSessions, blockedHosts,
		} {
			if err := prometheus.Register(c); err != nil {
				var already prometheus.AlreadyRegisteredError
				if !errors.As(err, &already) {
					panic(err)
				}
			}
		}
	})
}
