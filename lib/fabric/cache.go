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

// Package fabric resolves fabric+cache:// destination URIs through a
// registered group directory. The directory service itself is an external
// collaborator; this package only defines the interface the routing engine
// consumes and a process-local registry of named caches.
package fabric

import (
	"net/url"
	"strings"
	"sync"

	"github.com/gravitational/trace"

	"github.com/dbrelay/dbrelay/lib/utils"
)

// Scheme is the URI scheme resolved by this package.
const Scheme = "fabric+cache"

// Directory hands out the endpoints of a named server group.
type Directory interface {
	// GroupEndpoints returns the endpoints of the group, filtered by the
	// URI query parameters.
	GroupEndpoints(group string, query url.Values) ([]utils.Endpoint, error)
}

var (
	mu     sync.Mutex
	caches = make(map[string]Directory)
)

// Register makes a cache directory available under the given name.
func Register(name string, dir Directory) {
	mu.Lock()
	defer mu.Unlock()
	caches[name] = dir
}

// HaveCache reports whether a cache with the given name is registered.
func HaveCache(name string) bool {
	mu.Lock()
	defer mu.Unlock()
	_, ok := caches[name]
	return ok
}

// lookup returns the registered directory for the name.
func lookup(name string) (Directory, bool) {
	mu.Lock()
	defer mu.Unlock()
	dir, ok := caches[name]
	return dir, ok
}

// ResolveURI interprets a fabric+cache://<cache>/group/<name>?<query> URI
// and returns the group's endpoints from the registered cache directory.
func ResolveURI(raw string) ([]utils.Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, trace.BadParameter("invalid URI %q: %v", raw, err)
	}
	if u.Scheme != Scheme {
		return nil, trace.BadParameter("invalid URI scheme %q for URI %s", u.Scheme, raw)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 {
		return nil, trace.BadParameter("invalid fabric command in URI; was %q", u.Path)
	}
	if !strings.EqualFold(parts[0], "group") {
		return nil, trace.BadParameter("invalid fabric command in URI; was %q", parts[0])
	}
	dir, ok := lookup(u.Host)
	if !ok {
		return nil, trace.NotFound("invalid fabric cache in URI; was %q", u.Host)
	}
	endpoints, err := dir.GroupEndpoints(parts[1], u.Query())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return endpoints, nil
}

// IsFabricURI reports whether the destinations string looks like a fabric
// cache URI rather than a CSV host list.
func IsFabricURI(destinations string) bool {
	return strings.HasPrefix(destinations, Scheme+"://")
}
