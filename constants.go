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

// Package dbrelay holds constants shared across the project.
package dbrelay

import "strings"

const (
	// ComponentKey is the log attribute key carrying the component name.
	ComponentKey = "component"

	// ComponentRouting is the connection routing engine.
	ComponentRouting = "routing"

	// ComponentABAC is the attestation based access control client.
	ComponentABAC = "abac"

	// ComponentFabric is the fabric cache group directory.
	ComponentFabric = "fabric"

	// ComponentCLI is the command line entry point.
	ComponentCLI = "cli"
)

// Component generates a colon-joined component name for logging, so that
// subsystems of a component show up as "routing:session".
func Component(parts ...string) string {
	return strings.Join(parts, ":")
}
