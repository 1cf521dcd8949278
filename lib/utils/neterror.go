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
	"errors"
	"io"
	"net"
	"os"

	"github.com/gravitational/trace"
)

// IsUseOfClosedNetworkError returns true if the specified error indicates the
// use of a closed network connection.
func IsUseOfClosedNetworkError(err error) bool {
	return err != nil && errors.Is(err, net.ErrClosed)
}

// IsOKNetworkError returns true if the provided error received from a network
// operation is one of those that usually indicate normal connection close.
func IsOKNetworkError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		IsUseOfClosedNetworkError(err) || errors.Is(err, os.ErrDeadlineExceeded)
}

// IsTimeoutError returns true if the error was caused by an I/O deadline
// expiring.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(trace.Unwrap(err), &netErr) && netErr.Timeout()
}
