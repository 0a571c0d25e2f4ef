// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build linux

package sandbox

import (
	"log/slog"
	"syscall"
)

const (
	softAddressSpace = 256 << 20
	hardAddressSpace = 512 << 20
	softCPUSeconds   = 60
	hardCPUSeconds   = 120
	maxFileSize      = 10 << 20
)

// applyResourceLimits caps the worker subprocess's address space, CPU
// time, and file size per spec.md §4.3 step 6. Called once, from inside
// the worker subprocess, before it starts reading requests.
func applyResourceLimits() {
	limits := []struct {
		name     string
		resource int
		soft     uint64
		hard     uint64
	}{
		{"RLIMIT_AS", syscall.RLIMIT_AS, softAddressSpace, hardAddressSpace},
		{"RLIMIT_CPU", syscall.RLIMIT_CPU, softCPUSeconds, hardCPUSeconds},
		{"RLIMIT_FSIZE", syscall.RLIMIT_FSIZE, maxFileSize, maxFileSize},
	}
	for _, l := range limits {
		rlimit := syscall.Rlimit{Cur: l.soft, Max: l.hard}
		if err := syscall.Setrlimit(l.resource, &rlimit); err != nil {
			slog.Default().Warn("sandbox.rlimit_failed", "limit", l.name, "error", err)
		}
	}
}
