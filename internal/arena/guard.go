// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build unix

package arena

import (
	"golang.org/x/sys/unix"
)

// newBuffer allocates size usable bytes for a zone. When guard is requested,
// the usable region is flanked by a leading and trailing page that are
// mapped PROT_NONE, so that any read or write that walks off either end of
// the zone faults immediately instead of silently corrupting an adjacent
// allocation.
//
// The returned slice is always exactly size bytes; the guard pages, if any,
// are not reachable through it.
func newBuffer(size int, guard bool) ([]byte, bool, error) {
	if !guard {
		return make([]byte, size), false, nil
	}

	page := unix.Getpagesize()
	usable := roundUp(size, page)
	total := usable + 2*page

	mapping, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, false, newErr(ErrGuardPagesUnsupported, "mmap %d bytes: %v", total, err)
	}

	if err := unix.Mprotect(mapping[:page], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mapping)
		return nil, false, newErr(ErrGuardPagesUnsupported, "protect head guard page: %v", err)
	}
	if err := unix.Mprotect(mapping[page+usable:], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mapping)
		return nil, false, newErr(ErrGuardPagesUnsupported, "protect tail guard page: %v", err)
	}

	return mapping[page : page+size : page+usable], true, nil
}

func roundUp(n, multiple int) int {
	if n%multiple == 0 {
		return n
	}
	return n + (multiple - n%multiple)
}
