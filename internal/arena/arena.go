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

// Package arena provides a bounded-latency bump allocator with
// checkpoint/restore, multi-zone layout, and optional guard pages.
//
// # Design
//
// Every stage of the compiler (interning, parsing, closure, validation,
// materialization) owns its own zone of a shared arena, or its own arena
// entirely. Allocations return a [Ptr] handle rather than a Go pointer:
// callers address arena memory by (zone, offset) pairs and never hold a
// live Go pointer into the backing buffer across a [Arena.Restore]. This
// keeps cross-component references expressible as small integers that stay
// valid for the arena's lifetime, instead of raw pointers that a restore
// could silently invalidate.
package arena

import (
	"errors"
	"fmt"
	"sync"
)

// Default and hard limits on arena and zone sizes. These are soft guard
// rails, not a hard architectural limit; callers that need something
// different should construct their own zone layout.
const (
	MinSize  = 4 << 10 // 4 KiB
	MaxSize  = 1 << 34 // 16 GiB
	MaxZones = 64
)

// Align is the alignment, in bytes, of every allocation returned by
// [Arena.Alloc].
const Align = 8

// Flags configure optional arena behavior at creation time.
type Flags uint8

const (
	// FlagGuardPages requests that a no-access guard region be enforced
	// before and after the arena's backing storage. See
	// [Arena.GuardPages].
	FlagGuardPages Flags = 1 << iota

	// FlagLocked wraps Alloc, Checkpoint, Restore, and SwitchZone in a
	// mutex, so the arena may be shared by multiple goroutines. Lock
	// acquisition is not counted against the per-operation cycle budget;
	// contention is the caller's problem.
	FlagLocked
)

// ErrKind enumerates the distinct ways an arena operation can fail, per the
// error taxonomy in the specification: resource errors are reported with a
// specific kind rather than a generic error.
type ErrKind int

const (
	_ ErrKind = iota
	// ErrSizeOutOfRange is returned by Create when size is outside
	// [MinSize, MaxSize].
	ErrSizeOutOfRange
	// ErrExhausted is returned by Alloc when the active zone has
	// insufficient remaining space. Alloc never spills into another zone.
	ErrExhausted
	// ErrTooManyZones is returned by AddZone once MaxZones zones exist.
	ErrTooManyZones
	// ErrInvalidZone is returned when a zone ID doesn't name a live zone.
	ErrInvalidZone
	// ErrGuardPagesUnsupported is returned by Create when FlagGuardPages is
	// requested on a platform or configuration that cannot honor it.
	ErrGuardPagesUnsupported
	// ErrInvariant is returned by Validate for a broken structural
	// invariant; always indicates a bug in the caller or the allocator.
	ErrInvariant
)

func (k ErrKind) String() string {
	switch k {
	case ErrSizeOutOfRange:
		return "arena-size-out-of-range"
	case ErrExhausted:
		return "arena-exhausted"
	case ErrTooManyZones:
		return "too-many-zones"
	case ErrInvalidZone:
		return "invalid-zone"
	case ErrGuardPagesUnsupported:
		return "guard-pages-unsupported"
	case ErrInvariant:
		return "invariant-violation"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every fallible arena operation.
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("arena: %s: %s", e.Kind, e.Msg) }

func newErr(kind ErrKind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Kind extracts the ErrKind from err, if err is (or wraps) an *Error.
func Kind(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// ZoneID identifies one zone of an [Arena]. Zone 0 always exists once the
// arena is created and is the initial active zone.
type ZoneID int

// Ptr is a handle to a span of bytes allocated from an arena. It carries no
// Go pointer: it is valid only in combination with the [Arena] that
// produced it, and is deliberately cheap to copy and to compare.
type Ptr struct {
	Zone   ZoneID
	Offset int
	Len    int
}

// Empty reports whether p addresses zero bytes.
func (p Ptr) Empty() bool { return p.Len == 0 }

// zone is one contiguous region of the arena with its own bump cursor.
type zone struct {
	buf     []byte
	used    int
	guarded bool
}

func (z *zone) validate() error {
	if z.used < 0 || z.used > len(z.buf) {
		return newErr(ErrInvariant, "zone used=%d exceeds size=%d", z.used, len(z.buf))
	}
	return nil
}

// Stats holds optional, always-consistent allocation counters. They live in
// a block separate from the hot allocation path, so that disabled
// statistics cost nothing beyond the branch to check trackStats.
type Stats struct {
	TotalAllocated uint64
	Peak           uint64
	Calls          uint64
	Failures       uint64
}

// Arena is a multi-zone bump allocator.
//
// The zero value is not usable; construct one with [Create].
type Arena struct {
	mu         *sync.Mutex // nil unless FlagLocked.
	flags      Flags
	zones      []*zone
	active     ZoneID
	trackStats bool
	stats      Stats
}

// Checkpoint captures a zone and its bump cursor, so that later allocations
// in that zone can be undone with [Arena.Restore].
type Checkpoint struct {
	Zone ZoneID
	Used int
}

// Create allocates a new arena with an initial zone 0 of the given size.
//
// Create fails when size is outside [MinSize, MaxSize], or when
// FlagGuardPages is requested and the platform cannot page-align and
// protect the backing memory.
func Create(size int, flags Flags) (*Arena, error) {
	if size < MinSize || size > MaxSize {
		return nil, newErr(ErrSizeOutOfRange, "size=%d not in [%d, %d]", size, MinSize, MaxSize)
	}

	buf, guarded, err := newBuffer(size, flags&FlagGuardPages != 0)
	if err != nil {
		return nil, err
	}

	a := &Arena{
		flags:  flags,
		zones:  []*zone{{buf: buf, guarded: guarded}},
		active: 0,
	}
	if flags&FlagLocked != 0 {
		a.mu = new(sync.Mutex)
	}
	return a, nil
}

// EnableStats turns on the optional counter block. Disabled by default, so
// the hot allocation path does no extra bookkeeping unless asked to.
func (a *Arena) EnableStats() { a.trackStats = true }

// Stats returns a snapshot of the optional counter block. Zero valued if
// EnableStats was never called.
func (a *Arena) Stats() Stats {
	a.lock()
	defer a.unlock()
	return a.stats
}

func (a *Arena) lock() {
	if a.mu != nil {
		a.mu.Lock()
	}
}

func (a *Arena) unlock() {
	if a.mu != nil {
		a.mu.Unlock()
	}
}

// align rounds n up to a multiple of Align using a constant mask, matching
// the specification's (size + 7) &^ 7 scheme.
func align(n int) int {
	return (n + Align - 1) &^ (Align - 1)
}

// Alloc reserves n bytes, 8-byte aligned, from the active zone.
//
// Alloc never spills into another zone: if the active zone doesn't have n
// (aligned) bytes remaining, it fails with ErrExhausted and the arena is
// left completely unchanged.
func (a *Arena) Alloc(n int) (Ptr, error) {
	a.lock()
	defer a.unlock()

	size := align(n)
	z := a.zones[a.active]
	if z.used+size > len(z.buf) {
		if a.trackStats {
			a.stats.Failures++
		}
		return Ptr{}, newErr(ErrExhausted, "zone %d: need %d bytes, have %d", a.active, size, len(z.buf)-z.used)
	}

	off := z.used
	z.used += size

	if a.trackStats {
		a.stats.Calls++
		a.stats.TotalAllocated += uint64(size)
		if cursor := uint64(z.used); cursor > a.stats.Peak {
			a.stats.Peak = cursor
		}
	}

	return Ptr{Zone: a.active, Offset: off, Len: n}, nil
}

// Bytes returns the writable slice backing p. The slice is only valid until
// the next Restore that truncates p.Zone past p.Offset.
func (a *Arena) Bytes(p Ptr) []byte {
	z := a.zones[p.Zone]
	return z.buf[p.Offset : p.Offset+p.Len]
}

// AddZone appends a new zone of the given size to the arena without
// changing the active zone. Fails once MaxZones zones already exist.
func (a *Arena) AddZone(size int) (ZoneID, error) {
	a.lock()
	defer a.unlock()

	if len(a.zones) >= MaxZones {
		return 0, newErr(ErrTooManyZones, "already have %d zones", len(a.zones))
	}
	if size < MinSize || size > MaxSize {
		return 0, newErr(ErrSizeOutOfRange, "size=%d not in [%d, %d]", size, MinSize, MaxSize)
	}

	buf, guarded, err := newBuffer(size, a.flags&FlagGuardPages != 0)
	if err != nil {
		return 0, err
	}

	a.zones = append(a.zones, &zone{buf: buf, guarded: guarded})
	return ZoneID(len(a.zones) - 1), nil
}

// SwitchZone makes id the active zone for subsequent allocations.
func (a *Arena) SwitchZone(id ZoneID) error {
	a.lock()
	defer a.unlock()

	if int(id) < 0 || int(id) >= len(a.zones) {
		return newErr(ErrInvalidZone, "zone %d does not exist", id)
	}
	a.active = id
	return nil
}

// ActiveZone returns the zone currently receiving allocations.
func (a *Arena) ActiveZone() ZoneID {
	a.lock()
	defer a.unlock()
	return a.active
}

// Used returns the number of bytes allocated in the given zone.
func (a *Arena) Used(id ZoneID) int {
	a.lock()
	defer a.unlock()
	return a.zones[id].used
}

// Size returns the capacity of the given zone.
func (a *Arena) Size(id ZoneID) int {
	a.lock()
	defer a.unlock()
	return len(a.zones[id].buf)
}

// ZoneCount returns the number of zones currently in the arena.
func (a *Arena) ZoneCount() int {
	a.lock()
	defer a.unlock()
	return len(a.zones)
}

// Checkpoint captures the active zone and its bump cursor.
func (a *Arena) Checkpoint() Checkpoint {
	a.lock()
	defer a.unlock()
	return Checkpoint{Zone: a.active, Used: a.zones[a.active].used}
}

// Restore truncates the zone captured by c back to c.Used and re-activates
// that zone. Every [Ptr] derived from memory past the checkpoint's
// watermark becomes invalid; the arena does not and cannot track which
// callers still hold such pointers, so avoiding their use is purely a
// caller discipline.
//
// Restore is idempotent: calling it twice with the same checkpoint, or
// reallocating to the same watermark after restoring, reproduces the same
// byte offsets as before the undone allocations, because Restore never
// clears bytes past the new cursor.
func (a *Arena) Restore(c Checkpoint) error {
	a.lock()
	defer a.unlock()

	if int(c.Zone) < 0 || int(c.Zone) >= len(a.zones) {
		return newErr(ErrInvalidZone, "zone %d does not exist", c.Zone)
	}
	z := a.zones[c.Zone]
	if c.Used < 0 || c.Used > z.used {
		return newErr(ErrInvariant, "checkpoint used=%d is ahead of zone used=%d", c.Used, z.used)
	}

	z.used = c.Used
	a.active = c.Zone
	return nil
}

// Validate checks the structural invariants from the specification: every
// zone's used cursor lies within its capacity. It returns the first
// violation found, tagged with ErrInvariant.
func (a *Arena) Validate() error {
	a.lock()
	defer a.unlock()

	for i, z := range a.zones {
		if err := z.validate(); err != nil {
			return fmt.Errorf("zone %d: %w", i, err)
		}
	}
	return nil
}

// GuardPages reports whether zone id was created with an enforced
// no-access guard region. Create fails outright when guard pages are
// requested but cannot be established, rather than silently degrading, so
// this is always consistent with the flags passed to Create/AddZone.
func (a *Arena) GuardPages(id ZoneID) bool {
	a.lock()
	defer a.unlock()
	return a.zones[id].guarded
}
