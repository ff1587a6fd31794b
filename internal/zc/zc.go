// Copyright 2025 Buf Technologies, Inc.
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

// Package zc provides helpers for working with zero-copy ranges into a
// shared byte source, such as a lexeme table or a memory-mapped plan file.
package zc

import (
	"fmt"
	"math"

	"github.com/ttlplan/ttlc/internal/debug"
)

// Range is a [start, start+len) slice relative to some larger byte source,
// such as the string pool of a materialized plan.
//
// This is a packed representation of a value with the layout
//
//	struct {
//	  offset, len uint32
//	}
//
// The zero value faithfully represents an empty slice at offset zero.
type Range uint64

// NewRange builds a Range from an offset and length, both of which must fit
// in 32 bits: the materialized string pool is capped at 4 GiB accordingly.
func NewRange(offset, length int) Range {
	debug.Assert(offset >= 0 && length >= 0 && offset <= math.MaxUint32 && length <= math.MaxUint32,
		"offset/length too large for zc.Range: [%d:+%d]", offset, length)
	return Range(uint32(offset)) | Range(uint32(length))<<32
}

// Start returns the start offset of this slice within its source.
func (r Range) Start() int { return int(uint32(r)) }

// End returns the end offset of this slice within its source.
func (r Range) End() int { return r.Start() + r.Len() }

// Len returns the length of this Range.
func (r Range) Len() int { return int(r >> 32) }

// Bytes slices src according to this Range without copying.
func (r Range) Bytes(src []byte) []byte {
	if r.Len() == 0 {
		return nil
	}
	return src[r.Start():r.End():r.End()]
}

// String is like Bytes, but returns a string. It still allocates a Go
// string header, but performs no copy of the underlying bytes when called
// on a read-only memory-mapped source via unsafe conversion at the call
// site; here it takes the conservative, always-safe route of a bytes-to-
// string conversion.
func (r Range) String(src []byte) string {
	return string(r.Bytes(src))
}

// Format implements [fmt.Formatter].
func (r Range) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v', 's':
		fmt.Fprintf(s, "[%d:%d]", r.Start(), r.End())
	default:
		fmt.Fprintf(s, "%%!%c(zc.Range=[%d:%d])", verb, r.Start(), r.End())
	}
}
