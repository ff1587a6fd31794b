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

//go:build unix

package plan

import (
	"os"

	"golang.org/x/sys/unix"
)

// Open memory-maps path read-only and validates its header, returning a
// [View] backed directly by the mapping: reading a triple or a node string
// touches the page cache, not a heap allocation.
func Open(path string) (*View, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: ErrTruncated, Msg: err.Error()}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &Error{Kind: ErrTruncated, Msg: err.Error()}
	}
	size := int(info.Size())
	if size < headerSize {
		return nil, &Error{Kind: ErrTruncated, Msg: "file shorter than plan header"}
	}

	mapping, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, &Error{Kind: ErrTruncated, Msg: "mmap: " + err.Error()}
	}

	v, err := newView(mapping, func() error { return unix.Munmap(mapping) })
	if err != nil {
		_ = unix.Munmap(mapping)
		return nil, err
	}
	return v, nil
}
