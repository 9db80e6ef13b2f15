// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package objmem

// An Arena hands out the von-Neumann byte buffers backing object-table
// slots. Small buffers come straight from the Go heap; buffers at or above
// mmapThreshold are carved out of anonymously-mapped segments, the same way
// the host VM reserves a dedicated memory region for its object space
// instead of leaning on a general-purpose malloc for every allocation.
//
// Segments are never returned to the OS piecemeal: Free only unmaps a
// buffer when it was the sole occupant of its segment (the common case for
// large buffers, which is the only class this arena bothers to mmap at
// all). Small, heap-backed buffers are simply dropped and left to the Go
// collector.
type Arena struct {
	segments []segment
}

type segment struct {
	buf  []byte
	used bool
}

const mmapThreshold = 64 * 1024

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{}
}

// Alloc returns a zeroed buffer of length n.
func (a *Arena) Alloc(n int) []byte {
	if n < mmapThreshold {
		return make([]byte, n)
	}
	buf, err := mmapAnon(n)
	if err != nil {
		// Fall back to a heap allocation rather than aborting the VM;
		// the caller treats this identically either way.
		return make([]byte, n)
	}
	a.segments = append(a.segments, segment{buf: buf, used: true})
	return buf
}

// Free releases buf if it was the arena's own mmap segment. It is a no-op
// for Go-heap-backed buffers (including the never-set nil buffer).
func (a *Arena) Free(buf []byte) {
	if buf == nil {
		return
	}
	for i := range a.segments {
		if a.segments[i].used && sameBacking(a.segments[i].buf, buf) {
			munmapAnon(a.segments[i].buf)
			a.segments[i].buf = nil
			a.segments[i].used = false
			return
		}
	}
}

func sameBacking(a, b []byte) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

// Close releases every mmap segment still held by the arena. Used on
// shutdown so the process doesn't leak address space across repeated
// cold-boot/warm-start cycles in tests.
func (a *Arena) Close() {
	for i := range a.segments {
		if a.segments[i].used {
			munmapAnon(a.segments[i].buf)
			a.segments[i].used = false
		}
	}
	a.segments = nil
}
