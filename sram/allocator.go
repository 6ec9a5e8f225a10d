/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package sram implements the first-fit SRAM allocator the planner uses to
// place tensor tiles. Allocators are cheap to clone; a strategy probes a
// clone and the caller commits by swapping it in only on success.
package sram

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// region is a contiguous free range [offset, offset+size).
type region struct {
	offset uint32
	size   uint32
}

// Allocator is a bump-style first-fit allocator over a fixed SRAM span.
// The zero value is not usable; create one with New.
type Allocator struct {
	capacity uint32

	// free regions, sorted by offset, non-adjacent (coalesced on Free).
	free []region

	// allocated maps offset to the size handed out at that offset.
	allocated map[uint32]uint32
}

// New creates an allocator managing capacity bytes starting at offset 0.
func New(capacity uint32) *Allocator {
	return &Allocator{
		capacity:  capacity,
		free:      []region{{offset: 0, size: capacity}},
		allocated: map[uint32]uint32{},
	}
}

// Capacity returns the total managed size in bytes.
func (a *Allocator) Capacity() uint32 { return a.capacity }

// FreeBytes returns the total unallocated size in bytes.
func (a *Allocator) FreeBytes() uint32 {
	var total uint32
	for _, r := range a.free {
		total += r.size
	}
	return total
}

// Reserve allocates size bytes and returns the offset of the lowest free
// region that fits. It returns ok=false when no region is large enough.
// Reserving zero bytes always fails.
func (a *Allocator) Reserve(size uint32) (offset uint32, ok bool) {
	if size == 0 {
		return 0, false
	}
	for i := range a.free {
		r := &a.free[i]
		if r.size < size {
			continue
		}
		offset = r.offset
		if r.size == size {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			r.offset += size
			r.size -= size
		}
		a.allocated[offset] = size
		if klog.V(2).Enabled() {
			klog.Infof("sram: reserved %s at offset %#x (%s left)",
				humanize.IBytes(uint64(size)), offset, humanize.IBytes(uint64(a.FreeBytes())))
		}
		return offset, true
	}
	if klog.V(2).Enabled() {
		klog.Infof("sram: failed to reserve %s (%s free, fragmented over %d regions)",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(a.FreeBytes())), len(a.free))
	}
	return 0, false
}

// Free releases the allocation previously returned by Reserve at offset. It
// panics when offset does not match a live allocation.
func (a *Allocator) Free(offset uint32) {
	size, ok := a.allocated[offset]
	if !ok {
		exceptions.Panicf("sram: Free(%#x) does not match a live allocation", offset)
	}
	delete(a.allocated, offset)

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].offset > offset })
	a.free = append(a.free, region{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = region{offset: offset, size: size}

	// Coalesce with the following region, then the preceding one.
	if i+1 < len(a.free) && a.free[i].offset+a.free[i].size == a.free[i+1].offset {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].offset+a.free[i-1].size == a.free[i].offset {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

// Clone returns an independent deep copy. Mutating the clone never affects
// the receiver.
func (a *Allocator) Clone() *Allocator {
	c := &Allocator{
		capacity:  a.capacity,
		free:      make([]region, len(a.free)),
		allocated: make(map[uint32]uint32, len(a.allocated)),
	}
	copy(c.free, a.free)
	for offset, size := range a.allocated {
		c.allocated[offset] = size
	}
	return c
}

// String implements fmt.Stringer.
func (a *Allocator) String() string {
	return fmt.Sprintf("sram.Allocator(%s total, %s free, %d allocations)",
		humanize.IBytes(uint64(a.capacity)), humanize.IBytes(uint64(a.FreeBytes())), len(a.allocated))
}
