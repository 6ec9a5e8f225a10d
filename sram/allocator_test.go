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

package sram_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accelplan/accelplan/sram"
)

func TestReserveFirstFit(t *testing.T) {
	a := sram.New(100)
	offset, ok := a.Reserve(40)
	require.True(t, ok)
	assert.Equal(t, uint32(0), offset)

	offset, ok = a.Reserve(40)
	require.True(t, ok)
	assert.Equal(t, uint32(40), offset)

	_, ok = a.Reserve(30)
	assert.False(t, ok)
	assert.Equal(t, uint32(20), a.FreeBytes())

	// Freeing the first region makes the lowest offset available again.
	a.Free(0)
	offset, ok = a.Reserve(10)
	require.True(t, ok)
	assert.Equal(t, uint32(0), offset)
}

func TestReserveZeroFails(t *testing.T) {
	a := sram.New(100)
	_, ok := a.Reserve(0)
	assert.False(t, ok)
}

func TestFreeCoalesces(t *testing.T) {
	a := sram.New(100)
	for ii := 0; ii < 3; ii++ {
		_, ok := a.Reserve(30)
		require.True(t, ok)
	}
	a.Free(30)
	a.Free(0)

	// [0, 60) must have coalesced back into one region.
	offset, ok := a.Reserve(60)
	require.True(t, ok)
	assert.Equal(t, uint32(0), offset)
}

func TestFreeCoalescesWithNext(t *testing.T) {
	a := sram.New(100)
	_, _ = a.Reserve(30)
	_, _ = a.Reserve(30)
	a.Free(30) // adjacent to the tail region [60, 100)

	offset, ok := a.Reserve(70)
	require.True(t, ok)
	assert.Equal(t, uint32(30), offset)
}

func TestFreeUnknownOffsetPanics(t *testing.T) {
	a := sram.New(100)
	_, ok := a.Reserve(10)
	require.True(t, ok)
	assert.Panics(t, func() { a.Free(5) })
}

func TestCloneIsIndependent(t *testing.T) {
	a := sram.New(100)
	_, ok := a.Reserve(10)
	require.True(t, ok)

	clone := a.Clone()
	_, ok = clone.Reserve(50)
	require.True(t, ok)
	clone.Free(0)

	assert.Equal(t, uint32(90), a.FreeBytes())
	assert.Equal(t, uint32(50), clone.FreeBytes())
}

func TestCapacity(t *testing.T) {
	a := sram.New(1024)
	assert.Equal(t, uint32(1024), a.Capacity())
	assert.Equal(t, uint32(1024), a.FreeBytes())
}
