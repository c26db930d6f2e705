//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package target

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/mosprobe/cli/flash/common/cortex"
	"github.com/mongoose-os/mosprobe/common/multierror"
)

type fakeMem struct {
	mem    map[uint32]byte
	writes int
}

func newFakeMem() *fakeMem {
	return &fakeMem{mem: map[uint32]byte{}}
}

func (fm *fakeMem) ReadTargetReg(ctx context.Context, addr uint32) (uint32, error) {
	var buf [4]byte
	fm.ReadTargetMem(ctx, addr, buf[:])
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (fm *fakeMem) ReadTargetMem(ctx context.Context, addr uint32, buf []byte) error {
	for i := range buf {
		buf[i] = fm.mem[addr+uint32(i)]
	}
	return nil
}

func (fm *fakeMem) WriteTargetReg(ctx context.Context, addr uint32, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return fm.WriteTargetMem(ctx, addr, buf[:])
}

func (fm *fakeMem) WriteTargetMem(ctx context.Context, addr uint32, data []byte) error {
	fm.writes++
	for i, b := range data {
		fm.mem[addr+uint32(i)] = b
	}
	return nil
}

// fakeDriver is a driver with all the capabilities and a 0xff-erased flash.
type fakeDriver struct {
	log      []string
	flash    map[uint32]byte
	enterErr error
	exitErr  error
	eraseErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{flash: map[uint32]byte{}}
}

func (fd *fakeDriver) EnterFlashMode(ctx context.Context) error {
	fd.log = append(fd.log, "enter")
	return fd.enterErr
}

func (fd *fakeDriver) ExitFlashMode(ctx context.Context) error {
	fd.log = append(fd.log, "exit")
	return fd.exitErr
}

func (fd *fakeDriver) MassErase(ctx context.Context) error {
	fd.log = append(fd.log, "mass erase")
	return fd.eraseErr
}

func (fd *fakeDriver) Erase(ctx context.Context, addr, length uint32) error {
	fd.log = append(fd.log, "erase")
	for i := uint32(0); i < length; i++ {
		delete(fd.flash, addr+i)
	}
	return fd.eraseErr
}

func (fd *fakeDriver) Write(ctx context.Context, addr uint32, data []byte) error {
	fd.log = append(fd.log, "write")
	for i, b := range data {
		fd.flash[addr+uint32(i)] = b
	}
	return nil
}

func (fd *fakeDriver) ReadFlash(ctx context.Context, addr uint32, buf []byte) error {
	fd.log = append(fd.log, "read")
	for i := range buf {
		b, ok := fd.flash[addr+uint32(i)]
		if !ok {
			b = 0xff
		}
		buf[i] = b
	}
	return nil
}

var testPartID = cortex.PartID{Designer: 0x015, Part: 0x88c}

func newTarget() (*Target, *fakeMem) {
	fm := newFakeMem()
	return New(fm, testPartID), fm
}

func TestProbeChainFirstMatch(t *testing.T) {
	ctx := context.Background()
	tgt, fm := newTarget()
	var called []string
	probes := []ProbeFunc{
		func(ctx context.Context, tt *Target) bool {
			called = append(called, "a")
			tt.ReadReg(ctx, 0x1000)
			return false
		},
		func(ctx context.Context, tt *Target) bool {
			called = append(called, "b")
			if tt.PartID().Part != 0x88c {
				return false
			}
			tt.Attach("b", newFakeDriver(), OptInhibitNRST)
			return tt.AddRAM(0x20000000, 0x1000) == nil
		},
		func(ctx context.Context, tt *Target) bool {
			called = append(called, "c")
			return true
		},
	}
	require.True(t, ProbeChain(ctx, tgt, probes))
	assert.Equal(t, []string{"a", "b"}, called)
	assert.Equal(t, "b", tgt.Name())
	assert.True(t, tgt.HasOption(OptInhibitNRST))
	assert.Len(t, tgt.RAM(), 1)
	assert.Equal(t, 0, fm.writes)
}

func TestProbeChainMismatchLeavesNothing(t *testing.T) {
	ctx := context.Background()
	tgt, _ := newTarget()
	require.NoError(t, tgt.Attach("old", newFakeDriver(), 0))
	require.NoError(t, tgt.AddRAM(0x20000000, 0x1000))
	probes := []ProbeFunc{
		func(ctx context.Context, tt *Target) bool {
			assert.False(t, tt.Attached())
			return false
		},
		func(ctx context.Context, tt *Target) bool {
			tt.Attach("broken", newFakeDriver(), 0)
			tt.AddRAM(0x20000000, 0x1000)
			return false
		},
	}
	require.False(t, ProbeChain(ctx, tgt, probes))
	assert.False(t, tgt.Attached())
	assert.Equal(t, "", tgt.Name())
	assert.Empty(t, tgt.RAM())
	assert.Empty(t, tgt.Flash())
}

func TestAttach(t *testing.T) {
	tgt, _ := newTarget()
	assert.True(t, errors.IsNotValid(tgt.Attach("x", nil, 0)))
	require.NoError(t, tgt.Attach("x", newFakeDriver(), 0))
	assert.True(t, errors.IsAlreadyExists(tgt.Attach("y", newFakeDriver(), 0)))
	tgt.Detach()
	require.NoError(t, tgt.Attach("y", newFakeDriver(), 0))
	assert.Equal(t, "y", tgt.Name())
}

func TestRegions(t *testing.T) {
	tgt, _ := newTarget()
	require.NoError(t, tgt.AddRAM(0x20200000, 0x80000))
	require.NoError(t, tgt.AddRAM(0x20280000, 0x80000))
	assert.Error(t, tgt.AddRAM(0x2027f000, 0x2000))
	assert.Error(t, tgt.AddRAM(0x20200000, 0))

	f := &FlashRegion{Start: 0x60000000, Length: 0x1000000, BlockSize: 4096, WriteSize: 256, ErasedValue: 0xff}
	require.NoError(t, tgt.AddFlash(f))
	assert.Equal(t, tgt, f.Target())
	assert.Error(t, tgt.AddFlash(&FlashRegion{Start: 0x60fff000, Length: 0x2000, BlockSize: 4096}))
	assert.Error(t, tgt.AddFlash(&FlashRegion{Start: 0x20200000, Length: 0x1000, BlockSize: 4096}))
	assert.Error(t, tgt.AddFlash(&FlashRegion{Start: 0x70000000, Length: 0x1000, BlockSize: 3000}))
	assert.Error(t, tgt.AddFlash(&FlashRegion{Start: 0x70000800, Length: 0x1000, BlockSize: 4096}))
	assert.Error(t, tgt.AddFlash(&FlashRegion{Start: 0x70000000, Length: 0x1000, BlockSize: 4096, WriteSize: 8192}))
	require.NoError(t, tgt.AddFlash(&FlashRegion{Start: 0xfffff000, Length: 0x1000, BlockSize: 4096}))

	assert.Equal(t, f, tgt.FlashAt(0x60000000))
	assert.Equal(t, f, tgt.FlashAt(0x60ffffff))
	assert.Nil(t, tgt.FlashAt(0x61000000))
	assert.Nil(t, tgt.FlashAt(0x5fffffff))
	assert.Nil(t, tgt.FlashAt(0x20200000))
	assert.NotNil(t, tgt.FlashAt(0xffffffff))
}

func TestCapabilitiesNotSupported(t *testing.T) {
	ctx := context.Background()
	tgt, _ := newTarget()
	require.NoError(t, tgt.Attach("plain", struct{ x int }{}, 0))
	assert.True(t, errors.IsNotSupported(errors.Cause(tgt.MassErase(ctx))))
	assert.True(t, errors.IsNotSupported(errors.Cause(tgt.EnterFlashMode(ctx))))
	assert.True(t, errors.IsNotSupported(errors.Cause(tgt.ExitFlashMode(ctx))))
	ran := false
	require.NoError(t, tgt.WithFlashMode(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestMassErase(t *testing.T) {
	ctx := context.Background()
	tgt, _ := newTarget()
	fd := newFakeDriver()
	require.NoError(t, tgt.Attach("fake", fd, 0))
	require.NoError(t, tgt.MassErase(ctx))
	assert.Equal(t, []string{"mass erase"}, fd.log)
}

func TestWithFlashModeAlwaysExits(t *testing.T) {
	ctx := context.Background()
	tgt, _ := newTarget()
	fd := newFakeDriver()
	require.NoError(t, tgt.Attach("fake", fd, 0))

	fnErr := errors.New("boom")
	err := tgt.WithFlashMode(ctx, func(ctx context.Context) error { return fnErr })
	assert.Equal(t, fnErr, err)
	assert.Equal(t, []string{"enter", "exit"}, fd.log)

	fd.log = nil
	fd.exitErr = errors.New("stuck")
	err = tgt.WithFlashMode(ctx, func(ctx context.Context) error { return fnErr })
	me, ok := err.(*multierror.Error)
	require.True(t, ok, "%T %s", err, err)
	assert.Len(t, me.Errors(), 2)
	assert.Equal(t, []string{"enter", "exit"}, fd.log)

	fd.log = nil
	fd.exitErr = nil
	fd.enterErr = errors.New("nope")
	ran := false
	err = tgt.WithFlashMode(ctx, func(ctx context.Context) error { ran = true; return nil })
	assert.Error(t, err)
	assert.False(t, ran)
	assert.Equal(t, []string{"enter", "exit"}, fd.log)
}

func flashTarget(t *testing.T) (*Target, *fakeDriver) {
	tgt, _ := newTarget()
	fd := newFakeDriver()
	require.NoError(t, tgt.Attach("fake", fd, 0))
	for _, start := range []uint32{0x60000000, 0x60001000} {
		require.NoError(t, tgt.AddFlash(&FlashRegion{
			Start: start, Length: 0x1000, BlockSize: 0x400, WriteSize: 0x10, ErasedValue: 0xff, Ops: fd,
		}))
	}
	return tgt, fd
}

func TestFlashErase(t *testing.T) {
	ctx := context.Background()
	tgt, fd := flashTarget(t)
	fd.flash[0x60000ffc] = 1
	fd.flash[0x60001000] = 2
	require.NoError(t, tgt.FlashErase(ctx, 0x60000c00, 0x800))
	assert.Empty(t, fd.flash)
	assert.Equal(t, []string{"enter", "erase", "erase", "exit"}, fd.log)

	assert.True(t, errors.IsNotValid(errors.Cause(tgt.FlashErase(ctx, 0x60000c00, 0x100))))
	assert.True(t, errors.IsNotFound(errors.Cause(tgt.FlashErase(ctx, 0x60001c00, 0x800))))
	assert.True(t, errors.IsNotFound(errors.Cause(tgt.FlashErase(ctx, 0x20000000, 0x400))))
	assert.NoError(t, tgt.FlashErase(ctx, 0x20000000, 0))

	fd.log = nil
	fd.eraseErr = errors.New("erase failed")
	assert.Error(t, tgt.FlashErase(ctx, 0x60000000, 0x400))
	assert.Equal(t, []string{"enter", "erase", "exit"}, fd.log)
}

func TestFlashWriteSkipsErased(t *testing.T) {
	ctx := context.Background()
	tgt, fd := flashTarget(t)
	data := bytes.Repeat([]byte{0xff}, 0x40)
	data[0x2] = 0x11
	data[0x12] = 0x22
	data[0x3f] = 0x33
	require.NoError(t, tgt.FlashWrite(ctx, 0x60000ff8, data))
	// 0x1010 and 0x1020 are all 0xff and get skipped.
	assert.Equal(t, []string{"enter", "write", "write", "write", "exit"}, fd.log)
	assert.Len(t, fd.flash, 0x30)
	assert.Equal(t, byte(0xff), fd.flash[0x60000ff0])
	assert.Equal(t, byte(0x11), fd.flash[0x60000ffa])
	assert.Equal(t, byte(0x22), fd.flash[0x6000100a])
	assert.Equal(t, byte(0x33), fd.flash[0x60001037])
	assert.Equal(t, byte(0xff), fd.flash[0x6000103f])
	_, written := fd.flash[0x60001010]
	assert.False(t, written)

	buf := make([]byte, 0x40)
	require.NoError(t, tgt.FlashRead(ctx, 0x60000ff8, buf))
	assert.Equal(t, data, buf)

	assert.Error(t, tgt.FlashWrite(ctx, 0x60001ff0, make([]byte, 0x20)))
}

func TestFlashReadMemoryMapped(t *testing.T) {
	ctx := context.Background()
	tgt, fm := newTarget()
	require.NoError(t, tgt.Attach("plain", struct{ x int }{}, 0))
	require.NoError(t, tgt.AddFlash(&FlashRegion{Start: 0x08000000, Length: 0x1000, BlockSize: 0x400}))
	fm.mem[0x08000010] = 0xaa
	buf := make([]byte, 2)
	require.NoError(t, tgt.FlashRead(ctx, 0x08000010, buf))
	assert.Equal(t, []byte{0xaa, 0}, buf)
	assert.True(t, errors.IsNotSupported(errors.Cause(tgt.FlashErase(ctx, 0x08000000, 0x400))))
}

func TestTimeout(t *testing.T) {
	assert.True(t, NewTimeout(0).Expired())
	to := NewTimeout(time.Hour)
	assert.False(t, to.Expired())
	assert.Equal(t, time.Hour, to.Duration())

	tgt, _ := newTarget()
	tgt.ReportProgress(to)
	n := 0
	tgt.SetProgressFunc(func(elapsed, total time.Duration) {
		n++
		assert.Equal(t, time.Hour, total)
	})
	tgt.ReportProgress(to)
	assert.Equal(t, 1, n)
}
