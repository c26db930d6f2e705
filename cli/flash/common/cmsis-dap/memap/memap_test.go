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
package memap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/mosprobe/cli/flash/common/cmsis-dap/dp"
)

// fakeDP emulates a MEM-AP in front of a sparse word-addressed memory.
type fakeDP struct {
	dp.DPClient

	csw, tar, base uint32
	mem            map[uint32]uint32
	blockReads     int
}

func newFakeDP() *fakeDP {
	return &fakeDP{csw: 0x40, mem: map[uint32]uint32{}}
}

func (f *fakeDP) ReadAPReg(ctx context.Context, apSel, apReg uint8) (uint32, error) {
	switch MemAPReg(apReg) {
	case CSW:
		return f.csw, nil
	case TAR:
		return f.tar, nil
	case BASE:
		return f.base, nil
	case DRW:
		v := f.mem[f.tar]
		f.tar += 4
		return v, nil
	}
	return 0, nil
}

func (f *fakeDP) WriteAPReg(ctx context.Context, apSel, apReg uint8, value uint32) error {
	switch MemAPReg(apReg) {
	case CSW:
		f.csw = value
	case TAR:
		f.tar = value
	case DRW:
		f.mem[f.tar] = value
		f.tar += 4
	}
	return nil
}

func (f *fakeDP) ReadAPRegMulti(ctx context.Context, apSel, apReg uint8, length int) ([]uint32, error) {
	f.blockReads++
	var res []uint32
	for i := 0; i < length; i++ {
		v, _ := f.ReadAPReg(ctx, apSel, apReg)
		res = append(res, v)
	}
	return res, nil
}

func (f *fakeDP) WriteAPRegMulti(ctx context.Context, apSel, apReg uint8, values []uint32) error {
	for _, v := range values {
		f.WriteAPReg(ctx, apSel, apReg, v)
	}
	return nil
}

func TestInit(t *testing.T) {
	f := newFakeDP()
	mapc := NewMemAPClient(f, 0)
	require.NoError(t, mapc.Init(context.Background()))
	assert.Equal(t, uint32(cswWordIncr), f.csw)

	f.csw = 0
	assert.Error(t, mapc.Init(context.Background()))
}

func TestRegAccess(t *testing.T) {
	f := newFakeDP()
	mapc := NewMemAPClient(f, 0)
	ctx := context.Background()
	require.NoError(t, mapc.WriteTargetReg(ctx, 0x402a8000, 0xdeadbeef))
	v, err := mapc.ReadTargetReg(ctx, 0x402a8000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v)
}

func TestUnalignedRead(t *testing.T) {
	f := newFakeDP()
	f.mem[0x1000] = 0x03020100
	f.mem[0x1004] = 0x07060504
	f.mem[0x1008] = 0x0b0a0908
	mapc := NewMemAPClient(f, 0)
	buf := make([]byte, 7)
	require.NoError(t, mapc.ReadTargetMem(context.Background(), 0x1003, buf))
	assert.Equal(t, []byte{3, 4, 5, 6, 7, 8, 9}, buf)
}

func TestUnalignedWriteMerges(t *testing.T) {
	f := newFakeDP()
	f.mem[0x2000] = 0xaaaaaaaa
	f.mem[0x2004] = 0xbbbbbbbb
	mapc := NewMemAPClient(f, 0)
	require.NoError(t, mapc.WriteTargetMem(context.Background(), 0x2002, []byte{1, 2, 3}))
	assert.Equal(t, uint32(0x0201aaaa), f.mem[0x2000])
	assert.Equal(t, uint32(0xbbbbbb03), f.mem[0x2004])
}

func TestSingleWordPartialWrite(t *testing.T) {
	f := newFakeDP()
	f.mem[0x2000] = 0x44332211
	mapc := NewMemAPClient(f, 0)
	require.NoError(t, mapc.WriteTargetMem(context.Background(), 0x2001, []byte{0xee}))
	assert.Equal(t, uint32(0x4433ee11), f.mem[0x2000])
	require.NoError(t, mapc.WriteTargetMem(context.Background(), 0x2000, []byte{0x99}))
	assert.Equal(t, uint32(0x4433ee99), f.mem[0x2000])
}

func TestReadSplitsAtAutoIncrementBoundary(t *testing.T) {
	f := newFakeDP()
	mapc := NewMemAPClient(f, 0)
	buf := make([]byte, 16)
	require.NoError(t, mapc.ReadTargetMem(context.Background(), 0x3f8, buf))
	assert.Equal(t, 2, f.blockReads)
}

func TestDebugBase(t *testing.T) {
	f := newFakeDP()
	mapc := NewMemAPClient(f, 0)
	f.base = 0xe00fd003
	base, err := mapc.DebugBase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(0xe00fd000), base)

	f.base = 0xffffffff
	_, err = mapc.DebugBase(context.Background())
	assert.Error(t, err)
}
