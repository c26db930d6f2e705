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
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mosprobe/cli/flash/common"
	"github.com/mongoose-os/mosprobe/cli/flash/common/cmsis-dap/dp"
)

type MemAPReg uint8

const (
	CSW  MemAPReg = 0x00
	TAR  MemAPReg = 0x04
	DRW  MemAPReg = 0x0c
	BD0  MemAPReg = 0x10
	BD1  MemAPReg = 0x14
	BD2  MemAPReg = 0x18
	BD3  MemAPReg = 0x1c
	BASE MemAPReg = 0xf8
	IDR  MemAPReg = 0xfc
)

const (
	CSW_DeviceEn = 0x40

	// Basic mode, word access, single auto-increment, privileged data access.
	cswWordIncr = 0x23000052

	// Auto-increment is only guaranteed within a 1K block.
	autoIncrBlock = 0x400

	baseFormatARMv7  = 0x2
	baseEntryPresent = 0x1
)

type MemAPClient interface {
	common.TargetMemReaderWriter

	Init(ctx context.Context) error
	ReadReg(ctx context.Context, reg MemAPReg) (uint32, error)
	WriteReg(ctx context.Context, reg MemAPReg, value uint32) error
	// DebugBase returns the address of the top-level ROM table.
	DebugBase(ctx context.Context) (uint32, error)
}

type memAPClient struct {
	dpc   dp.DPClient
	apSel uint8
}

func NewMemAPClient(dpc dp.DPClient, apSel uint8) MemAPClient {
	return &memAPClient{dpc: dpc, apSel: apSel}
}

func (mapc *memAPClient) ReadReg(ctx context.Context, reg MemAPReg) (uint32, error) {
	value, err := mapc.dpc.ReadAPReg(ctx, mapc.apSel, uint8(reg))
	glog.V(4).Infof("%s == 0x%08x", reg, value)
	return value, err
}

func (mapc *memAPClient) WriteReg(ctx context.Context, reg MemAPReg, value uint32) error {
	glog.V(4).Infof("%s = 0x%08x", reg, value)
	return mapc.dpc.WriteAPReg(ctx, mapc.apSel, uint8(reg), value)
}

func (mapc *memAPClient) Init(ctx context.Context) error {
	csw, err := mapc.ReadReg(ctx, CSW)
	if err != nil {
		return errors.Trace(err)
	}
	if csw&CSW_DeviceEn == 0 {
		return errors.Errorf("MEM-AP is disabled")
	}
	return errors.Trace(mapc.WriteReg(ctx, CSW, cswWordIncr))
}

func (mapc *memAPClient) DebugBase(ctx context.Context) (uint32, error) {
	base, err := mapc.ReadReg(ctx, BASE)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read BASE")
	}
	if base == 0xffffffff || base&baseFormatARMv7 == 0 || base&baseEntryPresent == 0 {
		return 0, errors.NotFoundf("debug entry (BASE 0x%08x)", base)
	}
	return base &^ 0xfff, nil
}

func (mapc *memAPClient) ReadTargetReg(ctx context.Context, addr uint32) (uint32, error) {
	if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
		return 0, errors.Trace(err)
	}
	value, err := mapc.ReadReg(ctx, DRW)
	glog.V(4).Infof("ReadTargetReg(0x%08x) == 0x%08x", addr, value)
	return value, errors.Trace(err)
}

func (mapc *memAPClient) WriteTargetReg(ctx context.Context, addr uint32, value uint32) error {
	if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
		return errors.Trace(err)
	}
	glog.V(4).Infof("WriteTargetReg(0x%08x, 0x%08x)", addr, value)
	return errors.Trace(mapc.WriteReg(ctx, DRW, value))
}

// readWords reads n words starting at the word-aligned address addr.
func (mapc *memAPClient) readWords(ctx context.Context, addr uint32, n int) ([]uint32, error) {
	res := make([]uint32, 0, n)
	for len(res) < n {
		if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
			return nil, errors.Trace(err)
		}
		cl := int((autoIncrBlock - addr%autoIncrBlock) / 4)
		if cl > n-len(res) {
			cl = n - len(res)
		}
		values, err := mapc.dpc.ReadAPRegMulti(ctx, mapc.apSel, uint8(DRW), cl)
		if err != nil {
			return nil, errors.Trace(err)
		}
		res = append(res, values...)
		addr += uint32(cl * 4)
	}
	return res, nil
}

// writeWords writes data starting at the word-aligned address addr.
func (mapc *memAPClient) writeWords(ctx context.Context, addr uint32, data []uint32) error {
	for len(data) > 0 {
		if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
			return errors.Trace(err)
		}
		cl := int((autoIncrBlock - addr%autoIncrBlock) / 4)
		if cl > len(data) {
			cl = len(data)
		}
		if err := mapc.dpc.WriteAPRegMulti(ctx, mapc.apSel, uint8(DRW), data[:cl]); err != nil {
			return errors.Trace(err)
		}
		addr += uint32(cl * 4)
		data = data[cl:]
	}
	return nil
}

func wordSpan(addr uint32, length int) (uint32, int) {
	start := addr &^ 3
	end := (uint64(addr) + uint64(length) + 3) &^ 3
	return start, int((end - uint64(start)) / 4)
}

func (mapc *memAPClient) ReadTargetMem(ctx context.Context, addr uint32, buf []byte) error {
	glog.V(4).Infof("ReadTargetMem(0x%08x, %d)", addr, len(buf))
	if len(buf) == 0 {
		return nil
	}
	start, n := wordSpan(addr, len(buf))
	words, err := mapc.readWords(ctx, start, n)
	if err != nil {
		return errors.Annotatef(err, "failed to read %d @ 0x%08x", len(buf), addr)
	}
	raw := make([]byte, n*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(raw[i*4:], w)
	}
	copy(buf, raw[addr-start:])
	return nil
}

func (mapc *memAPClient) WriteTargetMem(ctx context.Context, addr uint32, data []byte) error {
	glog.V(4).Infof("WriteTargetMem(0x%08x, %d)", addr, len(data))
	if len(data) == 0 {
		return nil
	}
	start, n := wordSpan(addr, len(data))
	raw := make([]byte, n*4)
	head := int(addr - start)
	tail := len(raw) - head - len(data)
	// Partial words at either end are merged with what's already there.
	if head != 0 {
		if err := mapc.ReadTargetMem(ctx, start, raw[:4]); err != nil {
			return errors.Trace(err)
		}
	}
	if tail != 0 && (n > 1 || head == 0) {
		if err := mapc.ReadTargetMem(ctx, start+uint32(len(raw)-4), raw[len(raw)-4:]); err != nil {
			return errors.Trace(err)
		}
	}
	copy(raw[head:], data)
	words := make([]uint32, n)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return errors.Annotatef(mapc.writeWords(ctx, start, words), "failed to write %d @ 0x%08x", len(data), addr)
}

func (r MemAPReg) String() string {
	switch r {
	case CSW:
		return "CSW"
	case TAR:
		return "TAR"
	case DRW:
		return "DRW"
	case BD0:
		return "BD0"
	case BD1:
		return "BD1"
	case BD2:
		return "BD2"
	case BD3:
		return "BD3"
	case BASE:
		return "BASE"
	case IDR:
		return "IDR"
	}
	return fmt.Sprintf("0x%x", uint8(r))
}
