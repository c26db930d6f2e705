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
package dp

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mosprobe/cli/flash/common/cmsis-dap/dap"
)

type DPReg uint8

const (
	DPIDR      DPReg = 0x00 // read
	DPABORT    DPReg = 0x00 // write
	DPCTRLSTAT DPReg = 0x04
	DPSELECT   DPReg = 0x08
	DPRDBUFF   DPReg = 0x0c
)

const (
	ctrlStatCSYSPWRUPACK = 1 << 31
	ctrlStatCSYSPWRUPREQ = 1 << 30
	ctrlStatCDBGPWRUPACK = 1 << 29
	ctrlStatCDBGPWRUPREQ = 1 << 28
	ctrlStatCDBGRSTACK   = 1 << 27
	ctrlStatCDBGRSTREQ   = 1 << 26

	// STKCMPCLR | STKERRCLR | WDERRCLR | ORUNERRCLR
	abortClearErrors = 0x1e
)

// Power-up and reset handshakes normally complete within a couple of polls.
const maxPolls = 100

type DPClient interface {
	Init(ctx context.Context) error
	GetIDR(ctx context.Context) (DPIDRValue, error)
	DbgReset(ctx context.Context) error
	SetDbgPower(ctx context.Context, dbg, sys bool) error
	ClearErrors(ctx context.Context) error
	ReadDPReg(ctx context.Context, reg DPReg) (uint32, error)
	WriteDPReg(ctx context.Context, reg DPReg, value uint32) error
	ReadAPReg(ctx context.Context, apSel, apReg uint8) (uint32, error)
	ReadAPRegMulti(ctx context.Context, apSel, apReg uint8, length int) ([]uint32, error)
	WriteAPReg(ctx context.Context, apSel, apReg uint8, value uint32) error
	WriteAPRegMulti(ctx context.Context, apSel, apReg uint8, values []uint32) error
}

func NewDPClient(dapc dap.DAPClient) DPClient {
	return &dpClient{dapc: dapc, selectValue: 0xffffffff}
}

type dpClient struct {
	dapc dap.DAPClient

	// Cached SELECT value, all ones when unknown.
	selectValue uint32
}

func (dpc *dpClient) readReg(ctx context.Context, reg uint8, ap bool) (uint32, error) {
	_, data, err := dpc.dapc.Transfer(ctx, 0, []dap.TransferRequest{
		{Op: dap.OpRead, AP: ap, Reg: reg},
	})
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read reg 0x%x (ap %t)", reg, ap)
	}
	return data[0], nil
}

func (dpc *dpClient) writeReg(ctx context.Context, reg uint8, ap bool, value uint32) error {
	_, _, err := dpc.dapc.Transfer(ctx, 0, []dap.TransferRequest{
		{Op: dap.OpWrite, AP: ap, Reg: reg, Data: value},
	})
	return errors.Annotatef(err, "failed to write reg 0x%x (ap %t)", reg, ap)
}

func (dpc *dpClient) readRegMulti(ctx context.Context, reg uint8, ap bool, length int) ([]uint32, error) {
	maxChunkSize := dpc.dapc.GetTransferBlockMaxSize()
	res := make([]uint32, 0, length)
	for length > 0 {
		chunkSize := length
		if chunkSize > maxChunkSize {
			chunkSize = maxChunkSize
		}
		chunk, err := dpc.dapc.TransferBlockRead(ctx, 0, ap, reg, chunkSize)
		if err != nil {
			return nil, errors.Trace(err)
		}
		res = append(res, chunk...)
		length -= chunkSize
	}
	return res, nil
}

func (dpc *dpClient) writeRegMulti(ctx context.Context, reg uint8, ap bool, values []uint32) error {
	maxChunkSize := dpc.dapc.GetTransferBlockMaxSize()
	for len(values) > 0 {
		chunk := values
		if len(chunk) > maxChunkSize {
			chunk = chunk[:maxChunkSize]
		}
		if err := dpc.dapc.TransferBlockWrite(ctx, 0, ap, reg, chunk); err != nil {
			return errors.Trace(err)
		}
		values = values[len(chunk):]
	}
	return nil
}

func (dpc *dpClient) ReadDPReg(ctx context.Context, reg DPReg) (uint32, error) {
	value, err := dpc.readReg(ctx, uint8(reg), false /* ap */)
	glog.V(4).Infof("%s == 0x%08x", reg, value)
	return value, err
}

func (dpc *dpClient) WriteDPReg(ctx context.Context, reg DPReg, value uint32) error {
	glog.V(4).Infof("%s = 0x%08x", reg, value)
	return errors.Trace(dpc.writeReg(ctx, uint8(reg), false /* ap */, value))
}

func (dpc *dpClient) Init(ctx context.Context) error {
	if _, err := dpc.GetIDR(ctx); err != nil {
		return errors.Trace(err)
	}
	if err := dpc.ClearErrors(ctx); err != nil {
		return errors.Trace(err)
	}
	if err := dpc.WriteDPReg(ctx, DPSELECT, 0); err != nil {
		return errors.Trace(err)
	}
	dpc.selectValue = 0
	return errors.Trace(dpc.SetDbgPower(ctx, true, true))
}

func (dpc *dpClient) ClearErrors(ctx context.Context) error {
	return errors.Annotatef(dpc.WriteDPReg(ctx, DPABORT, abortClearErrors), "failed to clear sticky errors")
}

func (dpc *dpClient) GetIDR(ctx context.Context) (DPIDRValue, error) {
	v, err := dpc.ReadDPReg(ctx, DPIDR)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read DPIDR")
	}
	return DPIDRValue(v), nil
}

// pollCtrlStat reads CTRL/STAT until done returns true.
func (dpc *dpClient) pollCtrlStat(ctx context.Context, what string, done func(uint32) bool) (uint32, error) {
	for i := 0; i < maxPolls; i++ {
		v, err := dpc.ReadDPReg(ctx, DPCTRLSTAT)
		if err != nil {
			return 0, errors.Annotatef(err, "failed to read DPCTRLSTAT")
		}
		if done(v) {
			return v, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, errors.Annotatef(err, "waiting for %s", what)
		}
	}
	return 0, errors.Timeoutf("waiting for %s", what)
}

func (dpc *dpClient) SetDbgPower(ctx context.Context, dbg, sys bool) error {
	var reqMask, ackMask uint32
	if dbg {
		reqMask |= ctrlStatCDBGPWRUPREQ
		ackMask |= ctrlStatCDBGPWRUPACK
	}
	if sys {
		reqMask |= ctrlStatCSYSPWRUPREQ
		ackMask |= ctrlStatCSYSPWRUPACK
	}
	statValue, err := dpc.ReadDPReg(ctx, DPCTRLSTAT)
	if err != nil {
		return errors.Annotatef(err, "failed to read DPCTRLSTAT")
	}
	if err := dpc.WriteDPReg(ctx, DPCTRLSTAT, (statValue&0x07ffffff)|reqMask); err != nil {
		return errors.Annotatef(err, "failed to write DPCTRLSTAT")
	}
	_, err = dpc.pollCtrlStat(ctx, "power-up ack", func(v uint32) bool {
		return v&0xf0000000 == reqMask|ackMask
	})
	return errors.Trace(err)
}

func (dpc *dpClient) DbgReset(ctx context.Context) error {
	statValue, err := dpc.ReadDPReg(ctx, DPCTRLSTAT)
	if err != nil {
		return errors.Annotatef(err, "failed to read DPCTRLSTAT")
	}
	if err := dpc.WriteDPReg(ctx, DPCTRLSTAT, (statValue&0xf3ffffff)|ctrlStatCDBGRSTREQ); err != nil {
		return errors.Annotatef(err, "failed to write DPCTRLSTAT")
	}
	statValue, err = dpc.pollCtrlStat(ctx, "debug reset ack", func(v uint32) bool {
		return v&ctrlStatCDBGRSTACK != 0
	})
	if err != nil {
		return errors.Trace(err)
	}
	if err := dpc.WriteDPReg(ctx, DPCTRLSTAT, statValue&0xf3ffffff); err != nil {
		return errors.Annotatef(err, "failed to write DPCTRLSTAT")
	}
	_, err = dpc.pollCtrlStat(ctx, "debug reset release", func(v uint32) bool {
		return v&ctrlStatCDBGRSTACK == 0
	})
	return errors.Trace(err)
}

func (dpc *dpClient) selectAP(ctx context.Context, apSel, apReg uint8) (uint8, error) {
	apBank := apReg / 16
	sv := (uint32(apSel) << 24) | (uint32(apBank&0xf) << 4)
	if sv != dpc.selectValue {
		if err := dpc.WriteDPReg(ctx, DPSELECT, sv); err != nil {
			dpc.selectValue = 0xffffffff
			return 0, errors.Annotatef(err, "failed to select AP %d bank %d", apSel, apBank)
		}
		dpc.selectValue = sv
	}
	return apReg % 16, nil
}

func (dpc *dpClient) ReadAPReg(ctx context.Context, apSel, apReg uint8) (uint32, error) {
	reg, err := dpc.selectAP(ctx, apSel, apReg)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return dpc.readReg(ctx, reg, true /* ap */)
}

func (dpc *dpClient) ReadAPRegMulti(ctx context.Context, apSel, apReg uint8, length int) ([]uint32, error) {
	reg, err := dpc.selectAP(ctx, apSel, apReg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return dpc.readRegMulti(ctx, reg, true /* ap */, length)
}

func (dpc *dpClient) WriteAPReg(ctx context.Context, apSel, apReg uint8, value uint32) error {
	reg, err := dpc.selectAP(ctx, apSel, apReg)
	if err != nil {
		return errors.Trace(err)
	}
	return dpc.writeReg(ctx, reg, true /* ap */, value)
}

func (dpc *dpClient) WriteAPRegMulti(ctx context.Context, apSel, apReg uint8, values []uint32) error {
	reg, err := dpc.selectAP(ctx, apSel, apReg)
	if err != nil {
		return errors.Trace(err)
	}
	return dpc.writeRegMulti(ctx, reg, true /* ap */, values)
}

type DPIDRValue uint32

type DPDesigner uint16

func (v DPIDRValue) Designer() DPDesigner {
	return DPDesigner((v >> 1) & 0x7ff)
}

func (v DPIDRValue) Version() uint8 {
	return uint8((v >> 12) & 0xf)
}

func (v DPIDRValue) Minimal() bool {
	return (v>>16)&1 != 0
}

func (v DPIDRValue) PartNumber() uint8 {
	return uint8((v >> 20) & 0xff)
}

func (v DPIDRValue) Revision() uint8 {
	return uint8((v >> 28) & 0xf)
}

func (v DPIDRValue) String() string {
	return fmt.Sprintf("DPv%d r%d (%s)", v.Version(), v.Revision(), v.Designer())
}

func (v DPDesigner) String() string {
	if v == 0x23b {
		return "ARM"
	}
	return fmt.Sprintf("0x%03x", uint16(v))
}

func (r DPReg) String() string {
	switch r {
	case DPIDR:
		return "DPIDR"
	case DPCTRLSTAT:
		return "DPCTRLSTAT"
	case DPSELECT:
		return "DPSELECT"
	case DPRDBUFF:
		return "DPRDBUFF"
	}
	return fmt.Sprintf("0x%x", uint8(r))
}
