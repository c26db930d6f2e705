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
package imxrt

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mosprobe/cli/flash/common"
	"github.com/mongoose-os/mosprobe/cli/flash/spiflash"
	"github.com/mongoose-os/mosprobe/common/multierror"
)

// Completion of an IP command is normally observed on the first or second poll.
const maxCmdPolls = 1000

type lutInsn struct {
	value      uint8
	opcodeMode uint8
}

func newInsn(op uint8, value uint8) lutInsn {
	return lutInsn{value: value, opcodeMode: (op&0x3f)<<2 | lutPadsOne}
}

func (li lutInsn) op() uint8 {
	return li.opcodeMode >> 2
}

func (li lutInsn) String() string {
	return fmt.Sprintf("%02x:%02x", li.op(), li.value)
}

type lutSeq [lutSeqInsns]lutInsn

func (ls *lutSeq) bytes() []byte {
	b := make([]byte, lutSeqBytes)
	for i, li := range ls {
		b[i*2], b[i*2+1] = li.value, li.opcodeMode
	}
	return b
}

func parseLUTSeq(b []byte) lutSeq {
	var ls lutSeq
	for i := range ls {
		ls[i] = lutInsn{value: b[i*2], opcodeMode: b[i*2+1]}
	}
	return ls
}

// newLUTSeq builds the sequence that puts cmd on the wire. cas is the number of
// column address bits configured for the flash.
func newLUTSeq(cmd spiflash.Command, cas uint8, length int) lutSeq {
	var ls lutSeq
	n := 0
	ls[n] = newInsn(lutOpCmd, cmd.Opcode())
	n++
	if cmd.HasAddress() {
		ls[n] = newInsn(lutOpRAddr, 24-cas)
		n++
		if cas > 0 {
			ls[n] = newInsn(lutOpCAddr, cas)
			n++
		}
	}
	ls[n] = newInsn(lutOpDummy, cmd.DummyCycles())
	n++
	if length > 0 {
		op := uint8(lutOpRead)
		if cmd.IsWrite() {
			op = lutOpWrite
		}
		ls[n] = newInsn(op, 0)
	}
	// The rest is zero, which is STOP.
	return ls
}

// sequencer runs SPI flash commands through the IP command interface of FlexSPI1,
// using LUT sequence 0. The original contents of the sequence are restored after every command.
type sequencer struct {
	mem   common.TargetMemReaderWriter
	saved lutSeq
}

func (s *sequencer) MaxTransfer() int {
	return fifoBytes
}

func (s *sequencer) Read(ctx context.Context, cmd spiflash.Command, addr uint32, buf []byte) error {
	if cmd.IsWrite() {
		return errors.NotValidf("read using %s", cmd)
	}
	return errors.Trace(s.transfer(ctx, cmd, addr, buf))
}

func (s *sequencer) Write(ctx context.Context, cmd spiflash.Command, addr uint32, data []byte) error {
	if !cmd.IsWrite() && len(data) > 0 {
		return errors.NotValidf("write using %s", cmd)
	}
	return errors.Trace(s.transfer(ctx, cmd, addr, data))
}

func (s *sequencer) transfer(ctx context.Context, cmd spiflash.Command, addr uint32, data []byte) (err error) {
	if len(data) > fifoBytes {
		return errors.NotValidf("transfer of %d bytes (max %d)", len(data), fifoBytes)
	}
	if err := s.saveLUT(ctx); err != nil {
		return errors.Trace(err)
	}
	defer func() {
		err = multierror.Append(err, errors.Annotatef(s.restoreLUT(ctx), "failed to restore LUT"))
	}()
	if err := s.configure(ctx, cmd, addr, len(data)); err != nil {
		return errors.Annotatef(err, "%s: failed to configure sequence", cmd)
	}
	if cmd.IsWrite() && len(data) > 0 {
		var fifo [fifoBytes]byte
		copy(fifo[:], data)
		if err := s.mem.WriteTargetMem(ctx, flexspiTFDR, fifo[:(len(data)+3)&^3]); err != nil {
			return errors.Annotatef(err, "%s: failed to fill TX FIFO", cmd)
		}
		if err := s.mem.WriteTargetReg(ctx, flexspiINTR, intrIPTxWatermark); err != nil {
			return errors.Trace(err)
		}
	}
	if err := s.run(ctx); err != nil {
		return errors.Annotatef(err, "%s", cmd)
	}
	if !cmd.IsWrite() && len(data) > 0 {
		var fifo [fifoBytes]byte
		if err := s.mem.ReadTargetMem(ctx, flexspiRFDR, fifo[:]); err != nil {
			return errors.Annotatef(err, "%s: failed to read RX FIFO", cmd)
		}
		copy(data, fifo[:])
		if err := s.mem.WriteTargetReg(ctx, flexspiINTR, intrIPRxWatermark); err != nil {
			return errors.Trace(err)
		}
	}
	glog.V(4).Infof("%s @ 0x%x: %d bytes", cmd, addr, len(data))
	return nil
}

func (s *sequencer) saveLUT(ctx context.Context) error {
	b := make([]byte, lutSeqBytes)
	if err := s.mem.ReadTargetMem(ctx, flexspiLUT, b); err != nil {
		return errors.Annotatef(err, "failed to save LUT")
	}
	s.saved = parseLUTSeq(b)
	return nil
}

func (s *sequencer) restoreLUT(ctx context.Context) error {
	return s.mem.WriteTargetMem(ctx, flexspiLUT, s.saved.bytes())
}

func (s *sequencer) configure(ctx context.Context, cmd spiflash.Command, addr uint32, length int) error {
	var cas uint8
	if cmd.HasAddress() {
		cr1, err := s.mem.ReadTargetReg(ctx, flexspiFLSHA1CR1)
		if err != nil {
			return errors.Trace(err)
		}
		cas = uint8((cr1 & flshcr1CASMask) >> flshcr1CASShift)
	}
	ls := newLUTSeq(cmd, cas, length)
	glog.V(4).Infof("LUT: %v", ls)
	if err := s.mem.WriteTargetMem(ctx, flexspiLUT, ls.bytes()); err != nil {
		return errors.Trace(err)
	}
	if cmd.HasAddress() {
		if err := s.mem.WriteTargetReg(ctx, flexspiIPCR0, addr); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(s.mem.WriteTargetReg(ctx, flexspiIPCR1, ipcr1SeqIndex0|uint32(length)&ipcr1LengthMask))
}

// run triggers the configured sequence and waits for it to complete.
func (s *sequencer) run(ctx context.Context) error {
	if err := s.mem.WriteTargetReg(ctx, flexspiIPCMD, ipcmdTrigger); err != nil {
		return errors.Trace(err)
	}
	for i := 0; ; i++ {
		intr, err := s.mem.ReadTargetReg(ctx, flexspiINTR)
		if err != nil {
			return errors.Trace(err)
		}
		if intr&intrIPCmdDone != 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		if i >= maxCmdPolls {
			sts1, _ := s.mem.ReadTargetReg(ctx, flexspiSTS1)
			return errors.Timeoutf("IP command (INTR 0x%08x STS1 0x%08x)", intr, sts1)
		}
	}
	return errors.Trace(s.mem.WriteTargetReg(ctx, flexspiINTR, intrIPCmdDone))
}
