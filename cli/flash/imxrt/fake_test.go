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
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/mongoose-os/mosprobe/cli/flash/spiflash"
)

// fakeNOR is a SPI NOR chip.
type fakeNOR struct {
	id        [3]byte
	mem       []byte
	sfdp      []byte
	wel       bool
	ignoreWEN bool
	// Number of status reads a program or erase stays busy for, -1 is forever.
	busyPolls int
	busy      int
	ops       []uint8
}

func newFakeNOR(size int) *fakeNOR {
	return &fakeNOR{
		id:  [3]byte{0xef, 0x40, 0x18},
		mem: bytes.Repeat([]byte{0xff}, size),
	}
}

func (fn *fakeNOR) status() byte {
	var st byte
	if fn.wel {
		st |= spiflash.StatusWriteEnabled
	}
	if fn.busy != 0 {
		st |= spiflash.StatusBusy
		if fn.busy > 0 {
			fn.busy--
		}
	}
	return st
}

func (fn *fakeNOR) startOp() {
	fn.wel = false
	fn.busy = fn.busyPolls
}

// exec runs one SPI transaction. data is the contents of the FIFO.
func (fn *fakeNOR) exec(opcode uint8, addr uint32, dummy uint8, data []byte) error {
	fn.ops = append(fn.ops, opcode)
	switch opcode {
	case spiflash.OpReadJEDECID:
		copy(data, fn.id[:])
	case spiflash.OpReadStatus:
		for i := range data {
			data[i] = fn.status()
		}
	case spiflash.OpReadSFDP:
		if dummy != 8 {
			return fmt.Errorf("SFDP read with %d dummy cycles", dummy)
		}
		for i := range data {
			data[i] = 0xff
			if int(addr)+i < len(fn.sfdp) {
				data[i] = fn.sfdp[int(addr)+i]
			}
		}
	case spiflash.OpRead:
		copy(data, fn.mem[addr:])
	case spiflash.OpWriteEnable:
		fn.wel = !fn.ignoreWEN
	case spiflash.OpChipErase:
		if fn.wel {
			for i := range fn.mem {
				fn.mem[i] = 0xff
			}
			fn.startOp()
		}
	case spiflash.OpSectorErase:
		if fn.wel {
			addr &^= 0xfff
			for i := uint32(0); i < 0x1000; i++ {
				fn.mem[addr+i] = 0xff
			}
			fn.startOp()
		}
	case spiflash.OpPageProgram:
		if fn.wel {
			if addr/256 != (addr+uint32(len(data))-1)/256 {
				return fmt.Errorf("program crosses page boundary: %d @ 0x%x", len(data), addr)
			}
			for i, b := range data {
				fn.mem[addr+uint32(i)] &= b
			}
			fn.startOp()
		}
	default:
		return fmt.Errorf("unknown opcode 0x%02x", opcode)
	}
	return nil
}

// fakeRT models the parts of an i.MXRT1060 the driver touches: SRC boot mode
// registers and FlexSPI1 with a NOR chip attached.
type fakeRT struct {
	regs map[uint32]uint32
	lut  [64 * 4]byte
	rfdr [fifoBytes]byte
	tfdr [fifoBytes]byte
	nor  *fakeNOR

	keyArmed bool
	// When set, IP commands never complete.
	hang bool

	lutWritesLocked int
	rfdrReads       int
	tfdrWrites      int
	memWrites       int
	seqs            []lutSeq
	errs            []error
}

func newFakeRT(bootCfg uint32) *fakeRT {
	return &fakeRT{
		regs: map[uint32]uint32{
			srcSBMR1:         bootCfg,
			srcSBMR2:         0x02000000,
			flexspiMCR0:      0xffff80c2,
			flexspiLUTCR:     lutcrLock,
			flexspiINTR:      intrIPTxWatermark,
			flexspiFLSHA1CR0: 0x4000,
		},
		nor: newFakeNOR(16 * 1024 * 1024),
	}
}

func (fr *fakeRT) lutLocked() bool {
	return fr.regs[flexspiLUTCR]&lutcrUnlock == 0
}

func (fr *fakeRT) fail(format string, args ...interface{}) {
	fr.errs = append(fr.errs, fmt.Errorf(format, args...))
}

func (fr *fakeRT) runIPCommand() {
	ls := parseLUTSeq(fr.lut[:lutSeqBytes])
	fr.seqs = append(fr.seqs, ls)
	var opcode, dummy uint8
	addr := fr.regs[flexspiIPCR0]
	length := int(fr.regs[flexspiIPCR1] & ipcr1LengthMask)
	var data []byte
	hasData := false
	for _, li := range ls {
		switch li.op() {
		case lutOpCmd:
			opcode = li.value
		case lutOpRAddr, lutOpCAddr:
		case lutOpDummy:
			dummy = li.value
		case lutOpRead:
			hasData = true
			for i := range fr.rfdr {
				fr.rfdr[i] = 0
			}
			data = fr.rfdr[:length]
		case lutOpWrite:
			hasData = true
			data = fr.tfdr[:length]
		}
		if li.op() == lutOpStop {
			break
		}
	}
	if hasData != (length > 0) {
		fr.fail("sequence %v with length %d", ls, length)
	}
	if err := fr.nor.exec(opcode, addr, dummy, data); err != nil {
		fr.fail("%s", err)
	}
	if !fr.hang {
		fr.regs[flexspiINTR] |= intrIPCmdDone
	}
}

func (fr *fakeRT) write32(addr, v uint32) {
	if addr != flexspiLUTKEY && addr != flexspiLUTCR {
		fr.keyArmed = false
	}
	switch addr {
	case flexspiINTR:
		fr.regs[addr] &^= v
	case flexspiLUTKEY:
		fr.keyArmed = v == lutKey
	case flexspiLUTCR:
		if !fr.keyArmed {
			fr.fail("LUTCR write without key")
			return
		}
		fr.keyArmed = false
		fr.regs[addr] = v
	case flexspiIPCMD:
		if v&ipcmdTrigger != 0 {
			fr.runIPCommand()
		}
	default:
		fr.regs[addr] = v
	}
}

func (fr *fakeRT) ReadTargetReg(ctx context.Context, addr uint32) (uint32, error) {
	var buf [4]byte
	if err := fr.ReadTargetMem(ctx, addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (fr *fakeRT) ReadTargetMem(ctx context.Context, addr uint32, buf []byte) error {
	switch {
	case addr >= FlexSPIFlashBase && addr < FlexSPIFlashBase+uint32(len(fr.nor.mem)):
		copy(buf, fr.nor.mem[addr-FlexSPIFlashBase:])
	case addr >= flexspiLUT && addr < flexspiLUT+uint32(len(fr.lut)):
		copy(buf, fr.lut[addr-flexspiLUT:])
	case addr >= flexspiRFDR && addr < flexspiRFDR+fifoBytes:
		fr.rfdrReads++
		copy(buf, fr.rfdr[addr-flexspiRFDR:])
	default:
		if addr%4 != 0 || len(buf)%4 != 0 {
			return fmt.Errorf("unaligned register read %d @ 0x%08x", len(buf), addr)
		}
		for i := 0; i < len(buf); i += 4 {
			binary.LittleEndian.PutUint32(buf[i:], fr.regs[addr+uint32(i)])
		}
	}
	return nil
}

func (fr *fakeRT) WriteTargetReg(ctx context.Context, addr uint32, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return fr.WriteTargetMem(ctx, addr, buf[:])
}

func (fr *fakeRT) WriteTargetMem(ctx context.Context, addr uint32, data []byte) error {
	fr.memWrites++
	switch {
	case addr >= flexspiLUT && addr < flexspiLUT+uint32(len(fr.lut)):
		fr.keyArmed = false
		if fr.lutLocked() {
			fr.lutWritesLocked++
			return nil
		}
		copy(fr.lut[addr-flexspiLUT:], data)
	case addr >= flexspiTFDR && addr < flexspiTFDR+fifoBytes:
		fr.keyArmed = false
		fr.tfdrWrites++
		copy(fr.tfdr[addr-flexspiTFDR:], data)
	default:
		if addr%4 != 0 || len(data)%4 != 0 {
			return fmt.Errorf("unaligned register write %d @ 0x%08x", len(data), addr)
		}
		for i := 0; i < len(data); i += 4 {
			fr.write32(addr+uint32(i), binary.LittleEndian.Uint32(data[i:]))
		}
	}
	return nil
}
