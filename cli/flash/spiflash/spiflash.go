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
package spiflash

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// Sequencer puts a single Command on the wire: opcode, optional address,
// dummy cycles and a data phase of len(buf) bytes (none if empty).
type Sequencer interface {
	Read(ctx context.Context, cmd Command, addr uint32, buf []byte) error
	Write(ctx context.Context, cmd Command, addr uint32, data []byte) error
	// MaxTransfer is the largest data phase supported by a single command.
	MaxTransfer() int
}

// PollFunc is invoked between busy polls. Returning an error stops the wait.
type PollFunc func() error

type JEDECID struct {
	Manufacturer uint8
	Type         uint8
	Capacity     uint8
}

// Valid reports whether a chip responded. A floating bus reads as 0xff.
func (id JEDECID) Valid() bool {
	return id.Manufacturer != 0xff && id.Type != 0xff && id.Capacity != 0xff
}

func (id JEDECID) CapacityBytes() uint32 {
	if id.Capacity >= 32 {
		return 0
	}
	return 1 << id.Capacity
}

func (id JEDECID) String() string {
	return fmt.Sprintf("%02X %02X %02X", id.Manufacturer, id.Type, id.Capacity)
}

func ReadJEDECID(ctx context.Context, seq Sequencer) (JEDECID, error) {
	var buf [3]byte
	if err := seq.Read(ctx, CmdReadJEDECID, 0, buf[:]); err != nil {
		return JEDECID{}, errors.Annotatef(err, "failed to read JEDEC ID")
	}
	return JEDECID{Manufacturer: buf[0], Type: buf[1], Capacity: buf[2]}, nil
}

func ReadStatus(ctx context.Context, seq Sequencer) (uint8, error) {
	var buf [1]byte
	if err := seq.Read(ctx, CmdReadStatus, 0, buf[:]); err != nil {
		return 0, errors.Annotatef(err, "failed to read status")
	}
	return buf[0], nil
}

// RunCommand issues a command without a data phase.
func RunCommand(ctx context.Context, seq Sequencer, cmd Command, addr uint32) error {
	return errors.Annotatef(seq.Write(ctx, cmd, addr, nil), "%s", cmd)
}

// WriteEnable sends WREN and verifies that the chip latched it.
func WriteEnable(ctx context.Context, seq Sequencer) error {
	if err := RunCommand(ctx, seq, CmdWriteEnable, 0); err != nil {
		return errors.Trace(err)
	}
	st, err := ReadStatus(ctx, seq)
	if err != nil {
		return errors.Trace(err)
	}
	if st&StatusWriteEnabled == 0 {
		return errors.Errorf("write enable failed (status 0x%02x)", st)
	}
	return nil
}

// WaitReady polls the status register until the busy bit clears.
func WaitReady(ctx context.Context, seq Sequencer, poll PollFunc) error {
	for n := 0; ; n++ {
		st, err := ReadStatus(ctx, seq)
		if err != nil {
			return errors.Trace(err)
		}
		if st&StatusBusy == 0 {
			glog.V(4).Infof("ready after %d polls", n)
			return nil
		}
		if poll != nil {
			if err := poll(); err != nil {
				return errors.Trace(err)
			}
		}
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
	}
}

// ChipErase erases the whole chip. The chip must already be writable at the controller level.
func ChipErase(ctx context.Context, seq Sequencer, poll PollFunc) error {
	if err := WriteEnable(ctx, seq); err != nil {
		return errors.Trace(err)
	}
	if err := RunCommand(ctx, seq, CmdChipErase, 0); err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(WaitReady(ctx, seq, poll), "chip erase")
}

// EraseSector erases the sector containing addr.
func EraseSector(ctx context.Context, seq Sequencer, g Geometry, addr uint32, poll PollFunc) error {
	addr &^= g.SectorSize - 1
	glog.V(3).Infof("erase sector @ 0x%x", addr)
	if err := WriteEnable(ctx, seq); err != nil {
		return errors.Trace(err)
	}
	if err := RunCommand(ctx, seq, EraseCommand(g.SectorEraseOpcode), addr); err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(WaitReady(ctx, seq, poll), "erase sector @ 0x%x", addr)
}

// Program writes data at addr. Chunks never cross a page boundary.
func Program(ctx context.Context, seq Sequencer, g Geometry, addr uint32, data []byte, poll PollFunc) error {
	for len(data) > 0 {
		n := int(g.PageSize - addr%g.PageSize)
		if mt := seq.MaxTransfer(); n > mt {
			n = mt
		}
		if n > len(data) {
			n = len(data)
		}
		glog.V(4).Infof("program %d @ 0x%x", n, addr)
		if err := WriteEnable(ctx, seq); err != nil {
			return errors.Trace(err)
		}
		if err := seq.Write(ctx, CmdPageProgram, addr, data[:n]); err != nil {
			return errors.Annotatef(err, "program %d @ 0x%x", n, addr)
		}
		if err := WaitReady(ctx, seq, poll); err != nil {
			return errors.Annotatef(err, "program %d @ 0x%x", n, addr)
		}
		addr += uint32(n)
		data = data[n:]
	}
	return nil
}

// Read reads len(buf) bytes starting at addr.
func Read(ctx context.Context, seq Sequencer, addr uint32, buf []byte) error {
	return readChunked(ctx, seq, CmdRead, addr, buf)
}

func readChunked(ctx context.Context, seq Sequencer, cmd Command, addr uint32, buf []byte) error {
	mt := seq.MaxTransfer()
	for len(buf) > 0 {
		n := len(buf)
		if n > mt {
			n = mt
		}
		if err := seq.Read(ctx, cmd, addr, buf[:n]); err != nil {
			return errors.Annotatef(err, "read %d @ 0x%x", n, addr)
		}
		addr += uint32(n)
		buf = buf[n:]
	}
	return nil
}
