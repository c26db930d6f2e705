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

// Package spiflash contains the controller-agnostic SPI NOR flash command set
// and the operations built on top of it. Controller drivers provide a Sequencer
// that knows how to put a Command on the wire.
package spiflash

import (
	"fmt"
)

// Command describes one flash transaction independently of the controller:
// opcode in bits [7:0], dummy cycle count in [15:8], address mode in bit 16
// (opcode only or 3-byte address) and data direction in bit 17.
// Transfer length is given by the buffer that accompanies the command.
type Command uint32

const (
	opcodeMask   Command = 0x000000ff
	dummyMask    Command = 0x0000ff00
	dummyShift           = 8
	addrModeMask Command = 0x00010000
	dataDirMask  Command = 0x00020000

	OpcodeOnly   Command = 0 << 16
	Opcode3BAddr Command = 1 << 16
	DataIn       Command = 0 << 17
	DataOut      Command = 1 << 17
)

// Opcodes.
const (
	OpPageProgram = 0x02
	OpRead        = 0x03
	OpReadStatus  = 0x05
	OpWriteEnable = 0x06
	OpSectorErase = 0x20
	OpReadSFDP    = 0x5a
	OpChipErase   = 0x60
	OpReadJEDECID = 0x9f
)

// Status register bits.
const (
	StatusBusy         = 0x01
	StatusWriteEnabled = 0x02
)

const (
	CmdWriteEnable = OpcodeOnly | 0<<dummyShift | OpWriteEnable
	CmdChipErase   = OpcodeOnly | 0<<dummyShift | OpChipErase
	CmdReadStatus  = OpcodeOnly | DataIn | 0<<dummyShift | OpReadStatus
	CmdReadJEDECID = OpcodeOnly | DataIn | 0<<dummyShift | OpReadJEDECID
	CmdReadSFDP    = Opcode3BAddr | DataIn | 8<<dummyShift | OpReadSFDP
	CmdRead        = Opcode3BAddr | DataIn | 0<<dummyShift | OpRead
	CmdPageProgram = Opcode3BAddr | DataOut | 0<<dummyShift | OpPageProgram
)

// NewCommand packs a command value.
func NewCommand(opcode uint8, withAddr bool, dummyCycles uint8, write bool) Command {
	c := Command(opcode) | Command(dummyCycles)<<dummyShift
	if withAddr {
		c |= Opcode3BAddr
	}
	if write {
		c |= DataOut
	}
	return c
}

// EraseCommand returns the command for an addressed erase with the given opcode.
func EraseCommand(opcode uint8) Command {
	return NewCommand(opcode, true, 0, true)
}

func (c Command) Opcode() uint8 {
	return uint8(c & opcodeMask)
}

func (c Command) DummyCycles() uint8 {
	return uint8((c & dummyMask) >> dummyShift)
}

func (c Command) HasAddress() bool {
	return c&addrModeMask == Opcode3BAddr
}

func (c Command) IsWrite() bool {
	return c&dataDirMask == DataOut
}

func (c Command) String() string {
	addr, dir := "", "in"
	if c.HasAddress() {
		addr = " addr24"
	}
	if c.IsWrite() {
		dir = "out"
	}
	return fmt.Sprintf("0x%02x%s dummy %d %s", c.Opcode(), addr, c.DummyCycles(), dir)
}
