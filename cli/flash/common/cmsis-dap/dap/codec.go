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
package dap

import (
	"bytes"
	"encoding/binary"

	"github.com/juju/errors"
)

type cmd uint8

const (
	cmdInfo              cmd = 0x00
	cmdSetHostStatus     cmd = 0x01
	cmdConnect           cmd = 0x02
	cmdDisconnect        cmd = 0x03
	cmdTransferConfigure cmd = 0x04
	cmdTransfer          cmd = 0x05
	cmdTransferBlock     cmd = 0x06
	cmdResetTarget       cmd = 0x0a
	cmdSWJClock          cmd = 0x11
	cmdSWJSequence       cmd = 0x12
	cmdSWDConfigure      cmd = 0x13
)

const (
	treqAP         = 1 << 0
	treqRead       = 1 << 1
	treqValueMatch = 1 << 4
	treqMatchMask  = 1 << 5
)

func newCmd(cmd cmd) *bytes.Buffer {
	return bytes.NewBuffer([]uint8{
		0, // HID report number (unused)
		uint8(cmd),
	})
}

func transferRequestByte(ap bool, reg uint8, op TransferOp) (uint8, error) {
	if reg&3 != 0 {
		return 0, errors.Errorf("invalid reg 0x%x", reg)
	}
	treq := reg & 0xc
	if ap {
		treq |= treqAP
	}
	switch op {
	case OpRead:
		treq |= treqRead
	case OpReadMatch:
		treq |= treqRead | treqValueMatch
	case OpWrite:
	case OpWriteMatch:
		treq |= treqMatchMask
	default:
		return 0, errors.Errorf("invalid op %d", op)
	}
	return treq, nil
}

func encodeTransfer(dapIndex uint8, reqs []TransferRequest) (*bytes.Buffer, error) {
	args := newCmd(cmdTransfer)
	args.WriteByte(dapIndex)
	args.WriteByte(uint8(len(reqs)))
	for i, req := range reqs {
		treq, err := transferRequestByte(req.AP, req.Reg, req.Op)
		if err != nil {
			return nil, errors.Annotatef(err, "treq %d", i)
		}
		args.WriteByte(treq)
		if req.Op != OpRead {
			binary.Write(args, binary.LittleEndian, req.Data)
		}
	}
	return args, nil
}

// decodeTransfer parses a DAP_Transfer response (without the command byte).
func decodeTransfer(resp *bytes.Buffer, reqs []TransferRequest) (TransferStatus, []uint32, error) {
	var tc uint8
	var st TransferStatus
	if binary.Read(resp, binary.LittleEndian, &tc) != nil ||
		binary.Read(resp, binary.LittleEndian, &st) != nil {
		return st, nil, errors.Errorf("response is too short")
	}
	if !st.Ok() {
		return st, nil, errors.Errorf("transfer failed (tc %d/%d st 0x%02x)", tc, len(reqs), st)
	}
	if int(tc) != len(reqs) {
		return st, nil, errors.Errorf("not all transfers completed (%d/%d)", tc, len(reqs))
	}
	var data []uint32
	for _, req := range reqs {
		if req.Op != OpRead {
			continue
		}
		var d uint32
		if binary.Read(resp, binary.LittleEndian, &d) != nil {
			return st, nil, errors.Errorf("response is too short")
		}
		data = append(data, d)
	}
	return st, data, nil
}

func encodeTransferBlock(dapIndex uint8, ap bool, reg uint8, length int, data []uint32) (*bytes.Buffer, error) {
	op := OpWrite
	if data == nil {
		op = OpRead
	}
	treq, err := transferRequestByte(ap, reg, op)
	if err != nil {
		return nil, errors.Trace(err)
	}
	args := newCmd(cmdTransferBlock)
	args.WriteByte(dapIndex)
	binary.Write(args, binary.LittleEndian, uint16(length))
	args.WriteByte(treq)
	for _, value := range data {
		binary.Write(args, binary.LittleEndian, value)
	}
	return args, nil
}

// decodeTransferBlock parses a DAP_TransferBlock response and returns up to
// numRead words of read data.
func decodeTransferBlock(resp *bytes.Buffer, length, numRead int) ([]uint32, error) {
	var tc uint16
	var st TransferStatus
	if binary.Read(resp, binary.LittleEndian, &tc) != nil ||
		binary.Read(resp, binary.LittleEndian, &st) != nil {
		return nil, errors.Errorf("response is too short")
	}
	if !st.Ok() {
		return nil, errors.Errorf("transfer failed (tc %d/%d st 0x%02x)", tc, length, st)
	}
	if int(tc) != length {
		return nil, errors.Errorf("not all transfers completed (%d/%d)", tc, length)
	}
	res := make([]uint32, numRead)
	for i := range res {
		if binary.Read(resp, binary.LittleEndian, &res[i]) != nil {
			return nil, errors.Errorf("response is too short")
		}
	}
	return res, nil
}
