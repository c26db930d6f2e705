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

// Package sfdp parses JEDEC JESD216 Serial Flash Discoverable Parameters.
package sfdp

import (
	"bytes"
	"encoding/binary"

	"github.com/juju/errors"
)

const (
	Signature = "SFDP"

	// BasicTableID is the parameter id (MSB:LSB) of the JEDEC basic flash parameter table.
	BasicTableID = 0xff00

	headerAddr      = 0x0
	paramHeaderAddr = 0x8

	// JESD216 defines 9 dwords for the basic table, page size arrived with JESD216A in dword 11.
	minBasicTableDwords = 9
	pageSizeDword       = 10

	densityDword       = 1
	eraseTypesDword    = 7
	numEraseTypes      = 4
	densityExponential = 0x80000000

	defaultPageSize = 256
)

// ReadFunc reads len(buf) bytes from the SFDP address space.
type ReadFunc func(addr uint32, buf []byte) error

type Header struct {
	// Signature is 0x50444653 ("SFDP") if the chip supports SFDP.
	Signature uint32
	MinorRev  uint8
	MajorRev  uint8
	// NumParamHeaders is zero-based: 0 means there is one parameter header.
	NumParamHeaders uint8
	AccessProtocol  uint8
}

type ParamHeader struct {
	IDLSB    uint8
	MinorRev uint8
	MajorRev uint8
	// Length is in dwords.
	Length  uint8
	Pointer [3]uint8
	IDMSB   uint8
}

func (ph *ParamHeader) ID() uint16 {
	return uint16(ph.IDMSB)<<8 | uint16(ph.IDLSB)
}

func (ph *ParamHeader) Addr() uint32 {
	return uint32(ph.Pointer[0]) | uint32(ph.Pointer[1])<<8 | uint32(ph.Pointer[2])<<16
}

// EraseType is one of the (up to 4) erase granularities a chip supports.
type EraseType struct {
	Size   uint32
	Opcode uint8
}

// BasicParams is what gets extracted from the basic flash parameter table.
type BasicParams struct {
	Capacity   uint32
	PageSize   uint32
	EraseTypes []EraseType
}

// SectorErase returns the smallest erase type, which is the one listed first.
func (bp *BasicParams) SectorErase() (EraseType, bool) {
	if len(bp.EraseTypes) == 0 {
		return EraseType{}, false
	}
	return bp.EraseTypes[0], true
}

func readStruct(read ReadFunc, addr uint32, v interface{}) error {
	buf := make([]byte, binary.Size(v))
	if err := read(addr, buf); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(binary.Read(bytes.NewReader(buf), binary.LittleEndian, v))
}

// ReadHeader reads and validates the SFDP header.
func ReadHeader(read ReadFunc) (*Header, error) {
	var h Header
	if err := readStruct(read, headerAddr, &h); err != nil {
		return nil, errors.Annotatef(err, "failed to read header")
	}
	var sig [4]byte
	binary.LittleEndian.PutUint32(sig[:], h.Signature)
	if string(sig[:]) != Signature {
		return nil, errors.NotSupportedf("SFDP (signature %q)", string(sig[:]))
	}
	if h.MajorRev != 1 {
		return nil, errors.NotSupportedf("SFDP revision %d.%d", h.MajorRev, h.MinorRev)
	}
	return &h, nil
}

// FindTable returns the header of the parameter table with the given id.
func FindTable(read ReadFunc, h *Header, id uint16) (*ParamHeader, error) {
	for i := 0; i <= int(h.NumParamHeaders); i++ {
		var ph ParamHeader
		addr := paramHeaderAddr + uint32(i*binary.Size(ph))
		if err := readStruct(read, addr, &ph); err != nil {
			return nil, errors.Annotatef(err, "failed to read parameter header %d", i)
		}
		if ph.ID() == id {
			return &ph, nil
		}
	}
	return nil, errors.NotFoundf("parameter table 0x%04x", id)
}

// Parse locates and decodes the basic flash parameter table.
func Parse(read ReadFunc) (*BasicParams, error) {
	h, err := ReadHeader(read)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ph, err := FindTable(read, h, BasicTableID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if ph.Length < minBasicTableDwords {
		return nil, errors.NotValidf("basic table of %d dwords", ph.Length)
	}
	buf := make([]byte, int(ph.Length)*4)
	if err := read(ph.Addr(), buf); err != nil {
		return nil, errors.Annotatef(err, "failed to read basic table")
	}
	table := make([]uint32, ph.Length)
	for i := range table {
		table[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return ParseBasicTable(table)
}

// ParseBasicTable decodes the dwords of a basic flash parameter table.
func ParseBasicTable(table []uint32) (*BasicParams, error) {
	if len(table) < minBasicTableDwords {
		return nil, errors.NotValidf("basic table of %d dwords", len(table))
	}
	bp := &BasicParams{PageSize: defaultPageSize}

	density := table[densityDword]
	var bits uint64
	if density&densityExponential != 0 {
		n := density &^ densityExponential
		if n < 3 || n > 34 {
			return nil, errors.NotSupportedf("density 2^%d bits", n)
		}
		bits = 1 << n
	} else {
		bits = uint64(density) + 1
	}
	bp.Capacity = uint32(bits / 8)

	for i := 0; i < numEraseTypes; i++ {
		dw := table[eraseTypesDword+i/2] >> (16 * uint(i%2))
		exp, opcode := uint8(dw), uint8(dw>>8)
		if exp == 0 || exp > 31 {
			continue
		}
		bp.EraseTypes = append(bp.EraseTypes, EraseType{Size: 1 << exp, Opcode: opcode})
	}

	if len(table) > pageSizeDword {
		if exp := (table[pageSizeDword] >> 4) & 0xf; exp != 0 {
			bp.PageSize = 1 << exp
		}
	}
	return bp, nil
}

// Buffer holds an SFDP image, e.g. for testing.
type Buffer []byte

// Read implements ReadFunc for Buffer.
func (b Buffer) Read(addr uint32, out []byte) error {
	if uint64(addr)+uint64(len(out)) > uint64(len(b)) {
		return errors.Errorf("read of %d @ 0x%x is out of range", len(out), addr)
	}
	copy(out, b[addr:])
	return nil
}
