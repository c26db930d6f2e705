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
	"fmt"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// FlashOps performs region-level operations. Addresses are absolute.
// Both are called with the target in flash mode.
type FlashOps interface {
	// Erase erases length bytes at addr, both are multiples of the block size.
	Erase(ctx context.Context, addr, length uint32) error
	// Write programs previously erased flash. addr and len(data) are multiples of the write size.
	Write(ctx context.Context, addr uint32, data []byte) error
}

type FlashRegion struct {
	Start  uint32
	Length uint32
	// BlockSize is the erase granularity, a power of 2.
	BlockSize uint32
	// WriteSize is the programming granularity, 0 means any.
	WriteSize   uint32
	ErasedValue uint8
	Ops         FlashOps

	target *Target
}

func (f *FlashRegion) Target() *Target {
	return f.target
}

func (f *FlashRegion) end() uint64 {
	return uint64(f.Start) + uint64(f.Length)
}

func (f *FlashRegion) Contains(addr uint32) bool {
	return addr >= f.Start && uint64(addr) < f.end()
}

func (f *FlashRegion) String() string {
	return fmt.Sprintf("Flash  0x%08x-0x%08x, %d byte blocks, %d byte writes",
		f.Start, f.end()-1, f.BlockSize, f.WriteSize)
}

func (f *FlashRegion) validate() error {
	switch {
	case f.Length == 0:
		return errors.NotValidf("empty flash region @ 0x%08x", f.Start)
	case f.BlockSize == 0 || f.BlockSize&(f.BlockSize-1) != 0:
		return errors.NotValidf("block size %d", f.BlockSize)
	case f.Start%f.BlockSize != 0 || f.Length%f.BlockSize != 0:
		return errors.NotValidf("flash region 0x%08x+0x%x with %d byte blocks", f.Start, f.Length, f.BlockSize)
	case f.WriteSize > f.BlockSize || (f.WriteSize != 0 && f.BlockSize%f.WriteSize != 0):
		return errors.NotValidf("write size %d", f.WriteSize)
	}
	return nil
}

// writeUnit is the size of chunks that are checked for being erased.
func (f *FlashRegion) writeUnit() uint32 {
	if f.WriteSize != 0 {
		return f.WriteSize
	}
	return f.BlockSize
}

type span struct {
	r      *FlashRegion
	addr   uint32
	length uint32
}

// split breaks up the range [addr, addr+length) into per-region pieces.
func (t *Target) split(addr uint32, length uint32) ([]span, error) {
	var res []span
	if uint64(addr)+uint64(length) > 1<<32 {
		return nil, errors.NotValidf("range 0x%x @ 0x%08x", length, addr)
	}
	for length > 0 {
		r := t.FlashAt(addr)
		if r == nil {
			return nil, errors.NotFoundf("flash @ 0x%08x", addr)
		}
		n := length
		if avail := r.end() - uint64(addr); uint64(n) > avail {
			n = uint32(avail)
		}
		res = append(res, span{r: r, addr: addr, length: n})
		addr += n
		length -= n
	}
	return res, nil
}

// FlashErase erases length bytes starting at addr. The range must be block-aligned
// and may span multiple regions.
func (t *Target) FlashErase(ctx context.Context, addr, length uint32) error {
	if length == 0 {
		return nil
	}
	spans, err := t.split(addr, length)
	if err != nil {
		return errors.Trace(err)
	}
	for _, s := range spans {
		if s.addr%s.r.BlockSize != 0 || s.length%s.r.BlockSize != 0 {
			return errors.NotValidf("erase of 0x%x @ 0x%08x (block size %d)", s.length, s.addr, s.r.BlockSize)
		}
		if s.r.Ops == nil {
			return errors.NotSupportedf("erasing flash @ 0x%08x", s.addr)
		}
	}
	return t.WithFlashMode(ctx, func(ctx context.Context) error {
		for _, s := range spans {
			glog.V(1).Infof("erase 0x%x @ 0x%08x", s.length, s.addr)
			if err := s.r.Ops.Erase(ctx, s.addr, s.length); err != nil {
				return errors.Annotatef(err, "erase 0x%x @ 0x%08x", s.length, s.addr)
			}
		}
		return nil
	})
}

// FlashWrite programs data at addr. Flash must have been erased beforehand.
// Partial write units are padded with the erased value and units that
// would not change erased flash are skipped.
func (t *Target) FlashWrite(ctx context.Context, addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	spans, err := t.split(addr, uint32(len(data)))
	if err != nil {
		return errors.Trace(err)
	}
	for _, s := range spans {
		if s.r.Ops == nil {
			return errors.NotSupportedf("writing flash @ 0x%08x", s.addr)
		}
	}
	return t.WithFlashMode(ctx, func(ctx context.Context) error {
		off := uint32(0)
		for _, s := range spans {
			if err := writeRegion(ctx, s.r, s.addr, data[off:off+s.length]); err != nil {
				return errors.Trace(err)
			}
			off += s.length
		}
		return nil
	})
}

func writeRegion(ctx context.Context, r *FlashRegion, addr uint32, data []byte) error {
	unit := r.writeUnit()
	start := addr &^ (unit - 1)
	padded := make([]byte, 0, int(addr-start)+len(data)+int(unit))
	for i := start; i < addr; i++ {
		padded = append(padded, r.ErasedValue)
	}
	padded = append(padded, data...)
	for uint32(len(padded))%unit != 0 {
		padded = append(padded, r.ErasedValue)
	}
	erased := bytes.Repeat([]byte{r.ErasedValue}, int(unit))
	// Coalesce runs of units that need programming.
	for i := 0; i < len(padded); {
		if bytes.Equal(padded[i:i+int(unit)], erased) {
			i += int(unit)
			continue
		}
		j := i + int(unit)
		for j < len(padded) && !bytes.Equal(padded[j:j+int(unit)], erased) {
			j += int(unit)
		}
		waddr := start + uint32(i)
		glog.V(1).Infof("write 0x%x @ 0x%08x", j-i, waddr)
		if err := r.Ops.Write(ctx, waddr, padded[i:j]); err != nil {
			return errors.Annotatef(err, "write 0x%x @ 0x%08x", j-i, waddr)
		}
		i = j
	}
	return nil
}

// FlashRead reads flash contents, through the driver if it can do that,
// otherwise through the memory-mapped window.
func (t *Target) FlashRead(ctx context.Context, addr uint32, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if _, err := t.split(addr, uint32(len(buf))); err != nil {
		return errors.Trace(err)
	}
	fr, ok := t.driver.(FlashReader)
	if !ok {
		return errors.Trace(t.ReadMem(ctx, addr, buf))
	}
	return t.WithFlashMode(ctx, func(ctx context.Context) error {
		return errors.Trace(fr.ReadFlash(ctx, addr, buf))
	})
}
