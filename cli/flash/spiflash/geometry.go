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

	"github.com/mongoose-os/mosprobe/cli/flash/spiflash/sfdp"
)

const (
	DefaultPageSize   = 256
	DefaultSectorSize = 4096
)

type Geometry struct {
	PageSize          uint32
	SectorSize        uint32
	Capacity          uint32
	SectorEraseOpcode uint8
}

func (g Geometry) String() string {
	return fmt.Sprintf("%d bytes, %d byte sectors (erase 0x%02x), %d byte pages",
		g.Capacity, g.SectorSize, g.SectorEraseOpcode, g.PageSize)
}

// Usable reports whether a flash region can be built from g: page and sector
// sizes are powers of two and the capacity is a whole number of sectors.
func (g Geometry) Usable() bool {
	pow2 := func(v uint32) bool { return v != 0 && v&(v-1) == 0 }
	return pow2(g.PageSize) && pow2(g.SectorSize) && g.Capacity >= g.SectorSize && g.Capacity%g.SectorSize == 0
}

// DefaultGeometry is what gets used when the chip does not describe itself.
func DefaultGeometry(capacity uint32) Geometry {
	return Geometry{
		PageSize:          DefaultPageSize,
		SectorSize:        DefaultSectorSize,
		Capacity:          capacity,
		SectorEraseOpcode: OpSectorErase,
	}
}

// ReadSFDP reads from the SFDP address space of the chip.
func ReadSFDP(ctx context.Context, seq Sequencer, addr uint32, buf []byte) error {
	return readChunked(ctx, seq, CmdReadSFDP, addr, buf)
}

// DiscoverGeometry reads chip geometry from SFDP.
// It never fails: if the table cannot be read or makes no sense, defaults with
// the given capacity hint are returned.
func DiscoverGeometry(ctx context.Context, seq Sequencer, capacityHint uint32) Geometry {
	g, err := readGeometry(ctx, seq)
	if err != nil {
		glog.Warningf("SFDP: %s, using defaults", err)
		return DefaultGeometry(capacityHint)
	}
	glog.V(1).Infof("SFDP: %s", g)
	return g
}

func readGeometry(ctx context.Context, seq Sequencer) (Geometry, error) {
	bp, err := sfdp.Parse(func(addr uint32, buf []byte) error {
		return ReadSFDP(ctx, seq, addr, buf)
	})
	if err != nil {
		return Geometry{}, errors.Trace(err)
	}
	et, ok := bp.SectorErase()
	if !ok {
		return Geometry{}, errors.NotFoundf("erase type")
	}
	if bp.Capacity == 0 || bp.Capacity%et.Size != 0 {
		return Geometry{}, errors.NotValidf("capacity %d", bp.Capacity)
	}
	return Geometry{
		PageSize:          bp.PageSize,
		SectorSize:        et.Size,
		Capacity:          bp.Capacity,
		SectorEraseOpcode: et.Opcode,
	}, nil
}
