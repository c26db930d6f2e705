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
package cortex

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mosprobe/cli/flash/common"
)

// Peripheral ID registers of a CoreSight component, relative to its base.
const (
	romPIDR4 = 0xfd0
	romPIDR0 = 0xfe0
	romCIDR0 = 0xff0
)

// PartID identifies the SoC a ROM table belongs to.
type PartID struct {
	// Designer is the JEP106 code: continuation count in bits [10:7], identity in [6:0].
	Designer uint16
	Part     uint16
	Revision uint8
}

func (p PartID) String() string {
	return fmt.Sprintf("designer 0x%03x part 0x%03x rev %d", p.Designer, p.Part, p.Revision)
}

// DecodePartID assembles the part id from the PIDR0-3 and PIDR4 values.
func DecodePartID(pidr [4]uint32, pidr4 uint32) PartID {
	return PartID{
		Part:     uint16(pidr[0]&0xff) | uint16(pidr[1]&0xf)<<8,
		Designer: uint16(pidr[1]>>4&0xf) | uint16(pidr[2]&0x7)<<4 | uint16(pidr4&0xf)<<7,
		Revision: uint8(pidr[2] >> 4 & 0xf),
	}
}

// ReadPartID reads the identification registers of the ROM table at base.
func ReadPartID(ctx context.Context, tmr common.TargetMemReader, base uint32) (PartID, error) {
	cidr1, err := tmr.ReadTargetReg(ctx, base+romCIDR0+4)
	if err != nil {
		return PartID{}, errors.Annotatef(err, "failed to read CIDR1")
	}
	// Component class 1 is a ROM table.
	if cidr1>>4&0xf != 1 {
		return PartID{}, errors.NotValidf("ROM table at 0x%08x (CIDR1 0x%08x)", base, cidr1)
	}
	var pidr [4]uint32
	for i := range pidr {
		if pidr[i], err = tmr.ReadTargetReg(ctx, base+romPIDR0+uint32(i*4)); err != nil {
			return PartID{}, errors.Annotatef(err, "failed to read PIDR%d", i)
		}
	}
	pidr4, err := tmr.ReadTargetReg(ctx, base+romPIDR4)
	if err != nil {
		return PartID{}, errors.Annotatef(err, "failed to read PIDR4")
	}
	id := DecodePartID(pidr, pidr4)
	glog.V(1).Infof("ROM table @ 0x%08x: %s", base, id)
	return id, nil
}
