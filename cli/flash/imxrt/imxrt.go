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
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mosprobe/cli/flash/spiflash"
	"github.com/mongoose-os/mosprobe/cli/flash/target"
)

const DriverName = "i.MXRT10xx"

// Used when neither the chip nor any other chip in the database has a timing set.
const (
	defaultPageProgramTime = 5 * time.Millisecond
	defaultSectorEraseTime = 1 * time.Second
	defaultChipEraseTime   = 400 * time.Second

	minPageProgramTimeout = 100 * time.Millisecond
)

// Driver is attached to i.MXRT10xx parts that do not boot from FlexSPI flash.
type Driver struct {
	t          *target.Target
	bootSource BootSource
}

func (d *Driver) BootSource() BootSource {
	return d.bootSource
}

// FlexSPIDriver is attached to parts that boot from SPI flash on FlexSPI1.
// It can put the controller into flash mode and drive the NOR chip through it.
type FlexSPIDriver struct {
	Driver

	seq sequencer
	db  *spiflash.ChipDB

	// Controller state saved on entering flash mode.
	mcr0       uint32
	mcr0Saved  bool
	lutcr      uint32
	lutcrSaved bool

	id       spiflash.JEDECID
	geometry spiflash.Geometry
	chip     spiflash.ChipInfo
}

func (d *FlexSPIDriver) JEDECID() spiflash.JEDECID {
	return d.id
}

func (d *FlexSPIDriver) Geometry() spiflash.Geometry {
	return d.geometry
}

func (d *FlexSPIDriver) Chip() spiflash.ChipInfo {
	return d.chip
}

// NewProbe returns a probe for i.MXRT10xx parts. db provides flash timings.
func NewProbe(db *spiflash.ChipDB) target.ProbeFunc {
	return func(ctx context.Context, t *target.Target) bool {
		return probe(ctx, t, db)
	}
}

func probe(ctx context.Context, t *target.Target, db *spiflash.ChipDB) bool {
	if t.PartID().Part != PartID {
		return false
	}
	// TODO: part id is shared by the RT106x family, find a more positive identification.
	sbmr2, err := t.ReadReg(ctx, srcSBMR2)
	if err != nil {
		glog.Warningf("failed to read SRC_SBMR2: %s", err)
		return false
	}
	glog.V(1).Infof("boot mode: %d", (sbmr2>>24)&3)
	bootCfg, err := t.ReadReg(ctx, srcSBMR1)
	if err != nil {
		glog.Warningf("failed to read SRC_SBMR1: %s", err)
		return false
	}
	bs := bootSource(bootCfg)
	glog.V(1).Infof("boot config: 0x%08x, booting from %s", bootCfg, bs)

	base := Driver{t: t, bootSource: bs}
	var drv interface{} = &base
	var fd *FlexSPIDriver
	if bs.IsSPI() {
		fd = &FlexSPIDriver{Driver: base, seq: sequencer{mem: t.Mem()}, db: db}
		drv = fd
	}
	if err := t.Attach(DriverName, drv, target.OptInhibitNRST); err != nil {
		glog.Warningf("%s: %s", DriverName, err)
		return false
	}
	if err := addRAM(t); err != nil {
		glog.Warningf("%s: %s", DriverName, err)
		t.Detach()
		return false
	}
	if fd == nil {
		return true
	}
	ok, err := fd.detectFlash(ctx)
	if err != nil {
		glog.Warningf("flash detection failed: %s", err)
		return true
	}
	if !ok {
		glog.Infof("no flash found")
		return true
	}
	if err := fd.addFlash(); err != nil {
		glog.Warningf("%s: %s", DriverName, err)
		t.Detach()
		return false
	}
	return true
}

func addRAM(t *target.Target) error {
	if err := t.AddRAM(ocram1Base, ocram1Size); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(t.AddRAM(ocram2Base, ocram2Size))
}

// detectFlash reads the JEDEC ID and, if there is a chip, its geometry.
func (d *FlexSPIDriver) detectFlash(ctx context.Context) (bool, error) {
	found := false
	err := d.t.WithFlashMode(ctx, func(ctx context.Context) error {
		if cr0, err := d.t.ReadReg(ctx, flexspiFLSHA1CR0); err == nil {
			glog.V(1).Infof("FLSHA1CR0: flash size %d KiB", cr0&0x7fffff)
		}
		id, err := spiflash.ReadJEDECID(ctx, &d.seq)
		if err != nil {
			return errors.Trace(err)
		}
		if !id.Valid() {
			return nil
		}
		glog.Infof("SPI flash: %s, capacity %d", id, id.CapacityBytes())
		g := spiflash.DiscoverGeometry(ctx, &d.seq, id.CapacityBytes())
		if !g.Usable() {
			glog.Warningf("SPI flash %s: unusable geometry (%s), ignoring", id, g)
			return nil
		}
		d.id = id
		d.geometry = g
		found = true
		return nil
	})
	if err != nil {
		return false, errors.Trace(err)
	}
	if found {
		d.chip = d.timings()
	}
	return found, nil
}

func (d *FlexSPIDriver) timings() spiflash.ChipInfo {
	ci, max := d.db.Timings(d.id), d.db.MaxTimings()
	if ci.PageProgramTime == 0 {
		ci.PageProgramTime = max.PageProgramTime
	}
	if ci.SectorEraseTime == 0 {
		ci.SectorEraseTime = max.SectorEraseTime
	}
	if ci.ChipEraseTime == 0 {
		ci.ChipEraseTime = max.ChipEraseTime
	}
	if ci.PageProgramTime == 0 {
		ci.PageProgramTime = defaultPageProgramTime
	}
	if ci.SectorEraseTime == 0 {
		ci.SectorEraseTime = defaultSectorEraseTime
	}
	if ci.ChipEraseTime == 0 {
		ci.ChipEraseTime = defaultChipEraseTime
	}
	glog.V(1).Infof("flash timings (%s): page %s, sector %s, chip %s",
		ci.Name, ci.PageProgramTime, ci.SectorEraseTime, ci.ChipEraseTime)
	return ci
}

func (d *FlexSPIDriver) addFlash() error {
	return errors.Trace(d.t.AddFlash(&target.FlashRegion{
		Start:       FlexSPIFlashBase,
		Length:      d.geometry.Capacity,
		BlockSize:   d.geometry.SectorSize,
		WriteSize:   d.geometry.PageSize,
		ErasedValue: flashErasedValue,
		Ops:         d,
	}))
}
