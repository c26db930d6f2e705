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
	"github.com/mongoose-os/mosprobe/common/multierror"
)

// EnterFlashMode takes the controller out of suspend, sets up the IP FIFOs
// and unlocks the LUT. Previous state is saved to be restored by ExitFlashMode.
func (d *FlexSPIDriver) EnterFlashMode(ctx context.Context) error {
	mcr0, err := d.t.ReadReg(ctx, flexspiMCR0)
	if err != nil {
		return errors.Annotatef(err, "failed to read MCR0")
	}
	d.mcr0, d.mcr0Saved = mcr0, true
	if mcr0&mcr0Suspend != 0 {
		if err := d.t.WriteReg(ctx, flexspiMCR0, mcr0&^mcr0Suspend); err != nil {
			return errors.Annotatef(err, "failed to resume controller")
		}
	}
	// Clear pending flags so that command status can be observed cleanly.
	intr, err := d.t.ReadReg(ctx, flexspiINTR)
	if err != nil {
		return errors.Trace(err)
	}
	if err := d.t.WriteReg(ctx, flexspiINTR, intr); err != nil {
		return errors.Trace(err)
	}
	for _, reg := range []uint32{flexspiIPRXFCR, flexspiIPTXFCR} {
		if err := d.t.WriteReg(ctx, reg, ipfcrWatermark(fifoBytes)|ipfcrClear); err != nil {
			return errors.Annotatef(err, "failed to set up FIFO")
		}
	}
	lutcr, err := d.t.ReadReg(ctx, flexspiLUTCR)
	if err != nil {
		return errors.Annotatef(err, "failed to read LUTCR")
	}
	d.lutcr, d.lutcrSaved = lutcr, true
	if lutcr != lutcrUnlock {
		if err := d.setLUTCR(ctx, lutcrUnlock); err != nil {
			return errors.Annotatef(err, "failed to unlock LUT")
		}
	}
	glog.V(3).Infof("flash mode: MCR0 0x%08x LUTCR 0x%08x", mcr0, lutcr)
	return nil
}

// ExitFlashMode restores what EnterFlashMode saved, in reverse order.
// It is safe to call even if EnterFlashMode failed half way.
func (d *FlexSPIDriver) ExitFlashMode(ctx context.Context) error {
	var err error
	if d.lutcrSaved {
		if d.lutcr != lutcrUnlock {
			err = multierror.Append(err, errors.Annotatef(d.setLUTCR(ctx, d.lutcr), "failed to relock LUT"))
		}
		d.lutcrSaved = false
	}
	if d.mcr0Saved {
		err = multierror.Append(err, errors.Annotatef(d.t.WriteReg(ctx, flexspiMCR0, d.mcr0), "failed to restore MCR0"))
		d.mcr0Saved = false
	}
	glog.V(3).Infof("flash mode exited")
	return err
}

func (d *FlexSPIDriver) setLUTCR(ctx context.Context, v uint32) error {
	if err := d.t.WriteReg(ctx, flexspiLUTKEY, lutKey); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(d.t.WriteReg(ctx, flexspiLUTCR, v))
}

// poller reports progress while waiting and fails once the timeout expires.
func (d *FlexSPIDriver) poller(to *target.Timeout, what string) spiflash.PollFunc {
	return func() error {
		if to.Expired() {
			return errors.Timeoutf("%s (%s)", what, to.Duration())
		}
		d.t.ReportProgress(to)
		return nil
	}
}

// MassErase erases the entire chip. Flash mode is exited whatever the outcome.
func (d *FlexSPIDriver) MassErase(ctx context.Context) error {
	return d.t.WithFlashMode(ctx, func(ctx context.Context) error {
		glog.Infof("erasing %s, this may take up to %s", d.id, d.chip.ChipEraseTime)
		to := target.NewTimeout(d.chip.ChipEraseTime)
		return errors.Trace(spiflash.ChipErase(ctx, &d.seq, d.poller(to, "chip erase")))
	})
}

func (d *FlexSPIDriver) flashOffset(addr uint32) uint32 {
	return addr - FlexSPIFlashBase
}

// Erase erases the sectors in [addr, addr+length). Must be called in flash mode.
func (d *FlexSPIDriver) Erase(ctx context.Context, addr, length uint32) error {
	for off := uint32(0); off < length; off += d.geometry.SectorSize {
		to := target.NewTimeout(d.chip.SectorEraseTime)
		fa := d.flashOffset(addr + off)
		if err := spiflash.EraseSector(ctx, &d.seq, d.geometry, fa, d.poller(to, "sector erase")); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Write programs data at addr. Must be called in flash mode.
func (d *FlexSPIDriver) Write(ctx context.Context, addr uint32, data []byte) error {
	for off := 0; off < len(data); {
		fa := d.flashOffset(addr + uint32(off))
		n := int(d.geometry.PageSize - fa%d.geometry.PageSize)
		if n > len(data)-off {
			n = len(data) - off
		}
		to := target.NewTimeout(d.pageProgramTimeout())
		if err := spiflash.Program(ctx, &d.seq, d.geometry, fa, data[off:off+n], d.poller(to, "page program")); err != nil {
			return errors.Trace(err)
		}
		off += n
	}
	return nil
}

// pageProgramTimeout covers programming one page in up to two FIFO-sized chunks.
// It is never less than minPageProgramTimeout.
func (d *FlexSPIDriver) pageProgramTimeout() time.Duration {
	to := 2 * d.chip.PageProgramTime
	if to < minPageProgramTimeout {
		to = minPageProgramTimeout
	}
	return to
}

// ReadFlash reads flash contents through the controller. Must be called in flash mode.
func (d *FlexSPIDriver) ReadFlash(ctx context.Context, addr uint32, buf []byte) error {
	return errors.Trace(spiflash.Read(ctx, &d.seq, d.flashOffset(addr), buf))
}
