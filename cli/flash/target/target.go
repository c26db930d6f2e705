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
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mosprobe/cli/flash/common"
	"github.com/mongoose-os/mosprobe/cli/flash/common/cortex"
	"github.com/mongoose-os/mosprobe/common/multierror"
)

type Option uint32

const (
	// OptInhibitNRST means the target must not be reset via the nRST line
	// (on some parts it also resets the debug logic), SYSRESETREQ is used instead.
	OptInhibitNRST Option = 1 << iota
)

// MassEraser is implemented by drivers that can erase the entire flash at once.
type MassEraser interface {
	MassErase(ctx context.Context) error
}

// FlashModeController is implemented by drivers that need the flash controller
// to be set up for direct access and restored afterwards.
type FlashModeController interface {
	EnterFlashMode(ctx context.Context) error
	ExitFlashMode(ctx context.Context) error
}

// FlashReader is implemented by drivers that read flash through the controller
// rather than through the memory-mapped window.
type FlashReader interface {
	ReadFlash(ctx context.Context, addr uint32, buf []byte) error
}

// ProgressFunc is called periodically during long operations.
type ProgressFunc func(elapsed, total time.Duration)

type RAMRegion struct {
	Start uint32
	Size  uint32
}

func (r RAMRegion) String() string {
	return fmt.Sprintf("RAM    0x%08x-0x%08x", r.Start, uint64(r.Start)+uint64(r.Size)-1)
}

// Target is a part the probe is attached to, plus the driver that knows how to handle it.
// It is not safe for concurrent use.
type Target struct {
	mem    common.TargetMemReaderWriter
	partID cortex.PartID

	name     string
	driver   interface{}
	opts     Option
	ram      []RAMRegion
	flash    []*FlashRegion
	progress ProgressFunc
}

func New(mem common.TargetMemReaderWriter, partID cortex.PartID) *Target {
	return &Target{mem: mem, partID: partID}
}

func (t *Target) PartID() cortex.PartID {
	return t.partID
}

// Name returns the name of the attached driver, empty if none is.
func (t *Target) Name() string {
	return t.name
}

// Driver returns the driver value, nil if none is attached.
func (t *Target) Driver() interface{} {
	return t.driver
}

func (t *Target) Attached() bool {
	return t.driver != nil
}

func (t *Target) HasOption(opt Option) bool {
	return t.opts&opt != 0
}

func (t *Target) RAM() []RAMRegion {
	return t.ram
}

func (t *Target) Flash() []*FlashRegion {
	return t.flash
}

// Attach binds a driver to the target. The driver is kept for the lifetime of
// the attachment. Its capabilities are determined by the optional interfaces
// it implements (MassEraser, FlashModeController, FlashReader).
func (t *Target) Attach(name string, driver interface{}, opts Option) error {
	if driver == nil {
		return errors.NotValidf("nil driver")
	}
	if t.driver != nil {
		return errors.AlreadyExistsf("driver %q", t.name)
	}
	t.name, t.driver, t.opts = name, driver, opts
	glog.V(1).Infof("attached %s (%s)", name, t.partID)
	return nil
}

// Detach drops the driver and all registered regions.
func (t *Target) Detach() {
	if t.driver != nil {
		glog.V(1).Infof("detached %s", t.name)
	}
	t.name, t.driver, t.opts = "", nil, 0
	t.ram, t.flash = nil, nil
}

func (t *Target) overlaps(start, size uint32) bool {
	s, e := uint64(start), uint64(start)+uint64(size)
	for _, r := range t.ram {
		if s < uint64(r.Start)+uint64(r.Size) && uint64(r.Start) < e {
			return true
		}
	}
	for _, f := range t.flash {
		if s < f.end() && uint64(f.Start) < e {
			return true
		}
	}
	return false
}

func (t *Target) AddRAM(start, size uint32) error {
	if size == 0 {
		return errors.NotValidf("empty RAM region @ 0x%08x", start)
	}
	if t.overlaps(start, size) {
		return errors.AlreadyExistsf("region overlapping 0x%08x-0x%08x", start, uint64(start)+uint64(size)-1)
	}
	t.ram = append(t.ram, RAMRegion{Start: start, Size: size})
	return nil
}

func (t *Target) AddFlash(f *FlashRegion) error {
	if err := f.validate(); err != nil {
		return errors.Trace(err)
	}
	if t.overlaps(f.Start, f.Length) {
		return errors.AlreadyExistsf("region overlapping 0x%08x-0x%08x", f.Start, f.end()-1)
	}
	f.target = t
	t.flash = append(t.flash, f)
	glog.V(1).Infof("%s", f)
	return nil
}

// FlashAt returns the flash region containing addr, nil if there is none.
func (t *Target) FlashAt(addr uint32) *FlashRegion {
	for _, f := range t.flash {
		if f.Contains(addr) {
			return f
		}
	}
	return nil
}

// Mem returns the underlying memory accessor.
func (t *Target) Mem() common.TargetMemReaderWriter {
	return t.mem
}

func (t *Target) ReadReg(ctx context.Context, addr uint32) (uint32, error) {
	return t.mem.ReadTargetReg(ctx, addr)
}

func (t *Target) WriteReg(ctx context.Context, addr uint32, value uint32) error {
	return t.mem.WriteTargetReg(ctx, addr, value)
}

func (t *Target) ReadMem(ctx context.Context, addr uint32, buf []byte) error {
	return t.mem.ReadTargetMem(ctx, addr, buf)
}

func (t *Target) WriteMem(ctx context.Context, addr uint32, data []byte) error {
	return t.mem.WriteTargetMem(ctx, addr, data)
}

func (t *Target) SetProgressFunc(f ProgressFunc) {
	t.progress = f
}

// ReportProgress lets the operator know that a long operation is still going.
func (t *Target) ReportProgress(to *Timeout) {
	if t.progress != nil {
		t.progress(to.Elapsed(), to.Duration())
	}
}

func (t *Target) MassErase(ctx context.Context) error {
	me, ok := t.driver.(MassEraser)
	if !ok {
		return errors.NotSupportedf("mass erase on %q", t.name)
	}
	return errors.Trace(me.MassErase(ctx))
}

func (t *Target) EnterFlashMode(ctx context.Context) error {
	fmc, ok := t.driver.(FlashModeController)
	if !ok {
		return errors.NotSupportedf("flash mode on %q", t.name)
	}
	return errors.Trace(fmc.EnterFlashMode(ctx))
}

func (t *Target) ExitFlashMode(ctx context.Context) error {
	fmc, ok := t.driver.(FlashModeController)
	if !ok {
		return errors.NotSupportedf("flash mode on %q", t.name)
	}
	return errors.Trace(fmc.ExitFlashMode(ctx))
}

// WithFlashMode runs f with the flash controller in flash mode (if the driver
// has one). Flash mode is always exited, errors from f and from exiting are combined.
func (t *Target) WithFlashMode(ctx context.Context, f func(ctx context.Context) error) error {
	fmc, ok := t.driver.(FlashModeController)
	if !ok {
		return f(ctx)
	}
	if err := fmc.EnterFlashMode(ctx); err != nil {
		return multierror.Append(errors.Annotatef(err, "failed to enter flash mode"),
			errors.Annotatef(fmc.ExitFlashMode(ctx), "failed to exit flash mode"))
	}
	err := f(ctx)
	return multierror.Append(err, errors.Annotatef(fmc.ExitFlashMode(ctx), "failed to exit flash mode"))
}
