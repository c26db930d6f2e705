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
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"
	goversion "github.com/mcuadros/go-version"
	flock "github.com/theckman/go-flock"

	"github.com/mongoose-os/mosprobe/cli/flags"
	"github.com/mongoose-os/mosprobe/cli/flash/common/cmsis-dap/dap"
	"github.com/mongoose-os/mosprobe/cli/flash/common/cmsis-dap/dp"
	"github.com/mongoose-os/mosprobe/cli/flash/common/cmsis-dap/memap"
	"github.com/mongoose-os/mosprobe/cli/flash/common/cortex"
	"github.com/mongoose-os/mosprobe/cli/flash/imxrt"
	"github.com/mongoose-os/mosprobe/cli/flash/spiflash"
	"github.com/mongoose-os/mosprobe/cli/flash/target"
	"github.com/mongoose-os/mosprobe/cli/ourutil"
	"github.com/mongoose-os/mosprobe/common/multierror"
)

// session holds everything needed to talk to one target through one probe.
type session struct {
	lock  *flock.Flock
	dapc  dap.DAPClient
	mapc  memap.MemAPClient
	cmd   cortex.CortexDebug
	db    *spiflash.ChipDB
	tgt   *target.Target
	fwVer string

	resetDone bool
}

func lockFileName(dir string, vid, pid uint16, serial string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	name := fmt.Sprintf("mosprobe-%04x-%04x", vid, pid)
	if serial != "" {
		name += "-" + strings.Map(func(r rune) rune {
			if r == '/' || r == '\\' || r == ':' {
				return '_'
			}
			return r
		}, serial)
	}
	return filepath.Join(dir, name+".lock")
}

// probeFWTooOld returns true if the firmware version reported by the probe is
// known to be older than min. Versions that do not parse are assumed to be fine.
func probeFWTooOld(fwVer, min string) bool {
	v := strings.TrimPrefix(strings.TrimSpace(fwVer), "v")
	if v == "" || min == "" {
		return false
	}
	if v[0] < '0' || v[0] > '9' {
		return false
	}
	return goversion.Compare(v, min, "<")
}

func loadChipDB() (*spiflash.ChipDB, error) {
	db := spiflash.NewChipDB()
	if *flags.FlashDB != "" {
		if err := db.LoadFile(*flags.FlashDB); err != nil {
			return nil, errors.Annotatef(err, "failed to load flash chip DB")
		}
	}
	return db, nil
}

func openSession(ctx context.Context) (*session, error) {
	s := &session{}
	if err := s.open(ctx); err != nil {
		if cerr := s.Close(ctx); cerr != nil {
			glog.Errorf("cleanup failed: %s", cerr)
		}
		return nil, errors.Trace(err)
	}
	return s, nil
}

func (s *session) open(ctx context.Context) error {
	lfn := lockFileName(*flags.LockDir, *flags.ProbeVID, *flags.ProbePID, *flags.ProbeSerial)
	fl := flock.NewFlock(lfn)
	locked, err := fl.TryLock()
	if err != nil {
		return errors.Annotatef(err, "failed to lock %s", lfn)
	}
	if !locked {
		return errors.Errorf("probe is in use by another process (%s)", lfn)
	}
	s.lock = fl

	s.db, err = loadChipDB()
	if err != nil {
		return errors.Trace(err)
	}

	s.dapc, err = dap.NewClient(ctx, *flags.ProbeVID, *flags.ProbePID, *flags.ProbeSerial)
	if err != nil {
		return errors.Annotatef(err, "failed to open probe")
	}
	if s.fwVer, err = s.dapc.GetFirmwareVersion(ctx); err == nil {
		glog.Infof("Probe firmware version: %s", s.fwVer)
		if probeFWTooOld(s.fwVer, *flags.MinProbeFW) {
			ourutil.Reportf("Warning: probe firmware %s is older than %s, consider updating", s.fwVer, *flags.MinProbeFW)
		}
	} else {
		glog.Warningf("failed to get probe firmware version: %s", err)
	}

	if err = dap.SWDInit(ctx, s.dapc, *flags.SWDClock); err != nil {
		return errors.Annotatef(err, "SWD init failed")
	}
	dpc := dp.NewDPClient(s.dapc)
	if err = dpc.Init(ctx); err != nil {
		return errors.Annotatef(err, "DP init failed")
	}
	s.mapc = memap.NewMemAPClient(dpc, *flags.AP)
	if err = s.mapc.Init(ctx); err != nil {
		return errors.Annotatef(err, "MEM-AP init failed")
	}
	base, err := s.mapc.DebugBase(ctx)
	if err != nil {
		return errors.Annotatef(err, "failed to read debug base")
	}
	pid, err := cortex.ReadPartID(ctx, s.mapc, base)
	if err != nil {
		return errors.Annotatef(err, "failed to read part id")
	}
	glog.Infof("Part ID: %s", pid)

	s.cmd = cortex.NewCortexMDebug(s.mapc, s.dapc.ResetTarget)
	if err = s.cmd.Init(ctx); err != nil {
		return errors.Annotatef(err, "failed to init debug")
	}
	if err = s.cmd.Halt(ctx); err != nil {
		return errors.Annotatef(err, "failed to halt the core")
	}

	s.tgt = target.New(s.mapc, pid)
	if !target.ProbeChain(ctx, s.tgt, []target.ProbeFunc{imxrt.NewProbe(s.db)}) {
		glog.Infof("no driver for %s, only memory access is available", pid)
	}
	s.cmd.SetInhibitNRST(s.tgt.HasOption(target.OptInhibitNRST))
	if *flags.ProgressInterval > 0 {
		p := ourutil.NewProgress(os.Stderr, "Waiting", *flags.ProgressInterval)
		s.tgt.SetProgressFunc(p.Report)
	}
	return nil
}

// Close releases the target and the probe. Safe to call on a partially opened session.
func (s *session) Close(ctx context.Context) error {
	var errs error
	if s.cmd != nil && *flags.ResetAfter && !s.resetDone {
		if err := s.cmd.ResetRun(ctx); err != nil {
			errs = multierror.Append(errs, errors.Annotatef(err, "reset failed"))
		}
	}
	if s.tgt != nil {
		s.tgt.Detach()
	}
	if s.dapc != nil {
		if err := s.dapc.Close(ctx); err != nil {
			errs = multierror.Append(errs, errors.Trace(err))
		}
		s.dapc = nil
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			errs = multierror.Append(errs, errors.Trace(err))
		}
		s.lock = nil
	}
	s.cmd = nil
	return errs
}
