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

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mosprobe/cli/flash/common"
)

const (
	dhcsrDebugEn = 1 << 0
	dhcsrHalt    = 1 << 1
	dhcsrRegRdy  = 1 << 16
	dhcsrSHalt   = 1 << 17

	// VC_CORERESET plus the fault vector catches.
	demcrVectorCatch = 0x3f1

	aircrSysResetReq = 1 << 2

	maxHaltPolls = 1000
)

// NewCortexMDebug returns a debug controller for an ARMv7-M / ARMv8-M core.
// hwReset, if not nil, pulses the nRST line.
func NewCortexMDebug(tmrw common.TargetMemReaderWriter, hwReset func(ctx context.Context) error) CortexDebug {
	return &cmDebug{tmrw: tmrw, hwReset: hwReset}
}

type cmDebug struct {
	tmrw        common.TargetMemReaderWriter
	hwReset     func(ctx context.Context) error
	inhibitNRST bool
}

func (cmd *cmDebug) Init(ctx context.Context) error {
	cpuid, err := cmd.tmrw.ReadTargetReg(ctx, regCPUID)
	if err != nil {
		return errors.Annotatef(err, "failed to get CPUID")
	}
	if family := (cpuid >> 4) & 0xf00; cpuid>>24 != 0x41 || (family != 0xc00 && family != 0xd00) {
		return errors.Errorf("target is not a Cortex-M (CPUID 0x%08x)", cpuid)
	}
	return nil
}

func (cmd *cmDebug) SetInhibitNRST(inhibit bool) {
	cmd.inhibitNRST = inhibit
}

func (cmd *cmDebug) Halt(ctx context.Context) error {
	if err := cmd.tmrw.WriteTargetReg(ctx, regDHCSR, regDHCSRKey|dhcsrDebugEn|dhcsrHalt); err != nil {
		return errors.Annotatef(err, "failed to set DHCSR")
	}
	return errors.Trace(cmd.WaitHalt(ctx))
}

func (cmd *cmDebug) reset(ctx context.Context, dhcsr, demcr uint32) error {
	if err := cmd.tmrw.WriteTargetReg(ctx, regDHCSR, dhcsr); err != nil {
		return errors.Annotatef(err, "failed to set DHCSR")
	}
	if err := cmd.tmrw.WriteTargetReg(ctx, regDEMCR, demcr); err != nil {
		return errors.Annotatef(err, "failed to set DEMCR")
	}
	if cmd.hwReset != nil && !cmd.inhibitNRST {
		glog.V(1).Infof("Resetting via nRST")
		return errors.Annotatef(cmd.hwReset(ctx), "nRST reset failed")
	}
	glog.V(1).Infof("Resetting via SYSRESETREQ")
	// The write may not be acknowledged as the core goes down, so errors are not fatal.
	if err := cmd.tmrw.WriteTargetReg(ctx, regAIRCR, regAIRCRKey|aircrSysResetReq); err != nil {
		glog.V(1).Infof("AIRCR write: %s", err)
	}
	return nil
}

func (cmd *cmDebug) ResetHalt(ctx context.Context) error {
	// Per RM C1.4.1: set DHCSR.C_DEBUGEN, DEMCR.VC_CORERESET (and other traps) and reset.
	if err := cmd.reset(ctx, regDHCSRKey|dhcsrDebugEn, demcrVectorCatch); err != nil {
		return errors.Annotatef(err, "failed to reset the core")
	}
	return errors.Trace(cmd.WaitHalt(ctx))
}

func (cmd *cmDebug) ResetRun(ctx context.Context) error {
	// Reset with debug disabled.
	return cmd.reset(ctx, regDHCSRKey, 0)
}

func (cmd *cmDebug) poll(ctx context.Context, what string, mask uint32) error {
	for i := 0; i < maxHaltPolls; i++ {
		dhcsr, err := cmd.tmrw.ReadTargetReg(ctx, regDHCSR)
		if err != nil {
			return errors.Annotatef(err, "failed to get DHCSR")
		}
		glog.V(4).Infof("%s: DHCSR 0x%08x", what, dhcsr)
		if dhcsr&mask != 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return errors.Annotatef(err, "%s", what)
		}
	}
	return errors.Timeoutf("%s", what)
}

func (cmd *cmDebug) WaitHalt(ctx context.Context) error {
	return cmd.poll(ctx, "WaitHalt", dhcsrSHalt)
}

func (cmd *cmDebug) SetReg(ctx context.Context, reg int, value uint32) error {
	glog.V(4).Infof("SetReg(%d, 0x%x)", reg, value)
	if err := cmd.tmrw.WriteTargetReg(ctx, regDCRDR, value); err != nil {
		return errors.Annotatef(err, "failed to set DCRDR")
	}
	if err := cmd.tmrw.WriteTargetReg(ctx, regDCRSR, (1<<16)|uint32(reg)); err != nil {
		return errors.Annotatef(err, "failed to set DCRSR")
	}
	return errors.Trace(cmd.poll(ctx, "SetReg", dhcsrRegRdy))
}

func (cmd *cmDebug) GetReg(ctx context.Context, reg int) (uint32, error) {
	if err := cmd.tmrw.WriteTargetReg(ctx, regDCRSR, uint32(reg)); err != nil {
		return 0, errors.Annotatef(err, "failed to set DCRSR")
	}
	if err := cmd.poll(ctx, "GetReg", dhcsrRegRdy); err != nil {
		return 0, errors.Trace(err)
	}
	value, err := cmd.tmrw.ReadTargetReg(ctx, regDCRDR)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read DCRDR")
	}
	glog.V(4).Infof("GetReg(%d) == 0x%x", reg, value)
	return value, nil
}

func (cmd *cmDebug) Run(ctx context.Context, waitHalt bool) error {
	glog.V(3).Infof("Run(%t)", waitHalt)
	if err := cmd.tmrw.WriteTargetReg(ctx, regDHCSR, regDHCSRKey|dhcsrDebugEn); err != nil {
		return errors.Annotatef(err, "failed to set DHCSR")
	}
	if !waitHalt {
		return nil
	}
	return errors.Trace(cmd.WaitHalt(ctx))
}
