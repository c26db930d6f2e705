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

// Doc: ARM v7-M Architecture Reference Manual, CoreSight Architecture Specification v2.0

type CortexDebug interface {
	common.Target

	Init(ctx context.Context) error
	// SetInhibitNRST selects whether resets go through the probe's nRST line
	// (false) or are requested from the core via AIRCR.SYSRESETREQ (true).
	SetInhibitNRST(inhibit bool)
}

const (
	regCPUID    uint32 = 0xE000ED00
	regAIRCR    uint32 = 0xE000ED0C
	regAIRCRKey uint32 = 0x05FA0000

	regDHCSR    uint32 = 0xE000EDF0
	regDHCSRKey uint32 = 0xA05F0000
	regDCRSR    uint32 = 0xE000EDF4
	regDCRDR    uint32 = 0xE000EDF8
	regDEMCR    uint32 = 0xE000EDFC
	regPID0     uint32 = 0xE000EFE0
)

// Core register numbers for GetReg / SetReg.
const (
	SP = 13
	LR = 14
	PC = 15
)

// CPUID part numbers of the cores we can name.
var coreNames = map[uint32]string{
	0xc20: "Cortex-M0",
	0xc60: "Cortex-M0+",
	0xc23: "Cortex-M3",
	0xc24: "Cortex-M4",
	0xc27: "Cortex-M7",
	0xd21: "Cortex-M33",
}

// CoreName turns CPUID into something like "Cortex-M7F r1p2".
// PID0 of the FPB reads 0xc on cores that have an FPU.
func CoreName(cpuid, pid0 uint32) string {
	partno := (cpuid >> 4) & 0xfff
	name, ok := coreNames[partno]
	if !ok {
		name = fmt.Sprintf("core 0x%03x", partno)
	}
	if pid0 == 0xc {
		name += "F"
	}
	return fmt.Sprintf("%s r%dp%d", name, (cpuid>>20)&0xf, cpuid&0xf)
}

func ReadCoreName(ctx context.Context, tmr common.TargetMemReader) (string, error) {
	cpuid, err := tmr.ReadTargetReg(ctx, regCPUID)
	if err != nil {
		return "", errors.Annotatef(err, "failed to read CPUID")
	}
	pid0, err := tmr.ReadTargetReg(ctx, regPID0)
	if err != nil {
		return "", errors.Annotatef(err, "failed to read PID0")
	}
	glog.V(1).Infof("CPUID: 0x%08x, PID0: 0x%08x", cpuid, pid0)
	return CoreName(cpuid, pid0), nil
}
