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

const (
	// PartID is the ROM table part number of the i.MXRT1060 family.
	PartID = 0x88c

	srcBase  = 0x400f8000
	srcSBMR1 = srcBase + 0x004
	srcSBMR2 = srcBase + 0x01c

	ocram1Base = 0x20280000
	ocram1Size = 0x00080000
	ocram2Base = 0x20200000
	ocram2Size = 0x00080000

	// FlexSPIFlashBase is where the FlexSPI1 NOR flash is mapped.
	FlexSPIFlashBase = 0x60000000
	flashErasedValue = 0xff
)

// FlexSPI1 registers.
const (
	flexspiBase = 0x402a8000

	flexspiMCR0      = flexspiBase + 0x000
	flexspiINTR      = flexspiBase + 0x014
	flexspiLUTKEY    = flexspiBase + 0x018
	flexspiLUTCR     = flexspiBase + 0x01c
	flexspiFLSHA1CR0 = flexspiBase + 0x060
	flexspiFLSHA1CR1 = flexspiBase + 0x070
	flexspiFLSHA1CR2 = flexspiBase + 0x080
	flexspiIPCR0     = flexspiBase + 0x0a0
	flexspiIPCR1     = flexspiBase + 0x0a4
	flexspiIPCMD     = flexspiBase + 0x0b0
	flexspiIPRXFCR   = flexspiBase + 0x0b8
	flexspiIPTXFCR   = flexspiBase + 0x0bc
	flexspiSTS1      = flexspiBase + 0x0e4
	flexspiRFDR      = flexspiBase + 0x100
	flexspiTFDR      = flexspiBase + 0x180
	flexspiLUT       = flexspiBase + 0x200
)

const (
	mcr0Suspend = 0x00000002

	intrIPCmdDone     = 0x00000001
	intrIPRxWatermark = 0x00000020
	intrIPTxWatermark = 0x00000040

	lutKey      = 0x5af05af0
	lutcrLock   = 0x00000001
	lutcrUnlock = 0x00000002

	flshcr1CASMask  = 0x00007800
	flshcr1CASShift = 11

	ipcr1LengthMask = 0x0000ffff
	ipcr1SeqIndex0  = 0
	ipcmdTrigger    = 0x00000001
	ipfcrClear      = 0x00000001

	fifoWords = 32
	fifoBytes = fifoWords * 4
)

// ipfcrWatermark is the FIFO watermark field for an n byte transfer.
func ipfcrWatermark(n uint32) uint32 {
	return ((((n + 7) >> 3) - 1) & 0xf) << 2
}

// LUT instruction opcodes.
const (
	lutOpStop   = 0x00
	lutOpCmd    = 0x01
	lutOpRAddr  = 0x02
	lutOpCAddr  = 0x03
	lutOpWrite  = 0x08
	lutOpRead   = 0x09
	lutOpDummy  = 0x0c
	lutPadsOne  = 0x0
	lutSeqInsns = 8
	lutSeqBytes = lutSeqInsns * 2
)
