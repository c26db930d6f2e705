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

type BootSource int

const (
	BootSPINOR BootSource = iota
	BootSDCard
	BootEMMC
	BootSLCNAND
	BootParallelNOR
	BootSPINAND
)

func (bs BootSource) String() string {
	switch bs {
	case BootSPINOR:
		return "SPI flash (NOR)"
	case BootSDCard:
		return "SD card"
	case BootEMMC:
		return "eMMC via uSDHC"
	case BootSLCNAND:
		return "SLC NAND via SEMC"
	case BootParallelNOR:
		return "parallel flash (NOR) via SEMC"
	case BootSPINAND:
		return "SPI flash (NAND)"
	}
	return "unknown"
}

// IsSPI reports whether the part boots from flash behind FlexSPI.
func (bs BootSource) IsSPI() bool {
	return bs == BootSPINOR || bs == BootSPINAND
}

// bootSource decodes BOOT_CFG1[7:4], which is the low byte of SRC_SBMR1.
func bootSource(bootCfg uint32) BootSource {
	src := bootCfg & 0xf0
	switch {
	case src == 0x00:
		return BootSPINOR
	case src&0xc0 == 0x40:
		return BootSDCard
	case src&0xc0 == 0x80:
		return BootEMMC
	case src&0xe0 == 0x20:
		return BootSLCNAND
	case src == 0x10:
		return BootParallelNOR
	}
	// 0b11xx
	return BootSPINAND
}
