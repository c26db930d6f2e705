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
package flags

import (
	"time"

	flag "github.com/spf13/pflag"
)

// Default VID:PID is that of DAPLink (MBED CMSIS-DAP).
var (
	ProbeVID    = flag.Uint16("probe-vid", 0x0d28, "USB vendor ID of the CMSIS-DAP probe")
	ProbePID    = flag.Uint16("probe-pid", 0x0204, "USB product ID of the CMSIS-DAP probe")
	ProbeSerial = flag.String("probe-serial", "", "Serial number of the probe to use. If not set, the first one found is used.")
	SWDClock    = flag.Uint32("swd-clock", 4000000, "SWD clock frequency, Hz")
	AP          = flag.Uint8("ap", 0, "Index of the MEM-AP to use")
	FlashDB     = flag.String("flash-db", "", "YAML file with additional SPI flash chip parameters")
	ResetAfter  = flag.Bool("reset-after", true, "Reset the target and let it run when done")
	Force       = flag.Bool("force", false, "Do not ask for confirmation")
	Timeout     = flag.Duration("timeout", 0, "Overall timeout for the command, 0 means no limit")
	Port        = flag.String("port", "", "Serial port of the probe's UART bridge (for the console command)")
	BaudRate    = flag.Int("baud-rate", 115200, "Serial port speed")
	LockDir     = flag.String("lock-dir", "", "Directory for probe lock files. Defaults to the system temp dir.")
	MinProbeFW  = flag.String("min-probe-fw", "1.0", "Warn if probe firmware is older than this")
	Verify      = flag.Bool("verify", true, "Read back and compare data after writing")
	Verbose     = flag.Bool("verbose", false, "Verbose output")

	ProgressInterval = flag.Duration("progress-interval", time.Second, "How often to report progress of long operations")
)
