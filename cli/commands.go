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
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mosprobe/cli/flags"
	"github.com/mongoose-os/mosprobe/cli/flash/common"
	"github.com/mongoose-os/mosprobe/cli/flash/common/cortex"
	"github.com/mongoose-os/mosprobe/cli/flash/imxrt"
	"github.com/mongoose-os/mosprobe/cli/flash/target"
	"github.com/mongoose-os/mosprobe/cli/ourutil"
)

// parseNumber parses an address or a length. Accepts 0x-prefixed hex, decimal
// and k / M suffixes (binary multiples).
func parseNumber(s string) (uint32, error) {
	mul := uint64(1)
	switch {
	case strings.HasSuffix(s, "k"), strings.HasSuffix(s, "K"):
		mul, s = 1024, s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		mul, s = 1024*1024, s[:len(s)-1]
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, errors.Errorf("invalid number %q", s)
	}
	v *= mul
	if v > 0xffffffff {
		return 0, errors.Errorf("%q is out of range", s)
	}
	return uint32(v), nil
}

func checkArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return errors.Errorf("expected arguments: %s", usage)
	}
	return nil
}

func info(ctx context.Context, s *session, args []string) error {
	if err := checkArgs(args, 0, "none"); err != nil {
		return errors.Trace(err)
	}
	t := s.tgt
	if s.fwVer != "" {
		fmt.Printf("Probe firmware: %s\n", s.fwVer)
	}
	fmt.Printf("Part ID: %s\n", t.PartID())
	if core, err := cortex.ReadCoreName(ctx, s.mapc); err == nil {
		fmt.Printf("Core: %s\n", core)
	} else {
		glog.Warningf("failed to identify the core: %s", err)
	}
	if !t.Attached() {
		fmt.Printf("Driver: none\n")
		return nil
	}
	fmt.Printf("Driver: %s\n", t.Name())
	switch d := t.Driver().(type) {
	case *imxrt.FlexSPIDriver:
		fmt.Printf("Boot source: %s\n", d.BootSource())
		fmt.Printf("Flash: %s, %s\n", d.JEDECID(), d.Geometry())
		if ci := d.Chip(); ci.Name != "" {
			fmt.Printf("Flash chip: %s\n", ci.Name)
		}
	case *imxrt.Driver:
		fmt.Printf("Boot source: %s\n", d.BootSource())
	}
	for _, r := range t.RAM() {
		fmt.Printf("%s\n", r)
	}
	for _, f := range t.Flash() {
		fmt.Printf("%s\n", f)
	}
	var caps []string
	if _, ok := t.Driver().(target.MassEraser); ok {
		caps = append(caps, "mass-erase")
	}
	if _, ok := t.Driver().(target.FlashReader); ok {
		caps = append(caps, "flash-read")
	}
	if t.HasOption(target.OptInhibitNRST) {
		caps = append(caps, "inhibit-nrst")
	}
	if len(caps) > 0 {
		fmt.Printf("Capabilities: %s\n", strings.Join(caps, ", "))
	}
	return nil
}

func eraseChip(ctx context.Context, s *session, args []string) error {
	if err := checkArgs(args, 0, "none"); err != nil {
		return errors.Trace(err)
	}
	if !*flags.Force {
		ans := ourutil.Prompt("This will erase the entire flash chip. Continue? [y/N]")
		if !strings.HasPrefix(strings.ToLower(ans), "y") {
			return errors.New("aborted")
		}
	}
	p := ourutil.NewProgress(os.Stderr, "Erasing", *flags.ProgressInterval)
	s.tgt.SetProgressFunc(p.Report)
	ourutil.Reportf("Erasing chip...")
	err := s.tgt.MassErase(ctx)
	p.Done()
	if err != nil {
		return errors.Annotatef(err, "chip erase failed")
	}
	ourutil.Reportf("Done.")
	return nil
}

func erase(ctx context.Context, s *session, args []string) error {
	if err := checkArgs(args, 2, "ADDR LEN"); err != nil {
		return errors.Trace(err)
	}
	addr, err := parseNumber(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	length, err := parseNumber(args[1])
	if err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("Erasing 0x%x @ 0x%08x...", length, addr)
	return errors.Trace(s.tgt.FlashErase(ctx, addr, length))
}

func readAny(ctx context.Context, t *target.Target, addr uint32, buf []byte) error {
	if t.FlashAt(addr) != nil {
		return t.FlashRead(ctx, addr, buf)
	}
	return t.ReadMem(ctx, addr, buf)
}

func read(ctx context.Context, s *session, args []string) error {
	if err := checkArgs(args, 3, "ADDR LEN FILE"); err != nil {
		return errors.Trace(err)
	}
	addr, err := parseNumber(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	length, err := parseNumber(args[1])
	if err != nil {
		return errors.Trace(err)
	}
	buf := make([]byte, length)
	ourutil.Reportf("Reading 0x%x @ 0x%08x...", length, addr)
	if err := readAny(ctx, s.tgt, addr, buf); err != nil {
		return errors.Trace(err)
	}
	if args[2] == "-" {
		_, err = os.Stdout.Write(buf)
		return errors.Trace(err)
	}
	return errors.Trace(ioutil.WriteFile(args[2], buf, 0644))
}

// eraseRange returns the block-aligned range that covers [addr, addr+length) within r.
func eraseRange(r *target.FlashRegion, addr, length uint32) (uint32, uint32, error) {
	end := uint64(addr) + uint64(length)
	if !r.Contains(addr) || end > uint64(r.Start)+uint64(r.Length) {
		return 0, 0, errors.NotValidf("range 0x%x @ 0x%08x for %s", length, addr, r)
	}
	bs := uint64(r.BlockSize)
	start := uint64(addr) - (uint64(addr-r.Start) % bs)
	if rem := (end - uint64(r.Start)) % bs; rem != 0 {
		end += bs - rem
	}
	return uint32(start), uint32(end - start), nil
}

func write(ctx context.Context, s *session, args []string) error {
	if err := checkArgs(args, 2, "ADDR FILE"); err != nil {
		return errors.Trace(err)
	}
	addr, err := parseNumber(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	data, err := ioutil.ReadFile(args[1])
	if err != nil {
		return errors.Trace(err)
	}
	if len(data) == 0 {
		return nil
	}
	t := s.tgt
	r := t.FlashAt(addr)
	if r == nil {
		return errors.NotFoundf("flash @ 0x%08x", addr)
	}
	eStart, eLen, err := eraseRange(r, addr, uint32(len(data)))
	if err != nil {
		return errors.Trace(err)
	}
	// Preserve the parts of the first and last blocks that are not being overwritten.
	buf := make([]byte, eLen)
	head := addr - eStart
	tail := head + uint32(len(data))
	if head > 0 {
		if err := t.FlashRead(ctx, eStart, buf[:head]); err != nil {
			return errors.Annotatef(err, "failed to read head")
		}
	}
	if tail < eLen {
		if err := t.FlashRead(ctx, eStart+tail, buf[tail:]); err != nil {
			return errors.Annotatef(err, "failed to read tail")
		}
	}
	copy(buf[head:], data)

	ourutil.Reportf("Erasing 0x%x @ 0x%08x...", eLen, eStart)
	if err := t.FlashErase(ctx, eStart, eLen); err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("Writing 0x%x @ 0x%08x...", len(data), addr)
	if err := t.FlashWrite(ctx, eStart, buf); err != nil {
		return errors.Trace(err)
	}
	if *flags.Verify {
		rb := make([]byte, len(data))
		if err := t.FlashRead(ctx, addr, rb); err != nil {
			return errors.Annotatef(err, "failed to read back")
		}
		if !bytes.Equal(rb, data) {
			return errors.Errorf("verification failed")
		}
		ourutil.Reportf("Verified.")
	}
	return nil
}

func reset(ctx context.Context, s *session, args []string) error {
	if err := checkArgs(args, 0, "none"); err != nil {
		return errors.Trace(err)
	}
	if err := s.cmd.ResetRun(ctx); err != nil {
		return errors.Trace(err)
	}
	s.resetDone = true
	return nil
}

func listProbes(ctx context.Context, _ *session, args []string) error {
	devs, err := common.ListUSBDevices("CMSIS-DAP")
	if err != nil {
		return errors.Trace(err)
	}
	if len(devs) == 0 {
		ourutil.Reportf("No probes found")
		return nil
	}
	for _, d := range devs {
		fmt.Println(d)
	}
	return nil
}
