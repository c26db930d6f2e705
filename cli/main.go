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
	"os/signal"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/mosprobe/cli/flags"
	"github.com/mongoose-os/mosprobe/common/pflagenv"
	"github.com/mongoose-os/mosprobe/version"
)

const (
	envPrefix = "MOSPROBE_"
)

var (
	versionFlag = flag.Bool("version", false, "Print version and exit")
	helpFull    = flag.Bool("helpfull", false, "Show full help, including advanced flags")
)

type handler func(ctx context.Context, s *session, args []string) error

type command struct {
	name    string
	handler handler
	args    string
	short   string
	// Whether the command talks to the target. If so, a session is opened before
	// the handler is invoked.
	needsTarget bool
	required    []string
	optional    []string
}

var commands []command

func init() {
	commands = []command{
		{"info", info, "", `Show probe and target information`, true, nil, []string{"probe-serial", "flash-db"}},
		{"erase-chip", eraseChip, "", `Erase entire flash chip`, true, nil, []string{"force", "flash-db"}},
		{"erase", erase, "ADDR LEN", `Erase flash range, must be block-aligned`, true, nil, []string{"flash-db"}},
		{"read", read, "ADDR LEN FILE", `Read memory or flash contents to a file`, true, nil, nil},
		{"write", write, "ADDR FILE", `Erase and program flash with file contents`, true, nil, []string{"reset-after"}},
		{"reset", reset, "", `Reset the target and let it run`, true, nil, nil},
		{"run-script", runScript, "FILE", `Run commands from a file, one per line, in a single session`, true, nil, nil},
		{"list-probes", listProbes, "", `List attached CMSIS-DAP probes`, false, nil, nil},
		{"console", console, "", `Show output of the probe's UART bridge`, false, []string{"port"}, []string{"baud-rate"}},
	}
}

func findCommand(name string) *command {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i]
		}
	}
	return nil
}

func run(ctx context.Context) error {
	c := findCommand(flag.Arg(0))
	if c == nil {
		usage()
		return errors.Errorf("unknown command %q", flag.Arg(0))
	}
	if err := checkFlags(c.required); err != nil {
		return errors.Trace(err)
	}
	if *flags.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *flags.Timeout)
		defer cancel()
	}
	if !c.needsTarget {
		return errors.Trace(c.handler(ctx, nil, flag.Args()[1:]))
	}
	s, err := openSession(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	err = c.handler(ctx, s, flag.Args()[1:])
	// ctx may have been cancelled by now, cleanup must still happen.
	if cerr := s.Close(context.Background()); cerr != nil {
		if err == nil {
			err = cerr
		} else {
			glog.Errorf("failed to close session: %s", cerr)
		}
	}
	return errors.Trace(err)
}

func main() {
	initFlags()
	flag.Parse()
	if err := pflagenv.Parse(envPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if *flags.Verbose {
		flag.Set("v", "1")
	}

	if *helpFull || flag.Arg(0) == "help" {
		setFlagsHidden(false)
		usage()
		return
	} else if *versionFlag {
		fmt.Printf("%s\nVersion: %s\nBuild ID: %s\n", "CMSIS-DAP probe tool", version.Version, version.BuildId)
		return
	}
	if flag.NArg() == 0 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		glog.Infof("interrupted")
		cancel()
	}()

	err := run(ctx)
	cancel()
	glog.Flush()
	if err != nil {
		glog.Infof("Error: %+v", err)
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
