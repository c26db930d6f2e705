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
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"
	shellwords "github.com/mattn/go-shellwords"

	"github.com/mongoose-os/mosprobe/cli/ourutil"
)

type scriptLine struct {
	num  int
	text string
	args []string
}

// parseScript splits r into commands. Empty lines and lines starting with # are skipped.
func parseScript(r io.Reader) ([]scriptLine, error) {
	var res []scriptLine
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		args, err := shellwords.Parse(line)
		if err != nil {
			return nil, errors.Annotatef(err, "line %d", n)
		}
		if len(args) == 0 {
			continue
		}
		c := findCommand(args[0])
		if c == nil {
			return nil, errors.Errorf("line %d: unknown command %q", n, args[0])
		}
		if !c.needsTarget || c.name == "run-script" {
			return nil, errors.Errorf("line %d: %q cannot be used in a script", n, args[0])
		}
		res = append(res, scriptLine{num: n, text: line, args: args})
	}
	return res, errors.Trace(sc.Err())
}

func runScript(ctx context.Context, s *session, args []string) error {
	if err := checkArgs(args, 1, "FILE"); err != nil {
		return errors.Trace(err)
	}
	f, err := os.Open(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	lines, err := parseScript(f)
	if err != nil {
		return errors.Annotatef(err, "%s", args[0])
	}
	for _, l := range lines {
		ourutil.Reportf("> %s", l.text)
		glog.V(1).Infof("%s:%d: %q", args[0], l.num, l.args)
		if err := findCommand(l.args[0]).handler(ctx, s, l.args[1:]); err != nil {
			return errors.Annotatef(err, "%s:%d", args[0], l.num)
		}
	}
	return nil
}
