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
package ourutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
)

func Reportf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	glog.Infof(f, args...)
}

func Freportf(logFile io.Writer, f string, args ...interface{}) {
	fmt.Fprintf(logFile, f+"\n", args...)
	glog.Infof(f, args...)
}

func Prompt(text string) string {
	fmt.Fprintf(os.Stderr, "%s ", text)
	ans, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(ans)
}

// Progress prints the state of a long-running operation on a single line.
type Progress struct {
	w        io.Writer
	what     string
	interval time.Duration
	last     time.Duration
	printed  bool
}

func NewProgress(w io.Writer, what string, interval time.Duration) *Progress {
	return &Progress{w: w, what: what, interval: interval}
}

// Report is a target.ProgressFunc. Output is rate-limited to one line per interval.
func (p *Progress) Report(elapsed, total time.Duration) {
	if p.printed && elapsed-p.last < p.interval {
		return
	}
	p.last, p.printed = elapsed, true
	fmt.Fprintf(p.w, "\r%s: %s elapsed (max %s)...", p.what, elapsed.Truncate(time.Second), total)
}

// Done terminates the progress line, if one was printed.
func (p *Progress) Done() {
	if p.printed {
		fmt.Fprintf(p.w, "\n")
		p.printed = false
	}
}
