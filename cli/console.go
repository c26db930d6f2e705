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
	"io"
	"os"

	"github.com/cesanta/go-serial/serial"
	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mosprobe/cli/flags"
	"github.com/mongoose-os/mosprobe/cli/ourutil"
)

func console(ctx context.Context, _ *session, args []string) error {
	if err := checkArgs(args, 0, "none"); err != nil {
		return errors.Trace(err)
	}
	oo := serial.OpenOptions{
		PortName:        *flags.Port,
		BaudRate:        uint(*flags.BaudRate),
		DataBits:        8,
		ParityMode:      serial.PARITY_NONE,
		StopBits:        1,
		MinimumReadSize: 1,
	}
	port, err := serial.Open(oo)
	if err != nil {
		return errors.Annotatef(err, "failed to open %s", *flags.Port)
	}
	glog.Infof("%s opened", *flags.Port)
	ourutil.Reportf("Connected to %s at %d, Ctrl-C to exit", *flags.Port, *flags.BaudRate)

	errCh := make(chan error, 2)
	go func() {
		_, err := io.Copy(os.Stdout, port)
		errCh <- err
	}()
	go func() {
		_, err := io.Copy(port, os.Stdin)
		errCh <- err
	}()
	select {
	case <-ctx.Done():
		err = nil
	case err = <-errCh:
	}
	port.Close()
	return errors.Trace(err)
}
