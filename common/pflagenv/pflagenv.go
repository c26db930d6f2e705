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
package pflagenv

import (
	"os"
	"sort"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"github.com/spf13/pflag"

	"github.com/mongoose-os/mosprobe/common/multierror"
)

// ParseFlagSet sets every flag of fs that was not given on the command line
// from the environment variable named envPrefix + upper-cased flag name,
// with dashes replaced by underscores (--probe-serial -> MOSPROBE_PROBE_SERIAL).
// Empty variables are ignored. Values that the flag rejects are reported,
// the remaining flags are still processed.
//
// It should be called after Parse is called for the given FlagSet.
func ParseFlagSet(fs *pflag.FlagSet, envPrefix string) error {
	// pflag does not tell a flag set to its default value from one not set at all,
	// so collect all flags and drop the ones that were set.
	nonset := map[string]*pflag.Flag{}
	fs.VisitAll(func(f *pflag.Flag) {
		nonset[f.Name] = f
	})
	fs.Visit(func(f *pflag.Flag) {
		delete(nonset, f.Name)
	})
	names := make([]string, 0, len(nonset))
	for name := range nonset {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs error
	for _, name := range names {
		envName := EnvName(name, envPrefix)
		v := os.Getenv(envName)
		if v == "" {
			continue
		}
		if err := fs.Set(name, v); err != nil {
			// Some values are modified even when parsing fails.
			f := nonset[name]
			if rerr := f.Value.Set(f.DefValue); rerr != nil {
				glog.Warningf("failed to restore default of --%s: %s", name, rerr)
			}
			errs = multierror.Append(errs, errors.Annotatef(err, "%s", envName))
		}
	}
	return errs
}

// Parse is ParseFlagSet for pflag.CommandLine.
func Parse(envPrefix string) error {
	return ParseFlagSet(pflag.CommandLine, envPrefix)
}

func EnvName(flagName, envPrefix string) string {
	return envPrefix + strings.Replace(strings.ToUpper(flagName), "-", "_", -1)
}
