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
package target

import (
	"context"

	"github.com/golang/glog"
)

// ProbeFunc checks whether t is a part it knows about and if so, attaches a driver
// and registers memory regions. It must not modify the target unless it returns true:
// before a positive identification only reads are allowed, and if setup fails
// after Attach, the probe must Detach before returning false.
type ProbeFunc func(ctx context.Context, t *Target) bool

// ProbeChain runs probes in order until one of them claims the target.
// Any previously attached driver is dropped first.
func ProbeChain(ctx context.Context, t *Target, probes []ProbeFunc) bool {
	t.Detach()
	for _, probe := range probes {
		if probe(ctx, t) {
			return true
		}
		if t.Attached() {
			glog.Warningf("probe left %q attached after mismatch", t.Name())
			t.Detach()
		}
	}
	glog.V(1).Infof("no driver for %s", t.PartID())
	return false
}
