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
	"time"
)

// Timeout tracks a deadline for a long-running flash operation.
type Timeout struct {
	start    time.Time
	duration time.Duration
}

func NewTimeout(d time.Duration) *Timeout {
	return &Timeout{start: time.Now(), duration: d}
}

func (to *Timeout) Expired() bool {
	return to.Elapsed() >= to.duration
}

func (to *Timeout) Elapsed() time.Duration {
	return time.Since(to.start)
}

func (to *Timeout) Duration() time.Duration {
	return to.duration
}
