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
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "Erasing", time.Second)
	p.Done()
	assert.Equal(t, "", buf.String())

	p.Report(100*time.Millisecond, time.Minute)
	p.Report(900*time.Millisecond, time.Minute)
	p.Report(1500*time.Millisecond, time.Minute)
	p.Done()
	assert.Equal(t, "\rErasing: 0s elapsed (max 1m0s)...\rErasing: 1s elapsed (max 1m0s)...\n", buf.String())
}
