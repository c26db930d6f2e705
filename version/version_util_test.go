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
package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLikeVersionNumber(t *testing.T) {
	assert.True(t, LooksLikeVersionNumber("1.0"))
	assert.True(t, LooksLikeVersionNumber("2.19.1"))
	assert.False(t, LooksLikeVersionNumber("latest"))
	assert.False(t, LooksLikeVersionNumber("1"))
	assert.False(t, LooksLikeVersionNumber("v1.0"))
}

func TestGetVersion(t *testing.T) {
	saved := Version
	defer func() { Version = saved }()
	Version = "1.2.3"
	assert.Equal(t, "1.2.3", GetVersion())
	Version = "20261019-abc"
	assert.Equal(t, LatestVersionName, GetVersion())
}
