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
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagSet(t *testing.T) {
	fs := pflag.NewFlagSet("pflagenv-test", pflag.ContinueOnError)

	var myFlag1, myFlag2, myFlag3, myFlag4 string
	fs.StringVar(&myFlag1, "my-flag1", "def1", "")
	fs.StringVar(&myFlag2, "my-flag2", "def2", "")
	fs.StringVar(&myFlag3, "my-flag3", "def3", "")
	fs.StringVar(&myFlag4, "my-flag4", "def4", "")
	clock := fs.Uint32("swd-clock", 1000000, "")
	timeout := fs.Duration("timeout", 0, "")
	require.NoError(t, fs.Parse([]string{"--my-flag1=cl1", "--my-flag2="}))

	os.Setenv("TEST_MY_FLAG1", "env1")
	os.Setenv("TEST_MY_FLAG2", "env2")
	os.Setenv("TEST_MY_FLAG3", "env3")
	os.Setenv("TEST_SWD_CLOCK", "4000000")
	os.Setenv("TEST_TIMEOUT", "3m")
	defer func() {
		for _, v := range []string{"MY_FLAG1", "MY_FLAG2", "MY_FLAG3", "SWD_CLOCK", "TIMEOUT"} {
			os.Unsetenv("TEST_" + v)
		}
	}()
	require.NoError(t, ParseFlagSet(fs, "TEST_"))

	assert.Equal(t, "cl1", myFlag1)
	assert.Equal(t, "", myFlag2)
	assert.Equal(t, "env3", myFlag3)
	assert.Equal(t, "def4", myFlag4)
	assert.Equal(t, uint32(4000000), *clock)
	assert.Equal(t, 3*time.Minute, *timeout)
	assert.True(t, fs.Lookup("my-flag3").Changed)
	assert.False(t, fs.Lookup("my-flag4").Changed)
}

func TestParseFlagSetInvalid(t *testing.T) {
	fs := pflag.NewFlagSet("pflagenv-test", pflag.ContinueOnError)
	clock := fs.Uint32("swd-clock", 1000000, "")
	name := fs.String("name", "", "")
	require.NoError(t, fs.Parse(nil))

	os.Setenv("TEST2_SWD_CLOCK", "fast")
	os.Setenv("TEST2_NAME", "foo")
	defer os.Unsetenv("TEST2_SWD_CLOCK")
	defer os.Unsetenv("TEST2_NAME")
	err := ParseFlagSet(fs, "TEST2_")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST2_SWD_CLOCK")
	assert.Equal(t, uint32(1000000), *clock)
	assert.False(t, fs.Lookup("swd-clock").Changed)
	assert.Equal(t, "foo", *name)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "MOSPROBE_PROBE_SERIAL", EnvName("probe-serial", "MOSPROBE_"))
}
