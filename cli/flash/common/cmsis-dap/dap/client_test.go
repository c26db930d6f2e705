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
package dap

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLink records requests and replies with canned responses in order.
type fakeLink struct {
	reqs  [][]byte
	resps [][]byte
	ch    chan []byte
}

func newFakeLink(resps ...[]byte) *fakeLink {
	return &fakeLink{resps: resps, ch: make(chan []byte, 1)}
}

func (l *fakeLink) Write(data []byte) error {
	l.reqs = append(l.reqs, append([]byte(nil), data...))
	if len(l.resps) > 0 {
		l.ch <- l.resps[0]
		l.resps = l.resps[1:]
	}
	return nil
}

func (l *fakeLink) ReadCh() <-chan []byte { return l.ch }
func (l *fakeLink) ReadError() error { return nil }
func (l *fakeLink) Close() {}

func TestNewClientPacketSize(t *testing.T) {
	l := newFakeLink([]byte{0x00, 0x02, 0x40, 0x00})
	dapc, err := newClient(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, 64, dapc.maxPacketSize)
	assert.Equal(t, 14, dapc.GetTransferBlockMaxSize())
	assert.Equal(t, []byte{0x00, 0x00, 0xff}, l.reqs[0])
}

func TestTransferRead(t *testing.T) {
	l := newFakeLink([]byte{0x05, 0x01, 0x01, 0x78, 0x56, 0x34, 0x12})
	dapc := &dapClient{d: l, maxPacketSize: 64}
	st, data, err := dapc.Transfer(context.Background(), 0, []TransferRequest{
		{Op: OpRead, AP: true, Reg: 0x0c},
	})
	require.NoError(t, err)
	assert.True(t, st.Ok())
	assert.Equal(t, []uint32{0x12345678}, data)
	// report id, cmd, dap index, count, request (AP | read | A[3:2]).
	assert.Equal(t, []byte{0x00, 0x05, 0x00, 0x01, 0x0f}, l.reqs[0])
}

func TestTransferRetriesOnWait(t *testing.T) {
	l := newFakeLink(
		[]byte{0x05, 0x00, 0x02},
		[]byte{0x05, 0x01, 0x01},
	)
	dapc := &dapClient{d: l, maxPacketSize: 64}
	_, _, err := dapc.Transfer(context.Background(), 0, []TransferRequest{
		{Op: OpWrite, Reg: 0x08, Data: 0xf0},
	})
	require.NoError(t, err)
	require.Len(t, l.reqs, 2)
	assert.Equal(t, []byte{0x00, 0x05, 0x00, 0x01, 0x08, 0xf0, 0x00, 0x00, 0x00}, l.reqs[1])
}

func TestTransferFault(t *testing.T) {
	l := newFakeLink([]byte{0x05, 0x00, 0x04})
	dapc := &dapClient{d: l, maxPacketSize: 64}
	st, _, err := dapc.Transfer(context.Background(), 0, []TransferRequest{{Op: OpRead, Reg: 0x00}})
	assert.Error(t, err)
	assert.Equal(t, uint8(4), st.AckValue())
	assert.Len(t, l.reqs, 1)
}

func TestTransferBlockWrite(t *testing.T) {
	l := newFakeLink([]byte{0x06, 0x02, 0x00, 0x01})
	dapc := &dapClient{d: l, maxPacketSize: 64}
	err := dapc.TransferBlockWrite(context.Background(), 0, true, 0x0c, []uint32{1, 2})
	require.NoError(t, err)
	want := []byte{0x00, 0x06, 0x00, 0x02, 0x00, 0x0d, 1, 0, 0, 0, 2, 0, 0, 0}
	assert.Equal(t, want, l.reqs[0])
}

func TestTransferBlockReadTooBig(t *testing.T) {
	dapc := &dapClient{d: newFakeLink(), maxPacketSize: 64}
	_, err := dapc.TransferBlockRead(context.Background(), 0, true, 0x0c, 15)
	assert.Error(t, err)
}

func TestGetInfoString(t *testing.T) {
	l := newFakeLink(append([]byte{0x00, 0x05}, []byte("ARM\x00\x00")...))
	dapc := &dapClient{d: l, maxPacketSize: 64}
	s, err := dapc.GetVendorID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ARM", s)
}

func TestExecWrongCommand(t *testing.T) {
	l := newFakeLink([]byte{0x13, 0x00})
	dapc := &dapClient{d: l, maxPacketSize: 64}
	assert.Error(t, dapc.Disconnect(context.Background()))
}

func TestTransferRequestByte(t *testing.T) {
	cases := []struct {
		ap   bool
		reg  uint8
		op   TransferOp
		want uint8
		fail bool
	}{
		{false, 0x00, OpRead, 0x02, false},
		{true, 0x04, OpWrite, 0x05, false},
		{true, 0x08, OpReadMatch, 0x1b, false},
		{false, 0x0c, OpWriteMatch, 0x2c, false},
		{false, 0x01, OpRead, 0, true},
	}
	for _, c := range cases {
		got, err := transferRequestByte(c.ap, c.reg, c.op)
		if c.fail {
			assert.Errorf(t, err, "case %+v", c)
			continue
		}
		require.NoError(t, err)
		assert.Equalf(t, c.want, got, "case %+v", c)
	}
}

func TestSWDInitSequence(t *testing.T) {
	var resps [][]byte
	resps = append(resps, []byte{0x02, 0x01}) // Connect
	resps = append(resps, []byte{0x11, 0x00}) // SWJClock
	resps = append(resps, []byte{0x13, 0x00}) // SWDConfigure
	for i := 0; i < 6; i++ {
		resps = append(resps, []byte{0x12, 0x00}) // SWJSequence
	}
	resps = append(resps, []byte{0x04, 0x00}) // TransferConfigure
	l := newFakeLink(resps...)
	dapc := &dapClient{d: l, maxPacketSize: 64}
	require.NoError(t, SWDInit(context.Background(), dapc, 1000000))
	require.Len(t, l.reqs, 10)
	assert.True(t, bytes.Equal([]byte{0x00, 0x12, 16, 0x9e, 0xe7}, l.reqs[6]))
}
