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
	"encoding/binary"
	"encoding/hex"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// link is the raw packet channel to the probe. HID devices satisfy it.
type link interface {
	Write(data []byte) error
	ReadCh() <-chan []byte
	ReadError() error
	Close()
}

type dapClient struct {
	d             link
	maxPacketSize int
}

func newClient(ctx context.Context, d link) (*dapClient, error) {
	dapc := &dapClient{
		d:             d,
		maxPacketSize: 8, // Start with a conservative guess
	}
	resp, err := dapc.GetInfo(ctx, 0xff)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to get max packet size")
	}
	var rl uint8
	var mps uint16
	if binary.Read(resp, binary.LittleEndian, &rl) != nil || rl != 2 ||
		binary.Read(resp, binary.LittleEndian, &mps) != nil {
		return nil, errors.Errorf("invalid packet size response")
	}
	dapc.maxPacketSize = int(mps)
	glog.V(2).Infof("max packet size: %d", dapc.maxPacketSize)
	return dapc, nil
}

func (dapc *dapClient) exec(ctx context.Context, args *bytes.Buffer) (*bytes.Buffer, error) {
	glog.V(4).Infof(" => %s", hex.EncodeToString(args.Bytes()[1:]))
	// The report number byte does not count towards the packet size.
	if len(args.Bytes())-1 > dapc.maxPacketSize {
		return nil, errors.Errorf("packet too long (max %d, got %d)", dapc.maxPacketSize, len(args.Bytes())-1)
	}
	if err := dapc.d.Write(args.Bytes()); err != nil {
		return nil, errors.Annotatef(err, "device write failed")
	}
	select {
	case <-ctx.Done():
		return nil, errors.Annotatef(ctx.Err(), "DAP exec")
	case resp, ok := <-dapc.d.ReadCh():
		if !ok {
			return nil, errors.Annotatef(dapc.d.ReadError(), "device read failed")
		}
		glog.V(4).Infof("<=  %s", hex.EncodeToString(resp))
		cmd := args.Bytes()[1]
		if len(resp) == 0 || resp[0] != cmd {
			return nil, errors.Errorf("response to wrong command (want 0x%02x, got %q)", cmd, resp)
		}
		return bytes.NewBuffer(resp[1:]), nil
	}
}

func (dapc *dapClient) execCheckStatus(ctx context.Context, args *bytes.Buffer) error {
	cmd := args.Bytes()[1]
	resp, err := dapc.exec(ctx, args)
	if err != nil {
		return errors.Trace(err)
	}
	status, err := resp.ReadByte()
	if err != nil {
		return errors.Errorf("command 0x%02x: empty response", cmd)
	}
	if status != 0 {
		return errors.Errorf("command 0x%02x returned error (0x%02x)", cmd, status)
	}
	return nil
}

func (dapc *dapClient) GetInfo(ctx context.Context, info uint8) (*bytes.Buffer, error) {
	glog.V(3).Infof("GetInfo(%d)", info)
	args := newCmd(cmdInfo)
	args.WriteByte(info)
	resp, err := dapc.exec(ctx, args)
	return resp, errors.Annotatef(err, "failed to get info 0x%02x", info)
}

func (dapc *dapClient) getInfoString(ctx context.Context, info uint8) (string, error) {
	resp, err := dapc.GetInfo(ctx, info)
	if err != nil {
		return "", errors.Trace(err)
	}
	sl, err := resp.ReadByte()
	if err != nil {
		return "", errors.Errorf("info 0x%02x: empty response", info)
	}
	s := resp.Next(int(sl))
	// Strings are NUL-terminated and the terminator is included in the length.
	return string(bytes.TrimRight(s, "\x00")), nil
}

func (dapc *dapClient) GetVendorID(ctx context.Context) (string, error) {
	return dapc.getInfoString(ctx, 1)
}

func (dapc *dapClient) GetProductID(ctx context.Context) (string, error) {
	return dapc.getInfoString(ctx, 2)
}

func (dapc *dapClient) GetSerialNumber(ctx context.Context) (string, error) {
	return dapc.getInfoString(ctx, 3)
}

func (dapc *dapClient) GetFirmwareVersion(ctx context.Context) (string, error) {
	return dapc.getInfoString(ctx, 4)
}

func (dapc *dapClient) GetTargetVendor(ctx context.Context) (string, error) {
	return dapc.getInfoString(ctx, 5)
}

func (dapc *dapClient) GetTargetName(ctx context.Context) (string, error) {
	return dapc.getInfoString(ctx, 6)
}

func (dapc *dapClient) SetHostStatus(ctx context.Context, st StatusType, value bool) error {
	args := newCmd(cmdSetHostStatus)
	args.WriteByte(uint8(st))
	if value {
		args.WriteByte(1)
	} else {
		args.WriteByte(0)
	}
	return errors.Trace(dapc.execCheckStatus(ctx, args))
}

func (dapc *dapClient) Connect(ctx context.Context, mode ConnectMode) error {
	glog.V(3).Infof("Connect(%d)", mode)
	args := newCmd(cmdConnect)
	args.WriteByte(uint8(mode))
	resp, err := dapc.exec(ctx, args)
	if err != nil {
		return errors.Trace(err)
	}
	if port, err := resp.ReadByte(); err != nil || port == 0 {
		return errors.Errorf("connect error")
	}
	return nil
}

func (dapc *dapClient) Disconnect(ctx context.Context) error {
	return errors.Trace(dapc.execCheckStatus(ctx, newCmd(cmdDisconnect)))
}

func (dapc *dapClient) TransferConfigure(ctx context.Context, idleCycles uint8, waitRetry uint16, matchRetry uint16) error {
	glog.V(3).Infof("TransferConfigure(%d, %d, %d)", idleCycles, waitRetry, matchRetry)
	args := newCmd(cmdTransferConfigure)
	args.WriteByte(idleCycles)
	binary.Write(args, binary.LittleEndian, waitRetry)
	binary.Write(args, binary.LittleEndian, matchRetry)
	return errors.Trace(dapc.execCheckStatus(ctx, args))
}

func (dapc *dapClient) Transfer(ctx context.Context, dapIndex uint8, reqs []TransferRequest) (TransferStatus, []uint32, error) {
	for i := 0; i < 5; i++ {
		args, err := encodeTransfer(dapIndex, reqs)
		if err != nil {
			return 0, nil, errors.Trace(err)
		}
		resp, err := dapc.exec(ctx, args)
		if err != nil {
			return 0, nil, errors.Trace(err)
		}
		st, res, err := decodeTransfer(resp, reqs)
		if err != nil && st.AckValue() == uint8(TransferStatusWait) {
			continue
		}
		return st, res, err
	}
	return TransferStatusWait, nil, errors.Timeoutf("transfer")
}

func (dapc *dapClient) GetTransferBlockMaxSize() int {
	headerLen := 1 /* op */ + 1 /* dap index */ + 2 /* transfer count */ + 1 /* request */
	return (dapc.maxPacketSize - headerLen) / 4
}

func (dapc *dapClient) TransferBlockRead(ctx context.Context, dapIndex uint8, ap bool, reg uint8, length int) ([]uint32, error) {
	glog.V(3).Infof("TransferBlockRead(%d, %t, 0x%x, %d)", dapIndex, ap, reg, length)
	if length > dapc.GetTransferBlockMaxSize() {
		return nil, errors.Errorf("request too big (max %d, got %d)", dapc.GetTransferBlockMaxSize(), length)
	}
	args, err := encodeTransferBlock(dapIndex, ap, reg, length, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	resp, err := dapc.exec(ctx, args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return decodeTransferBlock(resp, length, length)
}

func (dapc *dapClient) TransferBlockWrite(ctx context.Context, dapIndex uint8, ap bool, reg uint8, data []uint32) error {
	glog.V(3).Infof("TransferBlockWrite(%d, %t, 0x%x, %d)", dapIndex, ap, reg, len(data))
	if len(data) > dapc.GetTransferBlockMaxSize() {
		return errors.Errorf("request too big (max %d, got %d)", dapc.GetTransferBlockMaxSize(), len(data))
	}
	args, err := encodeTransferBlock(dapIndex, ap, reg, len(data), data)
	if err != nil {
		return errors.Trace(err)
	}
	resp, err := dapc.exec(ctx, args)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = decodeTransferBlock(resp, len(data), 0)
	return errors.Trace(err)
}

func (dapc *dapClient) ResetTarget(ctx context.Context) error {
	resp, err := dapc.exec(ctx, newCmd(cmdResetTarget))
	if err != nil {
		return errors.Trace(err)
	}
	if status, err := resp.ReadByte(); err != nil || status != 0 {
		return errors.Errorf("reset failed")
	}
	return nil
}

func (dapc *dapClient) SWJClock(ctx context.Context, clockHz uint32) error {
	glog.V(3).Infof("SWJClock(%d)", clockHz)
	args := newCmd(cmdSWJClock)
	binary.Write(args, binary.LittleEndian, clockHz)
	return errors.Trace(dapc.execCheckStatus(ctx, args))
}

func (dapc *dapClient) SWJSequence(ctx context.Context, numBits int, data []uint8) error {
	glog.V(3).Infof("SWJSequence(%d, %v)", numBits, data)
	if numBits < 1 || numBits > 256 {
		return errors.Errorf("length must be between 1 and 256 (got %d)", numBits)
	}
	if len(data)*8 < numBits {
		return errors.Errorf("not enough data for %d bits", numBits)
	}
	args := newCmd(cmdSWJSequence)
	args.WriteByte(uint8(numBits)) // 256 is encoded as 0.
	args.Write(data[:(numBits+7)/8])
	return errors.Trace(dapc.execCheckStatus(ctx, args))
}

func (dapc *dapClient) SWDConfigure(ctx context.Context, config uint8) error {
	glog.V(3).Infof("SWDConfigure(0x%02x)", config)
	args := newCmd(cmdSWDConfigure)
	args.WriteByte(config)
	return errors.Trace(dapc.execCheckStatus(ctx, args))
}

func (dapc *dapClient) Close(ctx context.Context) error {
	if dapc.d != nil {
		dapc.d.Close()
		dapc.d = nil
	}
	return nil
}
