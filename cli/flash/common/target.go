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
package common

import (
	"context"
)

type TargetMemReader interface {
	// ReadTargetReg reads a single 32-bit word from the target (handy for reading registers).
	ReadTargetReg(ctx context.Context, addr uint32) (uint32, error)
	// ReadTargetMem fills buf with target memory contents starting at addr.
	// Neither addr nor len(buf) need to be word-aligned.
	ReadTargetMem(ctx context.Context, addr uint32, buf []byte) error
}

type TargetMemWriter interface {
	// WriteTargetReg writes a single 32-bit word to the target.
	WriteTargetReg(ctx context.Context, addr uint32, value uint32) error
	// WriteTargetMem writes data to the target's memory starting at addr.
	// Unaligned head and tail bytes are merged with the current memory contents.
	WriteTargetMem(ctx context.Context, addr uint32, data []byte) error
}

type TargetMemReaderWriter interface {
	TargetMemReader
	TargetMemWriter
}

type Target interface {
	// Halt stops the core and enables halting debug.
	Halt(ctx context.Context) error
	// ResetRun resets the system and lets it run without debug.
	ResetRun(ctx context.Context) error
	// ResetHalt performs reset and halts the system in debug mode.
	ResetHalt(ctx context.Context) error
	// GetReg retrieves current value of a core register.
	GetReg(ctx context.Context, reg int) (uint32, error)
	// SetReg sets value of a core register.
	SetReg(ctx context.Context, reg int, value uint32) error
	// Run releases the processor from halt and lets it run (from current instruction pointer).
	// If waitHalt is set, will wait for the processor to halt again before returning.
	Run(ctx context.Context, waitHalt bool) error
	// WaitHalt waits for core to halt.
	WaitHalt(ctx context.Context) error
}
