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
package spiflash

import (
	"encoding/hex"
	"io/ioutil"
	"strings"
	"time"

	"github.com/juju/errors"
	yaml "gopkg.in/yaml.v2"
)

// ChipInfo holds worst-case timings of a known chip.
type ChipInfo struct {
	Name string `yaml:"name"`
	// ID is the JEDEC ID as a hex string, e.g. "ef4018".
	ID              string        `yaml:"id"`
	PageProgramTime time.Duration `yaml:"page_program_time,omitempty"`
	SectorEraseTime time.Duration `yaml:"sector_erase_time,omitempty"`
	ChipEraseTime   time.Duration `yaml:"chip_erase_time,omitempty"`
}

func (ci *ChipInfo) jedecID() (JEDECID, error) {
	b, err := hex.DecodeString(strings.Replace(ci.ID, " ", "", -1))
	if err != nil || len(b) != 3 {
		return JEDECID{}, errors.NotValidf("chip %q ID %q", ci.Name, ci.ID)
	}
	return JEDECID{Manufacturer: b[0], Type: b[1], Capacity: b[2]}, nil
}

type ChipDB struct {
	chips map[JEDECID]*ChipInfo
}

var knownChips = []ChipInfo{
	{
		Name:            "Winbond W25Q128 (SPI)",
		ID:              "ef4018",
		PageProgramTime: 3 * time.Millisecond,
		SectorEraseTime: 400 * time.Millisecond,
		ChipEraseTime:   200 * time.Second,
	},
	{
		Name:            "Winbond W25Q128 (QPI)",
		ID:              "ef7018",
		PageProgramTime: 3 * time.Millisecond,
		SectorEraseTime: 400 * time.Millisecond,
		ChipEraseTime:   200 * time.Second,
	},
	{
		Name:            "Micron N25Q032",
		ID:              "20ba16",
		PageProgramTime: 5 * time.Millisecond,
		SectorEraseTime: 800 * time.Millisecond,
		ChipEraseTime:   60 * time.Second,
	},
	{
		Name:            "ISSI IS25WP064",
		ID:              "9d7017",
		PageProgramTime: 1 * time.Millisecond,
		SectorEraseTime: 300 * time.Millisecond,
		ChipEraseTime:   60 * time.Second,
	},
}

// NewChipDB returns a database of built-in chips.
func NewChipDB() *ChipDB {
	db := &ChipDB{chips: map[JEDECID]*ChipInfo{}}
	for i := range knownChips {
		ci := knownChips[i]
		if err := db.Add(&ci); err != nil {
			panic(err)
		}
	}
	return db
}

func (db *ChipDB) Add(ci *ChipInfo) error {
	id, err := ci.jedecID()
	if err != nil {
		return errors.Trace(err)
	}
	db.chips[id] = ci
	return nil
}

// LoadYAML adds chips from a YAML list, replacing existing entries with the same ID.
func (db *ChipDB) LoadYAML(data []byte) error {
	var chips []*ChipInfo
	if err := yaml.UnmarshalStrict(data, &chips); err != nil {
		return errors.Annotatef(err, "invalid chip list")
	}
	for _, ci := range chips {
		if err := db.Add(ci); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (db *ChipDB) LoadFile(fname string) error {
	data, err := ioutil.ReadFile(fname)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(db.LoadYAML(data), "%s", fname)
}

// Lookup returns the chip with the given ID or nil.
func (db *ChipDB) Lookup(id JEDECID) *ChipInfo {
	return db.chips[id]
}

// MaxTimings returns the worst case of every timing across all known chips,
// for use with chips that are not in the database.
func (db *ChipDB) MaxTimings() ChipInfo {
	res := ChipInfo{Name: "unknown"}
	for _, ci := range db.chips {
		if ci.PageProgramTime > res.PageProgramTime {
			res.PageProgramTime = ci.PageProgramTime
		}
		if ci.SectorEraseTime > res.SectorEraseTime {
			res.SectorEraseTime = ci.SectorEraseTime
		}
		if ci.ChipEraseTime > res.ChipEraseTime {
			res.ChipEraseTime = ci.ChipEraseTime
		}
	}
	return res
}

// Timings returns the chip's timings or the database maximum if the chip is not known.
func (db *ChipDB) Timings(id JEDECID) ChipInfo {
	if ci := db.Lookup(id); ci != nil {
		return *ci
	}
	return db.MaxTimings()
}
