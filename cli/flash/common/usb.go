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
// +build !no_libudev

package common

import (
	"strings"

	"github.com/golang/glog"
	"github.com/google/gousb"
	"github.com/juju/errors"
)

// ListUSBDevices returns attached USB devices whose product string contains
// productSubstr (all devices if it is empty).
func ListUSBDevices(productSubstr string) ([]USBDeviceInfo, error) {
	uctx := gousb.NewContext()
	defer uctx.Close()
	devs, err := uctx.OpenDevices(func(dd *gousb.DeviceDesc) bool {
		glog.V(1).Infof("Dev %+v", dd)
		return true
	})
	// OpenDevices may fail overall but still return results. Only fail if no devices were returned.
	if err != nil && len(devs) == 0 {
		return nil, errors.Annotatef(err, "failed to enumerate USB devices")
	}
	var res []USBDeviceInfo
	for _, dev := range devs {
		product, _ := dev.Product()
		if productSubstr == "" || strings.Contains(product, productSubstr) {
			manufacturer, _ := dev.Manufacturer()
			sn, _ := dev.SerialNumber()
			res = append(res, USBDeviceInfo{
				VID:          uint16(dev.Desc.Vendor),
				PID:          uint16(dev.Desc.Product),
				Manufacturer: manufacturer,
				Product:      product,
				Serial:       sn,
			})
		}
		dev.Close()
	}
	return res, nil
}
