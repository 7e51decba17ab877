/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package usbdev is the narrow slice of a USB host stack the transport
// needs: enumerate, open, claim one interface, stream on its endpoints and
// issue control transfers.  The production backend is usbdev/gousbdev
// (libusb); tests use the in-memory backend in usbdev/usbtest.
package usbdev

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// bmRequestType bits (USB 2.0 section 9.3).
const (
	CONTROL_OUT uint8 = 0x00
	CONTROL_IN  uint8 = 0x80

	CONTROL_STANDARD uint8 = 0x00
	CONTROL_CLASS    uint8 = 0x20
	CONTROL_VENDOR   uint8 = 0x40

	CONTROL_DEVICE    uint8 = 0x00
	CONTROL_INTERFACE uint8 = 0x01
	CONTROL_ENDPOINT  uint8 = 0x02

	CONTROL_DIR_MASK uint8 = 0x80
)

// Reported by Device.Claim when the interface is held by another process or
// driver.  Backends wrap it; test with IsBusy.
var ErrBusy = errors.New("resource busy")

func IsBusy(err error) bool {
	return err != nil && errors.Cause(err) == ErrBusy
}

type DeviceDesc struct {
	Bus     int
	Address int
	Vendor  uint16
	Product uint16

	// bcdDevice; the high byte is the firmware major version.
	Version uint16
}

func (d DeviceDesc) String() string {
	return fmt.Sprintf("%03d.%03d %04x:%04x v%x.%02x",
		d.Bus, d.Address, d.Vendor, d.Product,
		d.Version>>8, d.Version&0xff)
}

type Enumerator interface {
	// Lists every attached device.  A backend may return a partial list
	// along with an error.
	Enumerate() ([]DeviceDesc, error)

	// Opens the device described by desc.
	Open(desc DeviceDesc) (Device, error)
}

type Device interface {
	// Sets the timeout applied to control transfers and descriptor reads.
	SetTimeout(tmo time.Duration)

	SerialNumber() (string, error)

	// Claims interface intf of the active configuration and selects
	// alternate setting alt.
	Claim(intf int, alt int) (Interface, error)

	Control(rType uint8, request uint8, val uint16, idx uint16,
		data []byte) (int, error)

	Close() error
}

type Interface interface {
	// Endpoints are addressed by their position in the interface
	// descriptor.
	InEndpoint(idx int) (InEndpoint, error)
	OutEndpoint(idx int) (OutEndpoint, error)

	// Releases the claim.
	Release() error
}

type InEndpoint interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

type OutEndpoint interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
	MaxPacketSize() int
}
