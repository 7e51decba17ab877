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

// Package dispatch maps message tags to the way they travel to the device:
// as a framed bulk message on the messages-out endpoint, or as a vendor
// control transfer on endpoint zero.
package dispatch

import (
	"fmt"

	"github.com/tessel/tesselmgr/tmxact/tmxutil"
	"github.com/tessel/tesselmgr/tmxact/usbdev"
)

type Method int

const (
	METHOD_POST_MSG Method = iota
	METHOD_CONTROL
)

var methodNameMap = map[Method]string{
	METHOD_POST_MSG: "post_msg",
	METHOD_CONTROL:  "control",
}

func (m Method) String() string {
	s, ok := methodNameMap[m]
	if !ok {
		return "???"
	}
	return s
}

// Default receive buffer for device-to-host control transfers.
const DFLT_CONTROL_IN_LEN = 64

type Entry struct {
	Method Method

	// bmRequestType; control transfers only.
	RequestType uint8

	// Receive buffer size for device-to-host control transfers.
	InLen int
}

func (e Entry) IsIn() bool {
	return e.Method == METHOD_CONTROL &&
		e.RequestType&usbdev.CONTROL_DIR_MASK == usbdev.CONTROL_IN
}

func (e Entry) String() string {
	if e.Method != METHOD_CONTROL {
		return e.Method.String()
	}
	return fmt.Sprintf("%s(rtype=0x%02x)", e.Method.String(), e.RequestType)
}

func PostMsg() Entry {
	return Entry{
		Method: METHOD_POST_MSG,
	}
}

// Host-to-device vendor request addressed to the device.
func ControlOut() Entry {
	return Entry{
		Method: METHOD_CONTROL,
		RequestType: usbdev.CONTROL_OUT | usbdev.CONTROL_VENDOR |
			usbdev.CONTROL_DEVICE,
	}
}

// Device-to-host vendor request addressed to the device.  n is the number
// of bytes to accept; zero selects DFLT_CONTROL_IN_LEN.
func ControlIn(n int) Entry {
	if n <= 0 {
		n = DFLT_CONTROL_IN_LEN
	}
	return Entry{
		Method: METHOD_CONTROL,
		RequestType: usbdev.CONTROL_IN | usbdev.CONTROL_VENDOR |
			usbdev.CONTROL_DEVICE,
		InLen: n,
	}
}

type Table map[uint32]Entry

func (t Table) Lookup(tag uint32) (Entry, error) {
	e, ok := t[tag]
	if !ok {
		return Entry{}, tmxutil.NewUnknownTagError(tag)
	}
	return e, nil
}

// Returns a copy of the table; the transport keeps its own so callers can
// keep editing theirs.
func (t Table) Clone() Table {
	c := make(Table, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}
