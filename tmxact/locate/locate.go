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

package locate

import (
	log "github.com/sirupsen/logrus"

	"github.com/tessel/tesselmgr/tmxact/tmxutil"
	"github.com/tessel/tesselmgr/tmxact/usbdev"
)

const (
	TESSEL_VID uint16 = 0x1d50
	TESSEL_PID uint16 = 0x6097
)

// Devices whose firmware version has a zero major byte are sitting in the
// bootloader and cannot speak the application protocol.
func IsBootloader(desc usbdev.DeviceDesc) bool {
	return desc.Version>>8 == 0
}

func IsTessel(desc usbdev.DeviceDesc) bool {
	return desc.Vendor == TESSEL_VID && desc.Product == TESSEL_PID
}

type Locator struct {
	enum usbdev.Enumerator
}

func NewLocator(enum usbdev.Enumerator) *Locator {
	return &Locator{
		enum: enum,
	}
}

// Lists attached Tessels running application firmware, in the USB stack's
// enumeration order.  Enumeration failures are logged, not returned; the
// result is empty when nothing usable is attached.
func (l *Locator) ListCandidates() []usbdev.DeviceDesc {
	descs, err := l.enum.Enumerate()
	if err != nil {
		log.Warnf("USB enumeration incomplete: %s", err.Error())
	}

	cands := []usbdev.DeviceDesc{}
	for _, d := range descs {
		if !IsTessel(d) {
			continue
		}
		if IsBootloader(d) {
			log.Debugf("Skipping %s; device is in bootloader mode",
				d.String())
			continue
		}

		cands = append(cands, d)
	}

	return cands
}

// Returns the first candidate.  With several identical devices attached,
// which one is returned depends on enumeration order.
func (l *Locator) FirstCandidate() (usbdev.DeviceDesc, error) {
	cands := l.ListCandidates()
	if len(cands) == 0 {
		return usbdev.DeviceDesc{}, tmxutil.NewDeviceNotFoundError(
			"no Tessel found; is it plugged in and out of bootloader mode?")
	}

	return cands[0], nil
}
