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

// Commands understood by Tessel application firmware.
package xact

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tessel/tesselmgr/tmxact/dispatch"
)

const (
	// Bundle payload; the device runs it without persisting it.
	TAG_RUN_SCRIPT uint32 = 'U'

	// Bundle payload; the device writes it to flash and runs it on boot.
	TAG_FLASH_SCRIPT uint32 = 'P'

	// Stops the running script.  Vendor control request, no data stage.
	TAG_TERMINATE uint32 = 'K'
)

var tagNameMap = map[uint32]string{
	TAG_RUN_SCRIPT:   "run_script",
	TAG_FLASH_SCRIPT: "flash_script",
	TAG_TERMINATE:    "terminate",
}

func TagName(tag uint32) string {
	name, ok := tagNameMap[tag]
	if !ok {
		return fmt.Sprintf("0x%08x", tag)
	}
	return name
}

// Delivery methods for every tag this package sends.
func DefaultTable() dispatch.Table {
	return dispatch.Table{
		TAG_RUN_SCRIPT:   dispatch.PostMsg(),
		TAG_FLASH_SCRIPT: dispatch.PostMsg(),
		TAG_TERMINATE:    dispatch.ControlOut(),
	}
}

// Satisfied by *tmusb.UsbXport.
type Sender interface {
	Send(tag uint32, payload []byte) ([]byte, error)
}

func send(s Sender, tag uint32, payload []byte) error {
	if _, err := s.Send(tag, payload); err != nil {
		return errors.Wrapf(err, "%s", TagName(tag))
	}
	return nil
}

func RunScript(s Sender, bundle []byte) error {
	if len(bundle) == 0 {
		return errors.New("empty script bundle")
	}
	return send(s, TAG_RUN_SCRIPT, bundle)
}

func FlashScript(s Sender, bundle []byte) error {
	if len(bundle) == 0 {
		return errors.New("empty script bundle")
	}
	return send(s, TAG_FLASH_SCRIPT, bundle)
}

func Terminate(s Sender) error {
	return send(s, TAG_TERMINATE, nil)
}
