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

package cli

import (
	"sync"

	"mynewt.apache.org/newt/util"

	"github.com/tessel/tesselmgr/tesselmgr/config"
	"github.com/tessel/tesselmgr/tesselmgr/tmutil"
	"github.com/tessel/tesselmgr/tmxact/tmusb"
	"github.com/tessel/tesselmgr/tmxact/tmxutil"
	"github.com/tessel/tesselmgr/tmxact/usbdev"
	"github.com/tessel/tesselmgr/tmxact/usbdev/gousbdev"
)

type enumerator interface {
	usbdev.Enumerator
	Close() error
}

// Replaced in tests.
var newEnumerator = func() enumerator {
	return gousbdev.NewEnumerator()
}

var globalEnum enumerator
var globalXport *tmusb.UsbXport
var closeMtx sync.Mutex

// Resolves the USB settings.  The connstring comes from --connstring or
// else the selected profile.  An explicit --timeout beats the connstring's
// timeout, which beats the flag's default.
func getUsbConfig() (*config.UsbConfig, error) {
	cs := tmutil.ConnString

	if tmutil.ConnProfile != "" {
		cp, err := config.GlobalConnProfileMgr().GetConnProfile(
			tmutil.ConnProfile)
		if err != nil {
			return nil, err
		}
		if cp.Type != config.CONN_TYPE_USB {
			return nil, util.FmtNewtError(
				"Unsupported connection type: %s (%d)",
				config.ConnTypeToString(cp.Type), int(cp.Type))
		}
		if cs == "" {
			cs = cp.ConnString
		}
	}

	uc, err := config.ParseUsbConnString(cs)
	if err != nil {
		return nil, err
	}
	if tmutil.TimeoutSet || uc.IoTimeout == 0 {
		uc.IoTimeout = tmutil.IoTimeout()
	}

	return uc, nil
}

func getEnumerator() enumerator {
	if globalEnum == nil {
		globalEnum = newEnumerator()
	}
	return globalEnum
}

// Opens the Tessel on first use; later calls return the same transport.
// Listeners are registered before the device is claimed, so they see the
// connection notice.
func GetXport(ls ...*tmusb.Listener) (*tmusb.UsbXport, error) {
	if globalXport == nil {
		uc, err := getUsbConfig()
		if err != nil {
			return nil, err
		}

		globalXport = tmusb.NewUsbXport(
			config.BuildXportCfg(uc, getEnumerator()))
	}

	for _, l := range ls {
		globalXport.AddListener(l)
	}

	if err := globalXport.Init(); err != nil && !tmxutil.IsAlready(err) {
		// A failed transport is closed for good; the next call starts over.
		globalXport = nil
		return nil, util.ChildNewtError(err)
	}

	return globalXport, nil
}

// Closes the transport and the USB context, whichever exist.
func CloseAll() {
	closeMtx.Lock()
	defer closeMtx.Unlock()

	if globalXport != nil {
		globalXport.Close()
		globalXport = nil
	}
	if globalEnum != nil {
		globalEnum.Close()
		globalEnum = nil
	}
}
