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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"mynewt.apache.org/newt/util"

	"github.com/tessel/tesselmgr/tmxact/tmusb"
	"github.com/tessel/tesselmgr/tmxact/usbdev"
	"github.com/tessel/tesselmgr/tmxact/xact"
)

type UsbConfig struct {
	// Control transfer and descriptor read timeout.  Zero means the
	// transport default.
	IoTimeout time.Duration

	// Device log records below this severity are not printed.
	Level uint8
}

func einvalUsbConnString(f string, args ...interface{}) error {
	suffix := fmt.Sprintf(f, args...)
	return util.FmtNewtError("Invalid USB connstring; %s", suffix)
}

// Parses "timeout=<seconds>,level=<n>".  Both keys are optional; an empty
// string yields the defaults.
func ParseUsbConnString(cs string) (*UsbConfig, error) {
	uc := &UsbConfig{}

	if strings.TrimSpace(cs) == "" {
		return uc, nil
	}

	parts := strings.Split(cs, ",")
	for _, p := range parts {
		kv := strings.SplitN(strings.TrimSpace(p), "=", 2)
		if len(kv) != 2 {
			return nil, einvalUsbConnString("expected key=value; have %s", p)
		}

		k := kv[0]
		v := kv[1]

		switch k {
		case "timeout":
			secs, err := cast.ToFloat64E(v)
			if err != nil || secs < 0 {
				return nil, einvalUsbConnString("Invalid timeout: %s", v)
			}
			uc.IoTimeout = time.Duration(secs * float64(time.Second))

		case "level":
			lvl, err := cast.ToUint8E(v)
			if err != nil {
				return nil, einvalUsbConnString("Invalid level: %s", v)
			}
			uc.Level = lvl

		default:
			return nil, einvalUsbConnString("Unrecognized key: %s", k)
		}
	}

	return uc, nil
}

// Builds a transport configuration that sends the standard Tessel
// commands.
func BuildXportCfg(uc *UsbConfig,
	enum usbdev.Enumerator) *tmusb.XportCfg {

	cfg := tmusb.NewXportCfg()
	cfg.Enumerator = enum
	cfg.Dispatch = xact.DefaultTable()
	if uc.IoTimeout > 0 {
		cfg.IoTimeout = uc.IoTimeout
	}

	return cfg
}
