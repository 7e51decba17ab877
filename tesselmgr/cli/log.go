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
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"github.com/tessel/tesselmgr/tmxact/tmusb"
	"github.com/tessel/tesselmgr/tmxact/tmxutil"
	"github.com/tessel/tesselmgr/tmxact/xact"
)

// Prints device log records at or above minLevel until the session ends.
// Returns nil if the transport was closed, or the error that killed it.
func streamLogs(x *tmusb.UsbXport, l *tmusb.Listener, minLevel uint8) error {
	for {
		select {
		case ev := <-l.DebugChan:
			if ev.Level >= minLevel {
				fmt.Printf("%s\n", ev.Text)
			}

		case ev := <-l.MsgChan:
			log.Debugf("Unhandled message from Tessel: tag=%s len=%d",
				xact.TagName(ev.Tag), len(ev.Payload))

		case err := <-l.ErrChan:
			return err

		case <-x.Done():
			return x.Err()
		}
	}
}

// Stream failures can only be cleared by reconnecting the device; say so.
func sessionErr(err error) error {
	if tmxutil.IsFatal(err) {
		return util.FmtNewtError("Lost the Tessel (%s); unplug and "+
			"reconnect it, then try again", err.Error())
	}
	return util.ChildNewtError(err)
}

// Minimum level for printed records: the --level flag if given, otherwise
// the connection's configured level.
func logLevelFor(cmd *cobra.Command) (uint8, error) {
	if cmd.Flags().Changed("level") {
		return cmd.Flags().GetUint8("level")
	}

	uc, err := getUsbConfig()
	if err != nil {
		return 0, err
	}
	return uc.Level, nil
}

func openAndListen(cmd *cobra.Command) (*tmusb.UsbXport, *tmusb.Listener,
	uint8) {

	minLevel, err := logLevelFor(cmd)
	if err != nil {
		tmUsage(cmd, err)
	}

	l := tmusb.NewListener()
	x, err := GetXport(l)
	if err != nil {
		tmUsage(nil, err)
	}

	return x, l, minLevel
}

func logRunCmd(cmd *cobra.Command, args []string) {
	x, l, minLevel := openAndListen(cmd)
	defer x.RemoveListener(l)

	if err := streamLogs(x, l, minLevel); err != nil {
		tmUsage(nil, sessionErr(err))
	}
}

func addLevelFlag(cmd *cobra.Command) {
	cmd.Flags().Uint8("level", 0,
		"only print device log records at or above this level")
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Stream log output from the attached Tessel",
		Run:   logRunCmd,
	}
	addLevelFlag(cmd)

	return cmd
}
