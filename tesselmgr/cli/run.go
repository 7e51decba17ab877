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
	"os"

	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"github.com/tessel/tesselmgr/tmxact/xact"
)

func readBundle(cmd *cobra.Command, args []string) []byte {
	if len(args) < 1 {
		tmUsage(cmd, util.NewNewtError("Need script bundle filename"))
	}

	bundle, err := os.ReadFile(args[0])
	if err != nil {
		tmUsage(nil, util.ChildNewtError(err))
	}

	return bundle
}

func runRunCmd(cmd *cobra.Command, args []string) {
	bundle := readBundle(cmd, args)

	// Listen before sending so early output is not lost.
	x, l, minLevel := openAndListen(cmd)
	defer x.RemoveListener(l)

	if err := xact.RunScript(x, bundle); err != nil {
		tmUsage(nil, util.ChildNewtError(err))
	}

	if err := streamLogs(x, l, minLevel); err != nil {
		tmUsage(nil, sessionErr(err))
	}
}

func flashRunCmd(cmd *cobra.Command, args []string) {
	bundle := readBundle(cmd, args)

	x, err := GetXport()
	if err != nil {
		tmUsage(nil, err)
	}

	if err := xact.FlashScript(x, bundle); err != nil {
		tmUsage(nil, util.ChildNewtError(err))
	}

	fmt.Printf("Wrote %d bytes to flash\n", len(bundle))
}

func stopRunCmd(cmd *cobra.Command, args []string) {
	x, err := GetXport()
	if err != nil {
		tmUsage(nil, err)
	}

	if err := xact.Terminate(x); err != nil {
		tmUsage(nil, util.ChildNewtError(err))
	}

	fmt.Printf("Done\n")
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run <bundle>",
		Short:   "Run a script bundle and stream its output",
		Example: "  tesselmgr run build/app.tar",
		Run:     runRunCmd,
	}
	addLevelFlag(cmd)

	return cmd
}

func flashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flash <bundle>",
		Short: "Write a script bundle to flash; it runs on every boot",
		Run:   flashRunCmd,
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running script",
		Run:   stopRunCmd,
	}
}
