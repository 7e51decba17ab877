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

	"github.com/tessel/tesselmgr/tesselmgr/tmutil"
	"github.com/tessel/tesselmgr/tmxact/tmxutil"
)

var TesselmgrLogLevel log.Level

func Commands() *cobra.Command {
	logLevelStr := ""
	tmCmd := &cobra.Command{
		Use:   tmutil.ToolInfo.ExeName,
		Short: tmutil.ToolInfo.ShortName + " helps you manage a Tessel over USB",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			TesselmgrLogLevel, err = log.ParseLevel(logLevelStr)
			if err != nil {
				tmUsage(nil, util.ChildNewtError(err))
			}

			tmxutil.SetLogLevel(TesselmgrLogLevel)

			tmutil.TimeoutSet = cmd.Flags().Changed("timeout")
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	tmCmd.PersistentFlags().StringVarP(&tmutil.ConnProfile, "conn", "c", "",
		"connection profile to use")

	tmCmd.PersistentFlags().Float64VarP(&tmutil.Timeout, "timeout", "t", 10.0,
		"USB I/O timeout in seconds (partial seconds allowed)")

	tmCmd.PersistentFlags().StringVarP(&logLevelStr, "loglevel", "l", "info",
		"log level to use")

	tmCmd.PersistentFlags().StringVar(&tmutil.ConnString, "connstring", "",
		"Connection key-value pairs to use instead of using the profile's "+
			"connstring")

	versCmd := &cobra.Command{
		Use:     "version",
		Short:   "Display the " + tmutil.ToolInfo.ShortName + " version number",
		Example: "  " + tmutil.ToolInfo.ExeName + " version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n",
				tmutil.ToolInfo.LongName,
				tmutil.ToolInfo.VersionString)
		},
	}
	tmCmd.AddCommand(versCmd)

	tmCmd.AddCommand(listCmd())
	tmCmd.AddCommand(logCmd())
	tmCmd.AddCommand(runCmd())
	tmCmd.AddCommand(flashCmd())
	tmCmd.AddCommand(stopCmd())
	tmCmd.AddCommand(connProfileCmd())

	return tmCmd
}
