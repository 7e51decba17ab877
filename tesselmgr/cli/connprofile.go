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
	"strings"

	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"github.com/tessel/tesselmgr/tesselmgr/config"
	"github.com/tessel/tesselmgr/tesselmgr/tmutil"
)

// Builds a profile from "<name> [type=usb] [connstring=...]".  The type
// defaults to usb, the only transport.
func parseConnProfileArgs(args []string) (*config.ConnProfile, error) {
	if len(args) == 0 {
		return nil, util.NewNewtError("Need connection profile name")
	}

	cp := config.NewConnProfile()
	cp.Name = args[0]
	cp.Type = config.CONN_TYPE_USB

	for _, vdef := range args[1:] {
		s := strings.SplitN(vdef, "=", 2)
		if len(s) != 2 {
			return nil, util.NewNewtError("Expected varname=value; have " +
				vdef)
		}

		switch s[0] {
		case "type":
			var err error
			cp.Type, err = config.ConnTypeFromString(s[1])
			if err != nil {
				return nil, err
			}
		case "connstring":
			cp.ConnString = s[1]
		default:
			return nil, util.NewNewtError("Unknown variable " + s[0])
		}
	}

	return cp, nil
}

func connProfileAddCmd(cmd *cobra.Command, args []string) {
	cp, err := parseConnProfileArgs(args)
	if err != nil {
		tmUsage(cmd, err)
	}

	if err := config.GlobalConnProfileMgr().AddConnProfile(cp); err != nil {
		tmUsage(cmd, err)
	}

	fmt.Printf("Connection profile %s successfully added\n", cp.Name)
}

func connProfileShowCmd(cmd *cobra.Command, args []string) {
	cpm := config.GlobalConnProfileMgr()

	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	found := false
	for _, cp := range cpm.GetConnProfileList() {
		if name != "" && cp.Name != name {
			continue
		}

		if !found {
			found = true
			fmt.Printf("Connection profiles: \n")
		}
		fmt.Printf("  %s: type=%s, connstring='%s'\n",
			cp.Name, config.ConnTypeToString(cp.Type), cp.ConnString)
	}

	if !found {
		if name == "" {
			fmt.Printf("No connection profiles found!\n")
		} else {
			fmt.Printf("No connection profiles found matching %s\n", name)
		}
	}
}

func connProfileDelCmd(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		tmUsage(cmd, util.NewNewtError("Need connection profile name"))
	}

	name := args[0]
	if err := config.GlobalConnProfileMgr().DeleteConnProfile(name); err != nil {
		tmUsage(cmd, err)
	}

	fmt.Printf("Connection profile %s successfully deleted.\n", name)
}

func connProfileCmd() *cobra.Command {
	cpCmd := &cobra.Command{
		Use:   "conn",
		Short: "Manage " + tmutil.ToolInfo.ShortName + " connection profiles",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	addCmd := &cobra.Command{
		Use:     "add <conn_profile> [type=usb] [connstring=<k=v,...>]",
		Short:   "Add a " + tmutil.ToolInfo.ShortName + " connection profile",
		Example: "  " + tmutil.ToolInfo.ExeName + " conn add lab connstring=timeout=5,level=1",
		Run:     connProfileAddCmd,
	}
	cpCmd.AddCommand(addCmd)

	deleCmd := &cobra.Command{
		Use:   "delete <conn_profile>",
		Short: "Delete a " + tmutil.ToolInfo.ShortName + " connection profile",
		Run:   connProfileDelCmd,
	}
	cpCmd.AddCommand(deleCmd)

	connShowHelpText := "Show information for the conn_profile connection "
	connShowHelpText += "profile or for all\nconnection profiles "
	connShowHelpText += "if conn_profile is not specified.\n"

	showCmd := &cobra.Command{
		Use:   "show [conn_profile]",
		Short: "Show " + tmutil.ToolInfo.ShortName + " connection profiles",
		Long:  connShowHelpText,
		Run:   connProfileShowCmd,
	}
	cpCmd.AddCommand(showCmd)

	return cpCmd
}
