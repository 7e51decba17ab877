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

	"github.com/fatih/structs"
	"github.com/spf13/cobra"
	"github.com/ugorji/go/codec"

	"mynewt.apache.org/newt/util"

	"github.com/tessel/tesselmgr/tmxact/locate"
	"github.com/tessel/tesselmgr/tmxact/usbdev"
)

type candidate struct {
	Bus      int    `structs:"bus" json:"bus"`
	Address  int    `structs:"address" json:"address"`
	Vendor   string `structs:"vendor" json:"vendor"`
	Product  string `structs:"product" json:"product"`
	Firmware string `structs:"firmware" json:"firmware"`
}

func newCandidate(d usbdev.DeviceDesc) candidate {
	return candidate{
		Bus:      d.Bus,
		Address:  d.Address,
		Vendor:   fmt.Sprintf("%04x", d.Vendor),
		Product:  fmt.Sprintf("%04x", d.Product),
		Firmware: fmt.Sprintf("%x.%02x", d.Version>>8, d.Version&0xff),
	}
}

// One line per device: "bus=1 address=5 vendor=1d50 ...".
func formatCandidate(c candidate) string {
	s := ""
	for i, f := range structs.Fields(c) {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%v", f.Tag("structs"), f.Value())
	}
	return s
}

func encodeCandidatesJson(cands []candidate) ([]byte, error) {
	h := new(codec.JsonHandle)
	h.Indent = 4

	var b []byte
	if err := codec.NewEncoderBytes(&b, h).Encode(cands); err != nil {
		return nil, err
	}
	return b, nil
}

func listRunCmd(cmd *cobra.Command, args []string) {
	asJson, _ := cmd.Flags().GetBool("json")

	descs := locate.NewLocator(getEnumerator()).ListCandidates()
	cands := make([]candidate, 0, len(descs))
	for _, d := range descs {
		cands = append(cands, newCandidate(d))
	}

	if asJson {
		b, err := encodeCandidatesJson(cands)
		if err != nil {
			tmUsage(nil, util.ChildNewtError(err))
		}
		fmt.Printf("%s\n", b)
		return
	}

	if len(cands) == 0 {
		fmt.Printf("No Tessels found\n")
		return
	}
	for _, c := range cands {
		fmt.Printf("%s\n", formatCandidate(c))
	}
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List attached Tessels running application firmware",
		Run:   listRunCmd,
	}
	cmd.Flags().Bool("json", false, "print the list as JSON")

	return cmd
}
