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

package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessel/tesselmgr/tmxact/tmxutil"
)

func TestLookup(t *testing.T) {
	tbl := Table{
		'U': PostMsg(),
		'K': ControlOut(),
		'V': ControlIn(0),
	}

	e, err := tbl.Lookup('U')
	require.NoError(t, err)
	assert.Equal(t, METHOD_POST_MSG, e.Method)
	assert.False(t, e.IsIn())

	e, err = tbl.Lookup('K')
	require.NoError(t, err)
	assert.Equal(t, METHOD_CONTROL, e.Method)
	assert.Equal(t, uint8(0x40), e.RequestType)
	assert.False(t, e.IsIn())

	e, err = tbl.Lookup('V')
	require.NoError(t, err)
	assert.Equal(t, uint8(0xc0), e.RequestType)
	assert.True(t, e.IsIn())
	assert.Equal(t, DFLT_CONTROL_IN_LEN, e.InLen)

	_, err = tbl.Lookup('Z')
	assert.True(t, tmxutil.IsUnknownTag(err))
}

func TestClone(t *testing.T) {
	tbl := Table{1: PostMsg()}
	c := tbl.Clone()
	tbl[2] = ControlOut()

	_, err := c.Lookup(2)
	assert.Error(t, err)
	assert.Len(t, c, 1)
}

func TestEntryString(t *testing.T) {
	assert.Equal(t, "post_msg", PostMsg().String())
	assert.Equal(t, "control(rtype=0x40)", ControlOut().String())
	assert.Equal(t, "???", Method(9).String())
}
