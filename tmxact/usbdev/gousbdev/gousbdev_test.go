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

package gousbdev

import (
	"fmt"
	"testing"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessel/tesselmgr/tmxact/usbdev"
)

func epDesc(addr gousb.EndpointAddress) gousb.EndpointDesc {
	dir := gousb.EndpointDirectionOut
	if addr&0x80 != 0 {
		dir = gousb.EndpointDirectionIn
	}

	return gousb.EndpointDesc{
		Address:       addr,
		Number:        int(addr & 0x0f),
		Direction:     dir,
		MaxPacketSize: 512,
	}
}

func epMap(addrs ...gousb.EndpointAddress) map[gousb.EndpointAddress]gousb.EndpointDesc {
	m := map[gousb.EndpointAddress]gousb.EndpointDesc{}
	for _, a := range addrs {
		m[a] = epDesc(a)
	}
	return m
}

func addrs(eps []gousb.EndpointDesc) []gousb.EndpointAddress {
	out := make([]gousb.EndpointAddress, 0, len(eps))
	for _, ep := range eps {
		out = append(out, ep.Address)
	}
	return out
}

func TestOrderEndpointsTesselLayout(t *testing.T) {
	// Map iteration order is random; repeat to shake it out.
	for i := 0; i < 20; i++ {
		eps := orderEndpoints(epMap(0x02, 0x82, 0x81))
		require.Equal(t,
			[]gousb.EndpointAddress{0x81, 0x82, 0x02}, addrs(eps))

		log, err := endpointAt(eps, 0, gousb.EndpointDirectionIn)
		require.NoError(t, err)
		assert.Equal(t, gousb.EndpointAddress(0x81), log.Address)

		msgIn, err := endpointAt(eps, 1, gousb.EndpointDirectionIn)
		require.NoError(t, err)
		assert.Equal(t, gousb.EndpointAddress(0x82), msgIn.Address)

		msgOut, err := endpointAt(eps, 2, gousb.EndpointDirectionOut)
		require.NoError(t, err)
		assert.Equal(t, gousb.EndpointAddress(0x02), msgOut.Address)
	}
}

func TestEndpointAtWrongDirection(t *testing.T) {
	eps := orderEndpoints(epMap(0x01, 0x82, 0x03))
	require.Equal(t, []gousb.EndpointAddress{0x01, 0x82, 0x03}, addrs(eps))

	_, err := endpointAt(eps, 0, gousb.EndpointDirectionIn)
	assert.Error(t, err)

	eps = orderEndpoints(epMap(0x81, 0x02, 0x03))
	_, err = endpointAt(eps, 1, gousb.EndpointDirectionIn)
	assert.Error(t, err)

	_, err = endpointAt(eps, 0, gousb.EndpointDirectionOut)
	assert.Error(t, err)
}

func TestEndpointAtOutOfRange(t *testing.T) {
	eps := orderEndpoints(epMap(0x81, 0x82))

	_, err := endpointAt(eps, 2, gousb.EndpointDirectionOut)
	assert.Error(t, err)

	_, err = endpointAt(eps, -1, gousb.EndpointDirectionIn)
	assert.Error(t, err)

	_, err = endpointAt(nil, 0, gousb.EndpointDirectionIn)
	assert.Error(t, err)
}

func TestIsBusy(t *testing.T) {
	assert.True(t, isBusy(gousb.ErrorBusy))
	assert.True(t, isBusy(errors.Wrap(gousb.ErrorBusy, "interface 0")))
	assert.True(t, isBusy(fmt.Errorf("claim: %s", gousb.ErrorBusy.Error())))

	assert.False(t, isBusy(nil))
	assert.False(t, isBusy(gousb.ErrorAccess))
}

func TestClaimErr(t *testing.T) {
	err := claimErr(gousb.ErrorBusy, "interface 0 alt 1")
	assert.True(t, usbdev.IsBusy(err))

	err = claimErr(gousb.ErrorAccess, "interface 0 alt 1")
	assert.False(t, usbdev.IsBusy(err))
	assert.Equal(t, gousb.ErrorAccess, errors.Cause(err))
}
