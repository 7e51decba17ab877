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

// Package gousbdev implements usbdev over libusb via gousb.  It is the only
// package that needs cgo; everything above it works against the usbdev
// interfaces.
package gousbdev

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tessel/tesselmgr/tmxact/usbdev"
)

var _ usbdev.Enumerator = (*Enumerator)(nil)
var _ usbdev.Device = (*device)(nil)
var _ usbdev.Interface = (*iface)(nil)

// Close it once every device opened through it has been closed.
type Enumerator struct {
	ctx *gousb.Context
}

func NewEnumerator() *Enumerator {
	return &Enumerator{
		ctx: gousb.NewContext(),
	}
}

func (e *Enumerator) Close() error {
	return e.ctx.Close()
}

func descFromGousb(d *gousb.DeviceDesc) usbdev.DeviceDesc {
	return usbdev.DeviceDesc{
		Bus:     d.Bus,
		Address: d.Address,
		Vendor:  uint16(d.Vendor),
		Product: uint16(d.Product),
		Version: uint16(d.Device),
	}
}

func (e *Enumerator) Enumerate() ([]usbdev.DeviceDesc, error) {
	var descs []usbdev.DeviceDesc

	// The opener never accepts a device, so nothing is opened; it is only
	// used to walk the descriptors.
	_, err := e.ctx.OpenDevices(func(d *gousb.DeviceDesc) bool {
		descs = append(descs, descFromGousb(d))
		return false
	})

	return descs, err
}

func (e *Enumerator) Open(desc usbdev.DeviceDesc) (usbdev.Device, error) {
	devs, err := e.ctx.OpenDevices(func(d *gousb.DeviceDesc) bool {
		return d.Bus == desc.Bus && d.Address == desc.Address
	})
	if len(devs) == 0 {
		if err == nil {
			err = errors.Errorf("device %s disappeared", desc.String())
		}
		return nil, errors.Wrapf(err, "open %s", desc.String())
	}
	if err != nil {
		log.Debugf("Ignoring enumeration error while opening %s: %s",
			desc.String(), err.Error())
	}

	for _, extra := range devs[1:] {
		extra.Close()
	}

	return &device{dev: devs[0]}, nil
}

// libusb errors lose their type when gousb formats them into a wider
// message, so fall back to matching the text.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Cause(err) == gousb.ErrorBusy {
		return true
	}
	return strings.Contains(err.Error(), gousb.ErrorBusy.Error())
}

// Converts a libusb busy condition into usbdev.ErrBusy.
func claimErr(err error, what string) error {
	if isBusy(err) {
		return errors.Wrapf(usbdev.ErrBusy, "%s: %s", what, err.Error())
	}
	return errors.Wrapf(err, "claim %s", what)
}

type device struct {
	dev *gousb.Device
}

func (d *device) SetTimeout(tmo time.Duration) {
	d.dev.ControlTimeout = tmo
}

func (d *device) SerialNumber() (string, error) {
	return d.dev.SerialNumber()
}

func (d *device) Claim(intf int, alt int) (usbdev.Interface, error) {
	if err := d.dev.SetAutoDetach(true); err != nil {
		log.Debugf("Auto-detach unsupported: %s", err.Error())
	}

	cfgNum, err := d.dev.ActiveConfigNum()
	if err != nil {
		return nil, errors.Wrap(err, "read active configuration")
	}

	cfg, err := d.dev.Config(cfgNum)
	if err != nil {
		return nil, claimErr(err, fmt.Sprintf("configuration %d", cfgNum))
	}

	i, err := cfg.Interface(intf, alt)
	if err != nil {
		cfg.Close()
		return nil, claimErr(err,
			fmt.Sprintf("interface %d alt %d", intf, alt))
	}

	return &iface{
		cfg:  cfg,
		intf: i,
		eps:  orderEndpoints(i.Setting.Endpoints),
	}, nil
}

func (d *device) Control(rType uint8, request uint8, val uint16,
	idx uint16, data []byte) (int, error) {

	return d.dev.Control(rType, request, val, idx, data)
}

func (d *device) Close() error {
	return d.dev.Close()
}

// gousb keys endpoints by address, which loses the descriptor order.
// Order by endpoint number with IN before OUT; for the Tessel layout
// (0x81, 0x82, 0x02) this yields log, messages-in, messages-out.
func orderEndpoints(
	m map[gousb.EndpointAddress]gousb.EndpointDesc) []gousb.EndpointDesc {

	eps := make([]gousb.EndpointDesc, 0, len(m))
	for _, ep := range m {
		eps = append(eps, ep)
	}
	sort.Slice(eps, func(i, j int) bool {
		if eps[i].Number != eps[j].Number {
			return eps[i].Number < eps[j].Number
		}
		return eps[i].Direction == gousb.EndpointDirectionIn &&
			eps[j].Direction != gousb.EndpointDirectionIn
	})

	return eps
}

// Picks the descriptor at idx and checks that it points the expected way.
func endpointAt(eps []gousb.EndpointDesc, idx int,
	dir gousb.EndpointDirection) (gousb.EndpointDesc, error) {

	if idx < 0 || idx >= len(eps) {
		return gousb.EndpointDesc{}, errors.Errorf(
			"endpoint index %d out of range; interface has %d endpoints",
			idx, len(eps))
	}

	desc := eps[idx]
	if desc.Direction != dir {
		return gousb.EndpointDesc{}, errors.Errorf(
			"endpoint %d (%s) is not an %s endpoint",
			idx, desc.Address.String(), dirName(dir))
	}

	return desc, nil
}

func dirName(dir gousb.EndpointDirection) string {
	if dir == gousb.EndpointDirectionIn {
		return "IN"
	}
	return "OUT"
}

type iface struct {
	cfg  *gousb.Config
	intf *gousb.Interface

	// Endpoint descriptors in descriptor order.
	eps []gousb.EndpointDesc
}

func (i *iface) InEndpoint(idx int) (usbdev.InEndpoint, error) {
	desc, err := endpointAt(i.eps, idx, gousb.EndpointDirectionIn)
	if err != nil {
		return nil, err
	}

	ep, err := i.intf.InEndpoint(desc.Number)
	if err != nil {
		return nil, err
	}

	return ep, nil
}

type outEndpoint struct {
	*gousb.OutEndpoint
}

func (ep outEndpoint) MaxPacketSize() int {
	return ep.Desc.MaxPacketSize
}

func (i *iface) OutEndpoint(idx int) (usbdev.OutEndpoint, error) {
	desc, err := endpointAt(i.eps, idx, gousb.EndpointDirectionOut)
	if err != nil {
		return nil, err
	}

	ep, err := i.intf.OutEndpoint(desc.Number)
	if err != nil {
		return nil, err
	}

	return outEndpoint{ep}, nil
}

func (i *iface) Release() error {
	i.intf.Close()
	return i.cfg.Close()
}
