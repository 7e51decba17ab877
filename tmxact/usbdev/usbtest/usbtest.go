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

// Package usbtest provides an in-memory usbdev backend.  Inbound endpoint
// traffic is scripted with Push/Fail; outbound traffic and control
// transfers are recorded for inspection.
package usbtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tessel/tesselmgr/tmxact/usbdev"
)

type Enumerator struct {
	Descs   []usbdev.DeviceDesc
	EnumErr error

	// Keyed by bus/address.  Opening a descriptor with no entry fails.
	Devices map[[2]int]*Device

	mtx    sync.Mutex
	Opened []usbdev.DeviceDesc
	closes int
}

func NewEnumerator() *Enumerator {
	return &Enumerator{
		Devices: map[[2]int]*Device{},
	}
}

// Adds an attached device and returns its fake.
func (e *Enumerator) Attach(desc usbdev.DeviceDesc) *Device {
	d := NewDevice()
	e.Descs = append(e.Descs, desc)
	e.Devices[[2]int{desc.Bus, desc.Address}] = d
	return d
}

func (e *Enumerator) Enumerate() ([]usbdev.DeviceDesc, error) {
	descs := make([]usbdev.DeviceDesc, len(e.Descs))
	copy(descs, e.Descs)
	return descs, e.EnumErr
}

func (e *Enumerator) Open(desc usbdev.DeviceDesc) (usbdev.Device, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	d := e.Devices[[2]int{desc.Bus, desc.Address}]
	if d == nil {
		return nil, fmt.Errorf("no such device: %s", desc.String())
	}
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	e.Opened = append(e.Opened, desc)
	return d, nil
}

func (e *Enumerator) Close() error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	e.closes++
	return nil
}

func (e *Enumerator) Closes() int {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	return e.closes
}

type ControlReq struct {
	RType   uint8
	Request uint8
	Val     uint16
	Idx     uint16
	Data    []byte
}

type Device struct {
	Serial    string
	SerialErr error
	OpenErr   error
	ClaimErr  error
	CloseErr  error

	// Copied into the buffer of IN control transfers.
	ControlRsp []byte
	ControlErr error

	Intf *Interface

	mtx        sync.Mutex
	timeout    time.Duration
	claims     int
	closes     int
	controls   []ControlReq
	claimedAlt int
}

func NewDevice() *Device {
	return &Device{
		Serial: "TESSEL-0001",
		Intf:   NewInterface(),
	}
}

func (d *Device) SetTimeout(tmo time.Duration) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.timeout = tmo
}

func (d *Device) Timeout() time.Duration {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return d.timeout
}

func (d *Device) SerialNumber() (string, error) {
	return d.Serial, d.SerialErr
}

func (d *Device) Claim(intf int, alt int) (usbdev.Interface, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.ClaimErr != nil {
		return nil, d.ClaimErr
	}
	if intf != 0 {
		return nil, fmt.Errorf("no interface %d", intf)
	}

	d.claims++
	d.claimedAlt = alt
	return d.Intf, nil
}

func (d *Device) ClaimedAlt() int {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return d.claimedAlt
}

func (d *Device) Claims() int {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return d.claims
}

func (d *Device) Control(rType uint8, request uint8, val uint16, idx uint16,
	data []byte) (int, error) {

	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.ControlErr != nil {
		return 0, d.ControlErr
	}

	req := ControlReq{
		RType:   rType,
		Request: request,
		Val:     val,
		Idx:     idx,
	}

	n := len(data)
	if rType&usbdev.CONTROL_DIR_MASK == usbdev.CONTROL_IN {
		n = copy(data, d.ControlRsp)
	} else {
		req.Data = append([]byte(nil), data...)
	}
	d.controls = append(d.controls, req)

	return n, nil
}

func (d *Device) Controls() []ControlReq {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return append([]ControlReq(nil), d.controls...)
}

func (d *Device) Close() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.closes++
	return d.CloseErr
}

func (d *Device) Closes() int {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return d.closes
}

type Interface struct {
	Eps        []interface{}
	ReleaseErr error

	mtx      sync.Mutex
	releases int
}

// Builds the three-endpoint Tessel layout.
func NewInterface() *Interface {
	return &Interface{
		Eps: []interface{}{
			NewInEndpoint(),
			NewInEndpoint(),
			NewOutEndpoint(64),
		},
	}
}

func (i *Interface) Log() *InEndpoint {
	return i.Eps[0].(*InEndpoint)
}

func (i *Interface) MsgIn() *InEndpoint {
	return i.Eps[1].(*InEndpoint)
}

func (i *Interface) MsgOut() *OutEndpoint {
	return i.Eps[2].(*OutEndpoint)
}

func (i *Interface) InEndpoint(idx int) (usbdev.InEndpoint, error) {
	if idx < 0 || idx >= len(i.Eps) {
		return nil, fmt.Errorf("no endpoint %d", idx)
	}
	ep, ok := i.Eps[idx].(*InEndpoint)
	if !ok {
		return nil, fmt.Errorf("endpoint %d is not IN", idx)
	}
	return ep, nil
}

func (i *Interface) OutEndpoint(idx int) (usbdev.OutEndpoint, error) {
	if idx < 0 || idx >= len(i.Eps) {
		return nil, fmt.Errorf("no endpoint %d", idx)
	}
	ep, ok := i.Eps[idx].(*OutEndpoint)
	if !ok {
		return nil, fmt.Errorf("endpoint %d is not OUT", idx)
	}
	return ep, nil
}

func (i *Interface) Release() error {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	i.releases++
	return i.ReleaseErr
}

func (i *Interface) Releases() int {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	return i.releases
}

type inEvent struct {
	data []byte
	err  error
}

type InEndpoint struct {
	ch chan inEvent
}

func NewInEndpoint() *InEndpoint {
	return &InEndpoint{
		ch: make(chan inEvent, 64),
	}
}

// Queues one chunk for the next read.
func (ep *InEndpoint) Push(chunk []byte) {
	ep.ch <- inEvent{data: chunk}
}

// Makes the next read fail with err.
func (ep *InEndpoint) Fail(err error) {
	ep.ch <- inEvent{err: err}
}

func (ep *InEndpoint) ReadContext(ctx context.Context, buf []byte) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case ev := <-ep.ch:
		if ev.err != nil {
			return 0, ev.err
		}
		if len(ev.data) > len(buf) {
			return 0, fmt.Errorf("overflow: chunk %d > buffer %d",
				len(ev.data), len(buf))
		}
		return copy(buf, ev.data), nil
	}
}

type OutEndpoint struct {
	WriteErr error

	// When set, writes block until the context is cancelled.
	Stall bool

	maxPkt int
	mtx    sync.Mutex
	writes [][]byte
}

func NewOutEndpoint(maxPkt int) *OutEndpoint {
	return &OutEndpoint{
		maxPkt: maxPkt,
	}
}

func (ep *OutEndpoint) MaxPacketSize() int {
	return ep.maxPkt
}

func (ep *OutEndpoint) WriteContext(ctx context.Context,
	buf []byte) (int, error) {

	if ep.Stall {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if ep.WriteErr != nil {
		return 0, ep.WriteErr
	}

	ep.mtx.Lock()
	ep.writes = append(ep.writes, append([]byte{}, buf...))
	ep.mtx.Unlock()

	return len(buf), nil
}

// Returns a copy of every write so far, one element per transfer.  A
// zero-length packet appears as an empty element.
func (ep *OutEndpoint) Writes() [][]byte {
	ep.mtx.Lock()
	defer ep.mtx.Unlock()

	return append([][]byte(nil), ep.writes...)
}
