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

package tmusb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tessel/tesselmgr/tmxact/dispatch"
	"github.com/tessel/tesselmgr/tmxact/frame"
	"github.com/tessel/tesselmgr/tmxact/locate"
	"github.com/tessel/tesselmgr/tmxact/task"
	"github.com/tessel/tesselmgr/tmxact/tmxutil"
	"github.com/tessel/tesselmgr/tmxact/usbdev"
)

type XportState int32

const (
	XPORT_STATE_IDLE XportState = iota
	XPORT_STATE_OPENING
	XPORT_STATE_CLAIMING_INTF
	XPORT_STATE_INITIALIZING_EPS
	XPORT_STATE_READY
	XPORT_STATE_CLOSING
	XPORT_STATE_CLOSED
)

var xportStateNameMap = map[XportState]string{
	XPORT_STATE_IDLE:             "idle",
	XPORT_STATE_OPENING:          "opening",
	XPORT_STATE_CLAIMING_INTF:    "claiming_interface",
	XPORT_STATE_INITIALIZING_EPS: "initializing_endpoints",
	XPORT_STATE_READY:            "ready",
	XPORT_STATE_CLOSING:          "closing",
	XPORT_STATE_CLOSED:           "closed",
}

func (s XportState) String() string {
	name, ok := xportStateNameMap[s]
	if !ok {
		return "???"
	}
	return name
}

const (
	TESSEL_INTF        = 0
	TESSEL_ALT_SETTING = 1

	EP_IDX_LOG     = 0
	EP_IDX_MSG_IN  = 1
	EP_IDX_MSG_OUT = 2

	DFLT_IO_TIMEOUT = 10 * time.Second

	// Level of debug events generated by the transport rather than the
	// device.
	HOST_LOG_LEVEL uint8 = 0
)

type XportCfg struct {
	// USB backend.  Required.
	Enumerator usbdev.Enumerator

	// Delivery method for each tag the caller intends to send.
	Dispatch dispatch.Table

	// Applied to control transfers and descriptor reads.
	IoTimeout time.Duration

	// Number of sends that may wait behind the one in progress.
	TxQueueDepth int
}

func NewXportCfg() *XportCfg {
	return &XportCfg{
		Dispatch:     dispatch.Table{},
		IoTimeout:    DFLT_IO_TIMEOUT,
		TxQueueDepth: 16,
	}
}

type rspWaiter struct {
	msgCh chan MsgEvent
	errCh chan error
}

// One session with one Tessel.  Init claims the device; Close releases it.
// An UsbXport is not reusable after Close.
type UsbXport struct {
	cfg XportCfg
	id  string
	log *log.Entry

	state XportState

	// Serializes Init and Close.
	lifeMtx sync.Mutex

	desc     usbdev.DeviceDesc
	serial   string
	dev      usbdev.Device
	intf     usbdev.Interface
	logEp    usbdev.InEndpoint
	msgInEp  usbdev.InEndpoint
	msgOutEp usbdev.OutEndpoint
	reasm    *frame.Reassembler

	// Cancelled on close or fatal error; aborts every transfer in flight.
	ctx    context.Context
	cancel context.CancelFunc

	txq *task.Queue
	wg  sync.WaitGroup

	// Protects the fields below.
	mtx       sync.Mutex
	listeners map[*Listener]struct{}
	pending   map[uint32]struct{}
	waiters   map[uint32]*rspWaiter
	fatalErr  error

	doneCh   chan struct{}
	doneOnce sync.Once
}

func NewUsbXport(cfg *XportCfg) *UsbXport {
	id := uuid.New().String()[:8]

	c := *cfg
	c.Dispatch = cfg.Dispatch.Clone()
	if c.IoTimeout <= 0 {
		c.IoTimeout = DFLT_IO_TIMEOUT
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &UsbXport{
		cfg:    c,
		id:     id,
		log:    log.WithField("sesn", id),
		ctx:    ctx,
		cancel: cancel,

		listeners: map[*Listener]struct{}{},
		pending:   map[uint32]struct{}{},
		waiters:   map[uint32]*rspWaiter{},
		doneCh:    make(chan struct{}),
	}
}

func (ux *UsbXport) getState() XportState {
	val := atomic.LoadInt32((*int32)(&ux.state))
	return XportState(val)
}

func (ux *UsbXport) setState(toState XportState) {
	from := ux.getState()
	atomic.StoreInt32((*int32)(&ux.state), int32(toState))
	ux.log.Debugf("State %s -> %s", from, toState)
}

func (ux *UsbXport) transitionState(fromState XportState,
	toState XportState) error {

	swapped := atomic.CompareAndSwapInt32((*int32)(&ux.state),
		int32(fromState), int32(toState))
	if !swapped {
		return fmt.Errorf("can't move transport to %s; state=%s want=%s",
			toState, ux.getState(), fromState)
	}

	return nil
}

func (ux *UsbXport) State() XportState {
	return ux.getState()
}

func (ux *UsbXport) Id() string {
	return ux.id
}

// Serial number read during Init; empty before.
func (ux *UsbXport) Serial() string {
	ux.lifeMtx.Lock()
	defer ux.lifeMtx.Unlock()

	return ux.serial
}

func (ux *UsbXport) Desc() usbdev.DeviceDesc {
	ux.lifeMtx.Lock()
	defer ux.lifeMtx.Unlock()

	return ux.desc
}

// Returns the error that ended the session's streams, or nil.
func (ux *UsbXport) Err() error {
	ux.mtx.Lock()
	defer ux.mtx.Unlock()

	return ux.fatalErr
}

// Closed when the transport closes or its streams fail.
func (ux *UsbXport) Done() <-chan struct{} {
	return ux.doneCh
}

func (ux *UsbXport) markDone() {
	ux.doneOnce.Do(func() {
		close(ux.doneCh)
	})
}

// Finds the Tessel, claims its interface and starts streaming.  On failure
// nothing stays claimed or open and the transport is closed.  Calling Init
// on a ready transport returns an AlreadyError.
func (ux *UsbXport) Init() error {
	ux.lifeMtx.Lock()
	defer ux.lifeMtx.Unlock()

	if ux.getState() == XPORT_STATE_READY {
		return tmxutil.NewAlreadyError("transport already open")
	}

	if err := ux.transitionState(XPORT_STATE_IDLE,
		XPORT_STATE_OPENING); err != nil {

		return err
	}

	if err := ux.init(); err != nil {
		ux.log.Debugf("Init failed: %s", err.Error())
		ux.cancel()
		ux.setState(XPORT_STATE_CLOSED)
		ux.markDone()
		return err
	}

	return nil
}

func (ux *UsbXport) init() (err error) {
	if ux.cfg.Enumerator == nil {
		return errors.New("transport has no USB enumerator")
	}

	desc, err := locate.NewLocator(ux.cfg.Enumerator).FirstCandidate()
	if err != nil {
		return err
	}
	ux.desc = desc
	ux.log.Debugf("Opening %s", desc.String())

	dev, err := ux.cfg.Enumerator.Open(desc)
	if err != nil {
		return errors.Wrapf(err, "open Tessel %s", desc.String())
	}
	defer func() {
		if err != nil {
			if cerr := dev.Close(); cerr != nil {
				ux.log.Debugf("Close after failed init: %s", cerr.Error())
			}
		}
	}()
	dev.SetTimeout(ux.cfg.IoTimeout)

	ux.setState(XPORT_STATE_CLAIMING_INTF)

	var serial string
	var intf usbdev.Interface
	var serialErr, claimErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		serial, serialErr = dev.SerialNumber()
	}()
	go func() {
		defer wg.Done()
		intf, claimErr = dev.Claim(TESSEL_INTF, TESSEL_ALT_SETTING)
	}()
	wg.Wait()

	if claimErr != nil {
		if usbdev.IsBusy(claimErr) {
			return tmxutil.NewDeviceBusyError(fmt.Sprintf(
				"Tessel %s is in use by another process (%s)",
				desc.String(), claimErr.Error()))
		}
		return errors.Wrapf(claimErr, "claim interface %d", TESSEL_INTF)
	}
	defer func() {
		if err != nil {
			if rerr := intf.Release(); rerr != nil {
				ux.log.Debugf("Release after failed init: %s", rerr.Error())
			}
		}
	}()

	if serialErr != nil {
		return errors.Wrap(serialErr, "read serial number")
	}

	ux.setState(XPORT_STATE_INITIALIZING_EPS)

	logEp, err := intf.InEndpoint(EP_IDX_LOG)
	if err != nil {
		return errors.Wrap(err, "log endpoint")
	}
	msgInEp, err := intf.InEndpoint(EP_IDX_MSG_IN)
	if err != nil {
		return errors.Wrap(err, "messages-in endpoint")
	}
	msgOutEp, err := intf.OutEndpoint(EP_IDX_MSG_OUT)
	if err != nil {
		return errors.Wrap(err, "messages-out endpoint")
	}

	txq := task.NewQueue("tx-" + ux.id)
	if err := txq.Start(ux.cfg.TxQueueDepth); err != nil {
		return err
	}

	ux.serial = serial
	ux.dev = dev
	ux.intf = intf
	ux.logEp = logEp
	ux.msgInEp = msgInEp
	ux.msgOutEp = msgOutEp
	ux.reasm = frame.NewReassembler()
	ux.txq = txq
	ux.log = ux.log.WithField("serial", serial)

	ux.wg.Add(2)
	go ux.rxLoop("log", ux.logEp, ux.rxLogChunk)
	go ux.rxLoop("messages", ux.msgInEp, ux.rxMsgChunk)

	ux.emitDebug(DebugEvent{
		Level: HOST_LOG_LEVEL,
		Text:  fmt.Sprintf("Connected to Tessel %s", serial),
	})
	ux.setState(XPORT_STATE_READY)

	return nil
}

// Releases the interface and closes the device.  Safe to call more than
// once and in any state; never fails.  Transfers in flight are aborted and
// queued sends fail with a SesnClosedError.
func (ux *UsbXport) Close() {
	ux.lifeMtx.Lock()
	defer ux.lifeMtx.Unlock()

	if ux.intf == nil {
		ux.cancel()
		ux.setState(XPORT_STATE_CLOSED)
		ux.markDone()
		return
	}

	ux.setState(XPORT_STATE_CLOSING)

	closedErr := tmxutil.NewSesnClosedError("transport closed")

	ux.cancel()
	if err := ux.txq.Stop(closedErr); err != nil {
		ux.log.Debugf("Stop tx queue: %s", err.Error())
	}
	ux.wg.Wait()

	ux.failWaiters(closedErr)

	if err := ux.intf.Release(); err != nil {
		ux.log.Debugf("Release interface: %s", err.Error())
	}
	if err := ux.dev.Close(); err != nil {
		ux.log.Debugf("Close device: %s", err.Error())
	}
	ux.intf = nil
	ux.dev = nil

	ux.setState(XPORT_STATE_CLOSED)
	ux.markDone()
}

// Records the first fatal stream error and winds the session down.  The
// device stays claimed until Close.
func (ux *UsbXport) fail(err error) {
	ux.mtx.Lock()
	if ux.fatalErr != nil {
		ux.mtx.Unlock()
		return
	}
	ux.fatalErr = err
	ux.mtx.Unlock()

	ux.log.Errorf("Tessel session failed: %s", err.Error())

	ux.cancel()

	// Sends still queued fail with the same error.
	if serr := ux.txq.Stop(err); serr != nil {
		ux.log.Debugf("Stop tx queue: %s", serr.Error())
	}

	ux.emitErr(err)
	ux.failWaiters(err)
	ux.markDone()
}

func (ux *UsbXport) failWaiters(err error) {
	ux.mtx.Lock()
	waiters := ux.waiters
	ux.waiters = map[uint32]*rspWaiter{}
	ux.mtx.Unlock()

	for _, w := range waiters {
		w.errCh <- err
	}
}
