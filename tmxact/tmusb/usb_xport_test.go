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
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessel/tesselmgr/tmxact/dispatch"
	"github.com/tessel/tesselmgr/tmxact/frame"
	"github.com/tessel/tesselmgr/tmxact/locate"
	"github.com/tessel/tesselmgr/tmxact/tmxutil"
	"github.com/tessel/tesselmgr/tmxact/usbdev"
	"github.com/tessel/tesselmgr/tmxact/usbdev/usbtest"
)

const (
	tagRun   uint32 = 'U'
	tagFlash uint32 = 'P'
	tagStop  uint32 = 'K'
	tagVers  uint32 = 'V'
)

const waitTmo = 2 * time.Second

var tesselDesc = usbdev.DeviceDesc{
	Bus:     1,
	Address: 5,
	Vendor:  locate.TESSEL_VID,
	Product: locate.TESSEL_PID,
	Version: 0x0100,
}

func testTable() dispatch.Table {
	return dispatch.Table{
		tagRun:   dispatch.PostMsg(),
		tagFlash: dispatch.PostMsg(),
		tagStop:  dispatch.ControlOut(),
		tagVers:  dispatch.ControlIn(8),
	}
}

func newTestXport(enum *usbtest.Enumerator) *UsbXport {
	cfg := NewXportCfg()
	cfg.Enumerator = enum
	cfg.Dispatch = testTable()
	return NewUsbXport(cfg)
}

// Builds a transport over one attached fake Tessel and initializes it.
func readyXport(t *testing.T) (*UsbXport, *usbtest.Device, *Listener) {
	enum := usbtest.NewEnumerator()
	dev := enum.Attach(tesselDesc)

	ux := newTestXport(enum)
	l := NewListener()
	ux.AddListener(l)

	require.NoError(t, ux.Init())
	t.Cleanup(ux.Close)

	// Connection notice.
	ev := recvDebug(t, l)
	assert.Equal(t, HOST_LOG_LEVEL, ev.Level)
	assert.Contains(t, ev.Text, dev.Serial)

	return ux, dev, l
}

func recvDebug(t *testing.T, l *Listener) DebugEvent {
	select {
	case ev := <-l.DebugChan:
		return ev
	case <-time.After(waitTmo):
		t.Fatalf("timeout waiting for debug event")
		return DebugEvent{}
	}
}

func recvMsg(t *testing.T, l *Listener) MsgEvent {
	select {
	case ev := <-l.MsgChan:
		return ev
	case <-time.After(waitTmo):
		t.Fatalf("timeout waiting for message event")
		return MsgEvent{}
	}
}

func recvErr(t *testing.T, l *Listener) error {
	select {
	case err := <-l.ErrChan:
		return err
	case <-time.After(waitTmo):
		t.Fatalf("timeout waiting for error event")
		return nil
	}
}

func TestInitReady(t *testing.T) {
	ux, dev, _ := readyXport(t)

	assert.Equal(t, XPORT_STATE_READY, ux.State())
	assert.Equal(t, dev.Serial, ux.Serial())
	assert.Equal(t, tesselDesc, ux.Desc())
	assert.Equal(t, 1, dev.Claims())
	assert.Equal(t, TESSEL_ALT_SETTING, dev.ClaimedAlt())
	assert.Equal(t, DFLT_IO_TIMEOUT, dev.Timeout())
	assert.NoError(t, ux.Err())
}

func TestInitTwice(t *testing.T) {
	ux, _, _ := readyXport(t)

	err := ux.Init()
	assert.True(t, tmxutil.IsAlready(err), "err=%v", err)
	assert.Equal(t, XPORT_STATE_READY, ux.State())
}

func TestInitDeviceNotFound(t *testing.T) {
	enum := usbtest.NewEnumerator()
	boot := tesselDesc
	boot.Version = 0x0001
	enum.Attach(boot)

	ux := newTestXport(enum)
	err := ux.Init()
	assert.True(t, tmxutil.IsDeviceNotFound(err), "err=%v", err)
	assert.Equal(t, XPORT_STATE_CLOSED, ux.State())
	assert.Empty(t, enum.Opened)

	ux.Close()
	assert.Equal(t, XPORT_STATE_CLOSED, ux.State())
}

func TestInitDeviceBusy(t *testing.T) {
	enum := usbtest.NewEnumerator()
	dev := enum.Attach(tesselDesc)
	dev.ClaimErr = errors.Wrap(usbdev.ErrBusy, "interface 0")

	ux := newTestXport(enum)
	err := ux.Init()
	require.True(t, tmxutil.IsDeviceBusy(err), "err=%v", err)
	assert.NotEqual(t, XPORT_STATE_READY, ux.State())

	// Handle opened during init is closed again.
	assert.Equal(t, 1, dev.Closes())
	assert.Equal(t, 0, dev.Intf.Releases())

	ux.Close()
	assert.Equal(t, 1, dev.Closes())
	assert.Equal(t, XPORT_STATE_CLOSED, ux.State())

	select {
	case <-ux.Done():
	default:
		t.Fatalf("done channel not closed after failed init")
	}

	_, err = ux.Send(tagRun, nil)
	assert.True(t, tmxutil.IsSesnClosed(err), "err=%v", err)
}

func TestInitClaimErrorSurfaced(t *testing.T) {
	enum := usbtest.NewEnumerator()
	dev := enum.Attach(tesselDesc)
	claimErr := fmt.Errorf("libusb: access denied")
	dev.ClaimErr = claimErr

	ux := newTestXport(enum)
	err := ux.Init()
	require.Error(t, err)
	assert.False(t, tmxutil.IsDeviceBusy(err))
	assert.Equal(t, claimErr, errors.Cause(err))
}

func TestInitSerialErrorReleases(t *testing.T) {
	enum := usbtest.NewEnumerator()
	dev := enum.Attach(tesselDesc)
	serialErr := fmt.Errorf("descriptor read timed out")
	dev.SerialErr = serialErr

	ux := newTestXport(enum)
	err := ux.Init()
	assert.Equal(t, serialErr, errors.Cause(err))
	assert.Equal(t, 1, dev.Intf.Releases())
	assert.Equal(t, 1, dev.Closes())
	assert.Equal(t, XPORT_STATE_CLOSED, ux.State())
}

func TestInitMissingEndpoint(t *testing.T) {
	enum := usbtest.NewEnumerator()
	dev := enum.Attach(tesselDesc)
	dev.Intf.Eps = dev.Intf.Eps[:2]

	ux := newTestXport(enum)
	assert.Error(t, ux.Init())
	assert.Equal(t, 1, dev.Intf.Releases())
	assert.Equal(t, 1, dev.Closes())
}

func TestSendPostMsg(t *testing.T) {
	ux, dev, _ := readyXport(t)

	payload := []byte("console.log('hi')")
	rsp, err := ux.Send(tagRun, payload)
	require.NoError(t, err)
	assert.Nil(t, rsp)

	writes := dev.Intf.MsgOut().Writes()
	require.Len(t, writes, 1)

	want := []byte{byte(len(payload)), 0, 0, 0, 'U', 0, 0, 0}
	want = append(want, payload...)
	assert.Equal(t, want, writes[0])
}

func TestSendPostMsgZlp(t *testing.T) {
	ux, dev, _ := readyXport(t)

	// 8-byte header + 56 bytes = one full 64-byte packet.
	_, err := ux.Send(tagFlash, make([]byte, 56))
	require.NoError(t, err)

	writes := dev.Intf.MsgOut().Writes()
	require.Len(t, writes, 2)
	assert.Len(t, writes[0], 64)
	assert.Empty(t, writes[1])
}

func TestSendControlOut(t *testing.T) {
	ux, dev, _ := readyXport(t)

	rsp, err := ux.Send(tagStop, []byte{1, 2})
	require.NoError(t, err)
	assert.Nil(t, rsp)

	ctls := dev.Controls()
	require.Len(t, ctls, 1)
	assert.Equal(t, uint8(0x40), ctls[0].RType)
	assert.Equal(t, uint8(tagStop), ctls[0].Request)
	assert.Equal(t, []byte{1, 2}, ctls[0].Data)
	assert.Empty(t, dev.Intf.MsgOut().Writes())
}

func TestSendControlIn(t *testing.T) {
	ux, dev, _ := readyXport(t)
	dev.ControlRsp = []byte("v0.1")

	rsp, err := ux.Send(tagVers, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("v0.1"), rsp)

	ctls := dev.Controls()
	require.Len(t, ctls, 1)
	assert.Equal(t, uint8(0xc0), ctls[0].RType)
}

func TestSendControlError(t *testing.T) {
	ux, dev, _ := readyXport(t)
	ctlErr := fmt.Errorf("pipe stall")
	dev.ControlErr = ctlErr

	_, err := ux.Send(tagStop, nil)
	assert.Equal(t, ctlErr, errors.Cause(err))

	// Not fatal.
	assert.NoError(t, ux.Err())
	assert.Equal(t, XPORT_STATE_READY, ux.State())
}

func TestSendUnknownTag(t *testing.T) {
	ux, _, _ := readyXport(t)

	_, err := ux.Send('?', nil)
	assert.True(t, tmxutil.IsUnknownTag(err))
}

func TestSendBeforeInit(t *testing.T) {
	ux := newTestXport(usbtest.NewEnumerator())

	_, err := ux.Send(tagRun, nil)
	assert.True(t, tmxutil.IsSesnClosed(err))
}

func TestLogEvents(t *testing.T) {
	_, dev, l := readyXport(t)

	dev.Intf.Log().Push(frame.EncodeLogRecords([]frame.LogRecord{
		{Level: 10, Text: "booting"},
		{Level: 12, Text: "hello from script"},
	}))
	dev.Intf.Log().Push([]byte("\x01\x14second chunk"))

	assert.Equal(t, DebugEvent{Level: 10, Text: "booting"}, recvDebug(t, l))
	assert.Equal(t, DebugEvent{Level: 12, Text: "hello from script"}, recvDebug(t, l))
	assert.Equal(t, DebugEvent{Level: 20, Text: "second chunk"}, recvDebug(t, l))
}

func TestMessageEvents(t *testing.T) {
	_, dev, l := readyXport(t)

	payload := make([]byte, frame.MAX_CHUNK_SIZE+10)
	for i := range payload {
		payload[i] = byte(i)
	}
	b := frame.EncodeMsg(0x75, payload)

	dev.Intf.MsgIn().Push(b[:frame.MAX_CHUNK_SIZE])
	select {
	case ev := <-l.MsgChan:
		t.Fatalf("message delivered before short chunk: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	dev.Intf.MsgIn().Push(b[frame.MAX_CHUNK_SIZE:])
	ev := recvMsg(t, l)
	assert.Equal(t, uint32(0x75), ev.Tag)
	assert.Equal(t, payload, ev.Payload)
}

func TestMalformedLogIsFatal(t *testing.T) {
	ux, dev, l := readyXport(t)

	dev.Intf.Log().Push([]byte("no marker"))

	err := recvErr(t, l)
	assert.True(t, tmxutil.IsMalformedLogStream(err))
	assert.Equal(t, err, ux.Err())

	select {
	case <-ux.Done():
	case <-time.After(waitTmo):
		t.Fatalf("done channel not closed after fatal error")
	}

	_, err = ux.Send(tagRun, nil)
	assert.True(t, tmxutil.IsMalformedLogStream(err))

	ux.Close()
	assert.Equal(t, XPORT_STATE_CLOSED, ux.State())
	assert.Equal(t, 1, dev.Intf.Releases())
}

func TestEndpointErrorIsFatal(t *testing.T) {
	ux, dev, l := readyXport(t)

	dev.Intf.MsgIn().Fail(fmt.Errorf("libusb: no device"))

	err := recvErr(t, l)
	require.True(t, tmxutil.IsEndpoint(err), "err=%v", err)
	assert.Equal(t, "messages", err.(*tmxutil.EndpointError).Endpoint)
	assert.True(t, tmxutil.IsFatal(ux.Err()))
}

func TestRequestReply(t *testing.T) {
	ux, dev, _ := readyXport(t)

	go func() {
		// Reply once the request has gone out.
		deadline := time.Now().Add(waitTmo)
		for len(dev.Intf.MsgOut().Writes()) == 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		dev.Intf.MsgIn().Push(frame.EncodeMsg(tagRun, []byte("ok")))
	}()

	ev, err := ux.Request(tagRun, []byte("bundle"), waitTmo)
	require.NoError(t, err)
	assert.Equal(t, tagRun, ev.Tag)
	assert.Equal(t, []byte("ok"), ev.Payload)
}

func TestRequestTimeout(t *testing.T) {
	ux, _, _ := readyXport(t)

	_, err := ux.Request(tagRun, nil, 20*time.Millisecond)
	assert.True(t, tmxutil.IsRspTimeout(err), "err=%v", err)

	// Tag is free again.
	_, err = ux.Send(tagRun, nil)
	assert.NoError(t, err)
}

func TestSameTagRejectedWhileOutstanding(t *testing.T) {
	ux, dev, _ := readyXport(t)

	done := make(chan error, 1)
	go func() {
		_, err := ux.Request(tagRun, nil, waitTmo)
		done <- err
	}()

	// Wait for the request's write, after which it is waiting for a reply.
	deadline := time.Now().Add(waitTmo)
	for len(dev.Intf.MsgOut().Writes()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	_, err := ux.Send(tagRun, nil)
	assert.True(t, tmxutil.IsTagBusy(err), "err=%v", err)

	// A different tag is unaffected.
	_, err = ux.Send(tagFlash, nil)
	assert.NoError(t, err)

	dev.Intf.MsgIn().Push(frame.EncodeMsg(tagRun, nil))
	assert.NoError(t, <-done)
}

func TestCloseFailsPendingRequest(t *testing.T) {
	ux, dev, _ := readyXport(t)

	done := make(chan error, 1)
	go func() {
		_, err := ux.Request(tagRun, nil, time.Minute)
		done <- err
	}()

	deadline := time.Now().Add(waitTmo)
	for len(dev.Intf.MsgOut().Writes()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	ux.Close()

	select {
	case err := <-done:
		assert.True(t, tmxutil.IsSesnClosed(err), "err=%v", err)
	case <-time.After(waitTmo):
		t.Fatalf("request not failed by close")
	}
}

func TestCloseAbortsStalledWrite(t *testing.T) {
	ux, dev, _ := readyXport(t)
	dev.Intf.MsgOut().Stall = true

	done := make(chan error, 1)
	go func() {
		_, err := ux.Send(tagFlash, []byte("big bundle"))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	ux.Close()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(waitTmo):
		t.Fatalf("stalled send not aborted by close")
	}
}

func TestCloseIdempotent(t *testing.T) {
	ux, dev, _ := readyXport(t)
	dev.Intf.ReleaseErr = fmt.Errorf("release failed")
	dev.CloseErr = fmt.Errorf("close failed")

	ux.Close()
	ux.Close()

	assert.Equal(t, XPORT_STATE_CLOSED, ux.State())
	assert.Equal(t, 1, dev.Intf.Releases())
	assert.Equal(t, 1, dev.Closes())

	_, err := ux.Send(tagRun, nil)
	assert.True(t, tmxutil.IsSesnClosed(err))
}

func TestCloseBeforeInit(t *testing.T) {
	ux := newTestXport(usbtest.NewEnumerator())
	ux.Close()

	assert.Equal(t, XPORT_STATE_CLOSED, ux.State())

	err := ux.Init()
	assert.Error(t, err)
	assert.False(t, tmxutil.IsAlready(err))
}

func TestRemovedListenerDoesNotStall(t *testing.T) {
	ux, dev, l := readyXport(t)

	// Fill the debug channel, then drop the listener without draining.
	for i := 0; i < cap(l.DebugChan)+4; i++ {
		dev.Intf.Log().Push([]byte("\x01\x01spam"))
	}
	time.Sleep(20 * time.Millisecond)
	ux.RemoveListener(l)

	l2 := NewListener()
	ux.AddListener(l2)
	dev.Intf.MsgIn().Push(frame.EncodeMsg(1, []byte("x")))

	ev := recvMsg(t, l2)
	assert.Equal(t, uint32(1), ev.Tag)
}
