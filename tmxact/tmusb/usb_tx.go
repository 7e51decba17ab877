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
	"time"

	"github.com/pkg/errors"

	"github.com/tessel/tesselmgr/tmxact/dispatch"
	"github.com/tessel/tesselmgr/tmxact/frame"
	"github.com/tessel/tesselmgr/tmxact/tmxutil"
)

// The wire carries no request identity beyond the tag, so only one request
// per tag may be outstanding.
func (ux *UsbXport) acquireTag(tag uint32) error {
	ux.mtx.Lock()
	defer ux.mtx.Unlock()

	if _, ok := ux.pending[tag]; ok {
		return tmxutil.NewTagBusyError(tag)
	}
	ux.pending[tag] = struct{}{}
	return nil
}

func (ux *UsbXport) releaseTag(tag uint32) {
	ux.mtx.Lock()
	defer ux.mtx.Unlock()

	delete(ux.pending, tag)
}

func (ux *UsbXport) checkReady() error {
	if err := ux.Err(); err != nil {
		return err
	}

	if st := ux.getState(); st != XPORT_STATE_READY {
		return tmxutil.NewSesnClosedError(fmt.Sprintf(
			"transport not ready; state=%s", st))
	}

	return nil
}

// Sends payload under tag using the delivery method the dispatch table
// assigns to it.  Control transfers return whatever the device sent back;
// bulk messages return nil once the write completes.
func (ux *UsbXport) Send(tag uint32, payload []byte) ([]byte, error) {
	if err := ux.acquireTag(tag); err != nil {
		return nil, err
	}
	defer ux.releaseTag(tag)

	return ux.send(tag, payload)
}

func (ux *UsbXport) send(tag uint32, payload []byte) ([]byte, error) {
	if err := ux.checkReady(); err != nil {
		return nil, err
	}

	entry, err := ux.cfg.Dispatch.Lookup(tag)
	if err != nil {
		return nil, err
	}

	var rsp []byte
	err = ux.txq.Run(func() error {
		switch entry.Method {
		case dispatch.METHOD_POST_MSG:
			return ux.postMsg(tag, payload)

		case dispatch.METHOD_CONTROL:
			var err error
			rsp, err = ux.control(entry, tag, payload)
			return err

		default:
			return errors.Errorf("unsupported delivery method %s for "+
				"tag 0x%08x", entry.Method, tag)
		}
	})
	if err != nil {
		return nil, err
	}

	return rsp, nil
}

// Sends payload under tag and waits for the device's next message with the
// same tag.
func (ux *UsbXport) Request(tag uint32, payload []byte,
	timeout time.Duration) (MsgEvent, error) {

	if err := ux.acquireTag(tag); err != nil {
		return MsgEvent{}, err
	}
	defer ux.releaseTag(tag)

	// Register before sending so a fast reply is not missed.
	w := &rspWaiter{
		msgCh: make(chan MsgEvent, 1),
		errCh: make(chan error, 1),
	}
	ux.mtx.Lock()
	ux.waiters[tag] = w
	ux.mtx.Unlock()

	defer func() {
		ux.mtx.Lock()
		if ux.waiters[tag] == w {
			delete(ux.waiters, tag)
		}
		ux.mtx.Unlock()
	}()

	if _, err := ux.send(tag, payload); err != nil {
		return MsgEvent{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-w.msgCh:
		return ev, nil

	case err := <-w.errCh:
		return MsgEvent{}, err

	case <-timer.C:
		return MsgEvent{}, tmxutil.FmtRspTimeoutError(
			"no reply for tag 0x%08x after %s", tag, timeout.String())
	}
}

func (ux *UsbXport) postMsg(tag uint32, payload []byte) error {
	txFn := func(b []byte) error {
		tmxutil.LogDump(ux.log, "Tx message", b)

		n, err := ux.msgOutEp.WriteContext(ux.ctx, b)
		if err != nil {
			return errors.Wrapf(err, "bulk write; tag=0x%08x", tag)
		}
		if n != len(b) {
			return errors.Errorf("short bulk write; tag=0x%08x wrote=%d "+
				"want=%d", tag, n, len(b))
		}
		return nil
	}

	return frame.WriteMsg(txFn, ux.msgOutEp.MaxPacketSize(), tag, payload)
}

func (ux *UsbXport) control(entry dispatch.Entry, tag uint32,
	payload []byte) ([]byte, error) {

	if tag > 0xff {
		return nil, errors.Errorf(
			"tag 0x%08x does not fit a control request", tag)
	}

	data := payload
	if entry.IsIn() {
		data = make([]byte, entry.InLen)
	}

	tmxutil.LogDump(ux.log, fmt.Sprintf("Tx control rtype=0x%02x req=0x%02x",
		entry.RequestType, tag), payload)

	n, err := ux.dev.Control(entry.RequestType, uint8(tag), 0, 0, data)
	if err != nil {
		return nil, errors.Wrapf(err, "control transfer; tag=0x%02x", tag)
	}

	if !entry.IsIn() {
		return nil, nil
	}

	tmxutil.LogDump(ux.log, "Rx control", data[:n])
	return data[:n], nil
}
