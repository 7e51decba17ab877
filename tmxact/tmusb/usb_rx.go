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
	"github.com/tessel/tesselmgr/tmxact/frame"
	"github.com/tessel/tesselmgr/tmxact/tmxutil"
	"github.com/tessel/tesselmgr/tmxact/usbdev"
)

type chunkFn func(chunk []byte) error

// Reads one endpoint until the session ends.  Chunks are handed to onChunk
// in arrival order; a transfer error or a handler error is fatal.
func (ux *UsbXport) rxLoop(name string, ep usbdev.InEndpoint, onChunk chunkFn) {
	defer ux.wg.Done()

	buf := make([]byte, frame.MAX_CHUNK_SIZE)
	for {
		n, err := ep.ReadContext(ux.ctx, buf)
		if err != nil {
			if ux.ctx.Err() != nil {
				// Closing.
				return
			}
			ux.fail(tmxutil.NewEndpointError(name, err))
			return
		}

		tmxutil.LogDump(ux.log, "Rx "+name, buf[:n])

		if err := onChunk(buf[:n]); err != nil {
			ux.fail(err)
			return
		}
	}
}

func (ux *UsbXport) rxLogChunk(chunk []byte) error {
	recs, err := frame.DecodeLogChunk(chunk)
	if err != nil {
		return err
	}

	for _, r := range recs {
		ux.emitDebug(DebugEvent{
			Level: r.Level,
			Text:  r.Text,
		})
	}

	return nil
}

func (ux *UsbXport) rxMsgChunk(chunk []byte) error {
	msg, err := ux.reasm.RxChunk(chunk)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}

	ux.log.Debugf("Rx message %s", msg.String())

	ev := MsgEvent{
		Tag:     msg.Tag,
		Payload: msg.Payload,
	}

	ux.mtx.Lock()
	w := ux.waiters[ev.Tag]
	delete(ux.waiters, ev.Tag)
	ux.mtx.Unlock()

	if w != nil {
		w.msgCh <- ev
	}

	ux.emitMsg(ev)
	return nil
}
