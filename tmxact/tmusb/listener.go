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
	"sync"
)

// A log record received from the device, or a notice from the transport
// itself.
type DebugEvent struct {
	Level uint8
	Text  string
}

// An application message received on the messages-in endpoint.
type MsgEvent struct {
	Tag     uint32
	Payload []byte
}

// Receives transport events.  Any of the channels may be set to nil to
// ignore that kind of event.  A full channel stalls the endpoint that feeds
// it until the consumer catches up, the listener is removed, or the
// transport closes.
type Listener struct {
	DebugChan chan DebugEvent
	MsgChan   chan MsgEvent

	// Receives the fatal error that ended the session, if any.  Delivery
	// never blocks.
	ErrChan chan error

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewListener() *Listener {
	return &Listener{
		DebugChan: make(chan DebugEvent, 16),
		MsgChan:   make(chan MsgEvent, 16),
		ErrChan:   make(chan error, 1),
		stopCh:    make(chan struct{}),
	}
}

func (l *Listener) stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

func (ux *UsbXport) AddListener(l *Listener) {
	ux.mtx.Lock()
	defer ux.mtx.Unlock()

	ux.listeners[l] = struct{}{}
}

func (ux *UsbXport) RemoveListener(l *Listener) {
	ux.mtx.Lock()
	delete(ux.listeners, l)
	ux.mtx.Unlock()

	l.stop()
}

func (ux *UsbXport) listenerList() []*Listener {
	ux.mtx.Lock()
	defer ux.mtx.Unlock()

	ls := make([]*Listener, 0, len(ux.listeners))
	for l := range ux.listeners {
		ls = append(ls, l)
	}
	return ls
}

func (ux *UsbXport) emitDebug(ev DebugEvent) {
	for _, l := range ux.listenerList() {
		if l.DebugChan == nil {
			continue
		}
		select {
		case l.DebugChan <- ev:
		case <-l.stopCh:
		case <-ux.ctx.Done():
			return
		}
	}
}

func (ux *UsbXport) emitMsg(ev MsgEvent) {
	for _, l := range ux.listenerList() {
		if l.MsgChan == nil {
			continue
		}
		select {
		case l.MsgChan <- ev:
		case <-l.stopCh:
		case <-ux.ctx.Done():
			return
		}
	}
}

func (ux *UsbXport) emitErr(err error) {
	for _, l := range ux.listenerList() {
		if l.ErrChan == nil {
			continue
		}
		select {
		case l.ErrChan <- err:
		default:
		}
	}
}
