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

package tmxutil

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// No attached device matches the target vendor/product ID, or every match
// is running its bootloader.
type DeviceNotFoundError struct {
	Text string
}

func NewDeviceNotFoundError(text string) *DeviceNotFoundError {
	return &DeviceNotFoundError{
		Text: text,
	}
}

func (e *DeviceNotFoundError) Error() string {
	return e.Text
}

func IsDeviceNotFound(err error) bool {
	_, ok := errors.Cause(err).(*DeviceNotFoundError)
	return ok
}

// The communication interface is already claimed by another process.
type DeviceBusyError struct {
	Text string
}

func NewDeviceBusyError(text string) *DeviceBusyError {
	return &DeviceBusyError{
		Text: text,
	}
}

func (e *DeviceBusyError) Error() string {
	return e.Text
}

func IsDeviceBusy(err error) bool {
	_, ok := errors.Cause(err).(*DeviceBusyError)
	return ok
}

// A transfer on one of the streaming endpoints failed.  Fatal to the
// session.
type EndpointError struct {
	Endpoint string
	Err      error
}

func NewEndpointError(endpoint string, err error) *EndpointError {
	return &EndpointError{
		Endpoint: endpoint,
		Err:      err,
	}
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("%s endpoint error: %v", e.Endpoint, e.Err)
}

func IsEndpoint(err error) bool {
	_, ok := errors.Cause(err).(*EndpointError)
	return ok
}

// A log chunk did not begin with the record marker.
type MalformedLogStreamError struct {
	Chunk []byte
}

func NewMalformedLogStreamError(chunk []byte) *MalformedLogStreamError {
	return &MalformedLogStreamError{
		Chunk: chunk,
	}
}

func (e *MalformedLogStreamError) Error() string {
	n := len(e.Chunk)
	if n > 16 {
		n = 16
	}
	return fmt.Sprintf("malformed log stream; chunk len=%d head=%s",
		len(e.Chunk), hex.EncodeToString(e.Chunk[:n]))
}

func IsMalformedLogStream(err error) bool {
	_, ok := errors.Cause(err).(*MalformedLogStreamError)
	return ok
}

// The inbound message buffer grew past the size limit without a
// terminating short chunk.
type OversizeMessageError struct {
	// Hex encoding of the first 8 bytes of the first chunk.
	Hdr  string
	Size int
}

func NewOversizeMessageError(hdr string, size int) *OversizeMessageError {
	return &OversizeMessageError{
		Hdr:  hdr,
		Size: size,
	}
}

func (e *OversizeMessageError) Error() string {
	return fmt.Sprintf("oversize message; hdr=%s accumulated=%d",
		e.Hdr, e.Size)
}

func IsOversizeMessage(err error) bool {
	_, ok := errors.Cause(err).(*OversizeMessageError)
	return ok
}

// A complete inbound message was too short to hold a frame header.
type MsgHdrError struct {
	Text string
}

func NewMsgHdrError(text string) *MsgHdrError {
	return &MsgHdrError{
		Text: text,
	}
}

func FmtMsgHdrError(format string, args ...interface{}) *MsgHdrError {
	return NewMsgHdrError(fmt.Sprintf(format, args...))
}

func (e *MsgHdrError) Error() string {
	return e.Text
}

func IsMsgHdr(err error) bool {
	_, ok := errors.Cause(err).(*MsgHdrError)
	return ok
}

// Returns true if the error terminates the session's streams.
func IsFatal(err error) bool {
	return IsEndpoint(err) ||
		IsMalformedLogStream(err) ||
		IsOversizeMessage(err) ||
		IsMsgHdr(err)
}

// The dispatch table has no entry for a tag.
type UnknownTagError struct {
	Tag uint32
}

func NewUnknownTagError(tag uint32) *UnknownTagError {
	return &UnknownTagError{
		Tag: tag,
	}
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("no dispatch entry for tag 0x%08x", e.Tag)
}

func IsUnknownTag(err error) bool {
	_, ok := errors.Cause(err).(*UnknownTagError)
	return ok
}

// A send with the same tag is already outstanding.
type TagBusyError struct {
	Tag uint32
}

func NewTagBusyError(tag uint32) *TagBusyError {
	return &TagBusyError{
		Tag: tag,
	}
}

func (e *TagBusyError) Error() string {
	return fmt.Sprintf("request already in flight for tag 0x%08x", e.Tag)
}

func IsTagBusy(err error) bool {
	_, ok := errors.Cause(err).(*TagBusyError)
	return ok
}

// Represents an application-layer timeout; request sent, but no response
// received.
type RspTimeoutError struct {
	Text string
}

func NewRspTimeoutError(text string) *RspTimeoutError {
	return &RspTimeoutError{
		Text: text,
	}
}

func FmtRspTimeoutError(format string, args ...interface{}) *RspTimeoutError {
	return NewRspTimeoutError(fmt.Sprintf(format, args...))
}

func (e *RspTimeoutError) Error() string {
	return e.Text
}

func IsRspTimeout(err error) bool {
	_, ok := errors.Cause(err).(*RspTimeoutError)
	return ok
}

type SesnClosedError struct {
	Text string
}

func NewSesnClosedError(text string) *SesnClosedError {
	return &SesnClosedError{
		Text: text,
	}
}

func (e *SesnClosedError) Error() string {
	return e.Text
}

func IsSesnClosed(err error) bool {
	_, ok := errors.Cause(err).(*SesnClosedError)
	return ok
}

// Indicates an attempt to transition to the already-current state.
type AlreadyError struct {
	Text string
}

func NewAlreadyError(text string) *AlreadyError {
	return &AlreadyError{text}
}

func (err *AlreadyError) Error() string {
	return err.Text
}

func IsAlready(err error) bool {
	if err == nil {
		return false
	}

	_, ok := errors.Cause(err).(*AlreadyError)
	return ok
}
