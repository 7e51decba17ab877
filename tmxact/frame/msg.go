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

package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/tessel/tesselmgr/tmxact/tmxutil"
)

type MsgHdr struct {
	Len uint32
	Tag uint32
}

type Msg struct {
	Tag     uint32
	Payload []byte
}

func (m *Msg) String() string {
	return fmt.Sprintf("tag=0x%08x len=%d", m.Tag, len(m.Payload))
}

func DecodeMsgHdr(data []byte) (MsgHdr, error) {
	if len(data) < MSG_HDR_SIZE {
		return MsgHdr{}, tmxutil.FmtMsgHdrError(
			"message too short for header; have=%d want>=%d",
			len(data), MSG_HDR_SIZE)
	}

	return MsgHdr{
		Len: binary.LittleEndian.Uint32(data[0:4]),
		Tag: binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}

func (h *MsgHdr) Bytes() []byte {
	buf := make([]byte, MSG_HDR_SIZE)

	binary.LittleEndian.PutUint32(buf[0:4], h.Len)
	binary.LittleEndian.PutUint32(buf[4:8], h.Tag)

	return buf
}

// Builds a complete outbound frame: header followed by payload.
func EncodeMsg(tag uint32, payload []byte) []byte {
	hdr := MsgHdr{
		Len: uint32(len(payload)),
		Tag: tag,
	}

	b := make([]byte, 0, MSG_HDR_SIZE+len(payload))
	b = append(b, hdr.Bytes()...)
	b = append(b, payload...)

	return b
}

// Splits a fully reassembled frame into its tag and payload.  The header's
// length field is reported back so the caller can flag a mismatch; the
// payload is always everything after the header.
func DecodeMsg(data []byte) (*Msg, MsgHdr, error) {
	hdr, err := DecodeMsgHdr(data)
	if err != nil {
		return nil, hdr, err
	}

	return &Msg{
		Tag:     hdr.Tag,
		Payload: data[MSG_HDR_SIZE:],
	}, hdr, nil
}

// Performs one bulk transfer.
type TxFn func(b []byte) error

// Writes a frame as a single bulk transfer.  If the frame ends exactly on a
// packet boundary a zero-length packet follows, so the device can tell the
// transfer is complete.
func WriteMsg(txFn TxFn, maxPkt int, tag uint32, payload []byte) error {
	b := EncodeMsg(tag, payload)

	if err := txFn(b); err != nil {
		return err
	}

	if NeedsZlp(len(b), maxPkt) {
		if err := txFn([]byte{}); err != nil {
			return err
		}
	}

	return nil
}

func NeedsZlp(size int, maxPkt int) bool {
	return maxPkt > 0 && size%maxPkt == 0
}
