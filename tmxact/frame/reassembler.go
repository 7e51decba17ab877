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
	"encoding/hex"

	log "github.com/sirupsen/logrus"

	"github.com/tessel/tesselmgr/tmxact/tmxutil"
)

// Rebuilds messages from the chunks read off the messages-in endpoint.  A
// chunk shorter than the maximum chunk size terminates the current message.
type Reassembler struct {
	maxChunk int
	maxSize  int

	chunks [][]byte
	size   int
}

func NewReassembler() *Reassembler {
	return &Reassembler{
		maxChunk: MAX_CHUNK_SIZE,
		maxSize:  MAX_MSG_SIZE,
	}
}

// Returns the hex encoding of the first header-sized piece of the first
// buffered chunk.
func (r *Reassembler) hdrHex() string {
	if len(r.chunks) == 0 {
		return ""
	}

	first := r.chunks[0]
	if len(first) > MSG_HDR_SIZE {
		first = first[:MSG_HDR_SIZE]
	}
	return hex.EncodeToString(first)
}

func (r *Reassembler) reset() {
	r.chunks = nil
	r.size = 0
}

// Number of bytes buffered toward the current message.
func (r *Reassembler) Pending() int {
	return r.size
}

// Feeds one chunk.  Returns the completed message when chunk terminates
// one, nil otherwise.  An empty transfer yields no message.  The chunk is
// copied; the caller may reuse its buffer.
func (r *Reassembler) RxChunk(chunk []byte) (*Msg, error) {
	if len(chunk) > 0 {
		r.chunks = append(r.chunks, append([]byte(nil), chunk...))
		r.size += len(chunk)
	}

	if len(chunk) >= r.maxChunk {
		if r.size > r.maxSize {
			err := tmxutil.NewOversizeMessageError(r.hdrHex(), r.size)
			r.reset()
			return nil, err
		}

		// More to come.
		return nil, nil
	}

	defer r.reset()

	if r.size == 0 {
		return nil, nil
	}

	data := make([]byte, 0, r.size)
	for _, c := range r.chunks {
		data = append(data, c...)
	}

	msg, hdr, err := DecodeMsg(data)
	if err != nil {
		return nil, err
	}

	if int(hdr.Len) != len(msg.Payload) {
		log.Warnf("Message length mismatch; tag=0x%08x hdr.len=%d "+
			"actual=%d", hdr.Tag, hdr.Len, len(msg.Payload))
	}

	return msg, nil
}
