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
	"bytes"
	"strings"

	"github.com/tessel/tesselmgr/tmxact/tmxutil"
)

type LogRecord struct {
	Level uint8
	Text  string
}

// Parses one chunk read from the log endpoint:
//
//	STX level text [STX level text]...
//
// Each chunk is parsed on its own; a record cut by a chunk boundary comes
// out as two records, the second of which fails the leading-STX check.
func DecodeLogChunk(chunk []byte) ([]LogRecord, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	if chunk[0] != LOG_STX {
		return nil, tmxutil.NewMalformedLogStreamError(
			append([]byte(nil), chunk...))
	}

	var recs []LogRecord

	off := 0
	for off < len(chunk) {
		// A lone marker at the end of the chunk carries no level.
		if off+1 >= len(chunk) {
			break
		}

		level := chunk[off+1]
		body := chunk[off+2:]

		end := bytes.IndexByte(body, LOG_STX)
		if end < 0 {
			end = len(body)
		}

		recs = append(recs, LogRecord{
			Level: level,
			Text:  strings.ToValidUTF8(string(body[:end]), "\uFFFD"),
		})

		off += 2 + end
	}

	return recs, nil
}

// Builds the wire form of a sequence of records.
func EncodeLogRecords(recs []LogRecord) []byte {
	var b []byte
	for _, r := range recs {
		b = append(b, LOG_STX, r.Level)
		b = append(b, r.Text...)
	}
	return b
}
