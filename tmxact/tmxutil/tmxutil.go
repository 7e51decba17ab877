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

	log "github.com/sirupsen/logrus"
)

// Long buffers are truncated to this many bytes in debug dumps.
const MAX_DUMP_LEN = 256

func SetLogLevel(level log.Level) {
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
}

// Returns a hex dump of the supplied buffer suitable for a debug log.  Only
// the first MAX_DUMP_LEN bytes are rendered.
func DumpBytes(b []byte) string {
	if len(b) <= MAX_DUMP_LEN {
		return hex.Dump(b)
	}

	return hex.Dump(b[:MAX_DUMP_LEN]) + "...\n"
}

// Logs a hex dump of a buffer at debug level, without paying for the dump
// when debug logging is off.
func LogDump(entry *log.Entry, prefix string, b []byte) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}
	entry.Debugf("%s (%d bytes)\n%s", prefix, len(b), DumpBytes(b))
}
