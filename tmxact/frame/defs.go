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

const (
	MSG_HDR_SIZE = 8

	// Largest single read or write on a bulk endpoint.  An inbound read
	// shorter than this ends a message.
	MAX_CHUNK_SIZE = 4096

	// Inbound messages larger than this cannot have come from the device.
	MAX_MSG_SIZE = 32 * 1024 * 1024

	// Starts every record on the log endpoint.
	LOG_STX byte = 0x01
)
