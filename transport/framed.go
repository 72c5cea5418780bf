/*
 * Copyright © 2020 Camilo Hernández <me@camiloh.com>
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 *  in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *  FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
 * THE SOFTWARE.
 */

// Package transport provides the length-delimited frame codec used over the
// mTLS mesh connections, and a WebSocket-to-net.Conn adapter so that codec
// (and crypto/tls on top of it) can run over a WebSocket transport.
package transport

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
)

// ErrMessageTooLarge is returned when a frame's declared length exceeds MaxFrameSize.
var ErrMessageTooLarge = errors.New("transport: frame exceeds maximum size")

const headerSize = 4

// FramedConn reads and writes length-prefixed frames over an io.ReadWriter.
// Each frame is a 4-byte big-endian length followed by exactly that many
// payload bytes, mirroring the decimal-header framing in the teacher's
// handler.go generalized to a fixed-width binary header.
type FramedConn struct {
	rw           io.ReadWriter
	MaxFrameSize uint32

	writeMu sync.Mutex
}

// DefaultMaxFrameSize bounds a single frame absent an explicit override.
const DefaultMaxFrameSize = 16 * 1024 * 1024

// NewFramedConn wraps rw with the length-delimited frame codec.
func NewFramedConn(rw io.ReadWriter) *FramedConn {
	return &FramedConn{rw: rw, MaxFrameSize: DefaultMaxFrameSize}
}

// ReadFrame blocks until a full frame is available and returns its payload.
func (f *FramedConn) ReadFrame() ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(f.rw, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > f.MaxFrameSize {
		return nil, ErrMessageTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(f.rw, payload); err != nil {
		return nil, err
	}

	return payload, nil
}

// WriteFrame writes payload as a single length-prefixed frame. Writes are
// serialized: concurrent callers each get an atomic header+payload write.
func (f *FramedConn) WriteFrame(payload []byte) error {
	if uint32(len(payload)) > f.MaxFrameSize {
		return ErrMessageTooLarge
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := f.rw.Write(header[:]); err != nil {
		return err
	}
	if _, err := f.rw.Write(payload); err != nil {
		return err
	}

	return nil
}
