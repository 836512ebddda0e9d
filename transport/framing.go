// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Stream transports carry envelopes as [u32 big-endian length][bytes]
// (spec §6). WriteFrame and ReadFrame implement that framing. The Manager
// does not call them: Send, Broadcast and Heartbeat write the bytes they
// are given to the connection unchanged, with no length prefix, and the
// wsConn adapter sends each Write as one binary WebSocket message.

// WriteFrame writes one length-prefixed envelope to w. The envelope must
// not exceed maxFrame bytes.
func WriteFrame(w io.Writer, envelope []byte, maxFrame int) error {
	if len(envelope) > maxFrame {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(envelope), maxFrame)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(envelope)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(envelope)
	return err
}

// ReadFrame reads one length-prefixed envelope from r, rejecting frames
// larger than maxFrame before buffering them.
func ReadFrame(r io.Reader, maxFrame int) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if int(n) > maxFrame {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxFrame)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
