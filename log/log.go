// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package log re-exports github.com/luxfi/log for the relay core and adds
// a handful of field constructors for the identifiers this module logs
// constantly (16-byte hashes, message type tags) so call sites read as
// `log.Hash16("sender", id)` instead of repeating hex-encoding everywhere.
package log

import (
	"encoding/hex"

	"github.com/luxfi/log"
)

// Logger is the structured logger every manager in this module takes in
// its constructor.
type Logger = log.Logger

// Field is a single structured log attribute.
type Field = log.Field

// NewNoOp returns a logger that discards everything, used by default in
// tests and by callers that haven't wired a sink yet.
func NewNoOp() Logger {
	return log.NewNoOpLogger()
}

// Hash16 logs a 16-byte identity/relay/group hash as lowercase hex.
func Hash16(key string, h [16]byte) Field {
	return log.String(key, hex.EncodeToString(h[:]))
}

// Type logs an envelope/message type tag.
func Type(tag string) Field {
	return log.String("type", tag)
}
