// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HexBytes is a byte slice that marshals to/from lowercase hex in JSON,
// the field encoding spec §6 fixes for payload bodies and persisted
// records. Use it anywhere a []byte crosses the wire or hits disk;
// in-memory structs keep plain []byte.
type HexBytes []byte

// MarshalJSON encodes b as a lowercase hex string.
func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

// UnmarshalJSON decodes a hex string, accepting null as empty.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("wire: bad hex field: %w", err)
	}
	*b = decoded
	return nil
}

// String returns the lowercase hex rendering.
func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// Hash16Hex renders a 16-byte identity hash as lowercase hex, the form
// persisted records and contact files key on.
func Hash16Hex(h [16]byte) string {
	return hex.EncodeToString(h[:])
}

// ParseHash16 reverses Hash16Hex.
func ParseHash16(s string) ([16]byte, error) {
	var h [16]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("wire: bad hash16 hex: %w", err)
	}
	if len(raw) != 16 {
		return h, fmt.Errorf("wire: hash16 must be 16 bytes, got %d", len(raw))
	}
	copy(h[:], raw)
	return h, nil
}
