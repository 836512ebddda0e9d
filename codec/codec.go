// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec implements the payload encoding referenced by spec §6:
// JSON objects with hex-encoded byte fields, chosen for interop and
// debuggability. The Codec interface is kept separate from the envelope
// layer so a binary codec can be substituted later, as §6 explicitly
// allows, without touching envelope sealing/opening.
package codec

import (
	"encoding/json"
	"fmt"
)

// Version identifies the wire encoding of a payload body.
type Version uint16

// CurrentVersion is the only version this module currently emits.
const CurrentVersion Version = 0

// Codec marshals/unmarshals payload bodies.
type Codec interface {
	Marshal(version Version, v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) (Version, error)
}

// Default is the codec every component uses unless told otherwise.
var Default Codec = &JSONCodec{}

// JSONCodec is the hex-friendly JSON encoding spec §6 chooses.
type JSONCodec struct{}

// Marshal encodes v as JSON. Only CurrentVersion is accepted.
func (c *JSONCodec) Marshal(version Version, v interface{}) ([]byte, error) {
	if version != CurrentVersion {
		return nil, fmt.Errorf("codec: unsupported version %d", version)
	}
	return json.Marshal(v)
}

// Unmarshal decodes JSON into v and reports the version it was encoded
// with (always CurrentVersion for this codec; kept so callers facing a
// future mixed-version stream don't need to change their call sites).
func (c *JSONCodec) Unmarshal(data []byte, v interface{}) (Version, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return 0, err
	}
	return CurrentVersion, nil
}
