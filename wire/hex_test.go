// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexBytesRoundTrip(t *testing.T) {
	in := struct {
		Key HexBytes `json:"key"`
	}{Key: HexBytes{0xde, 0xad, 0xbe, 0xef}}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	require.JSONEq(t, `{"key":"deadbeef"}`, string(data))

	var out struct {
		Key HexBytes `json:"key"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, in.Key, out.Key)
}

func TestHexBytesRejectsBadHex(t *testing.T) {
	var out struct {
		Key HexBytes `json:"key"`
	}
	require.Error(t, json.Unmarshal([]byte(`{"key":"zz"}`), &out))
}

func TestHash16HexRoundTrip(t *testing.T) {
	h := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	parsed, err := ParseHash16(Hash16Hex(h))
	require.NoError(t, err)
	require.Equal(t, h, parsed)

	_, err = ParseHash16("abcd")
	require.Error(t, err)
	_, err = ParseHash16("not hex at all!!")
	require.Error(t, err)
}
