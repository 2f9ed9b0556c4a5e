// Package bitmask decodes the fixed-width subscription match blob stored on
// every publication.
//
// Bit convention: the 8-byte blob is read as a little-endian uint64. Bit p
// (p = 0 is the least-significant bit of the first byte) set means the
// publication matches subscription id p+1. Equivalently, byte i bit j
// (LSB first) maps to id 8*i + j + 1.
package bitmask

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

const (
	// Width is the required blob length in bytes.
	Width = 8

	// MaxID is the largest subscription id a blob can reference.
	MaxID = Width * 8
)

// Decode returns the ascending subscription ids encoded in blob.
// Returns model.ErrMalformedMatchData if blob is not exactly Width bytes.
// An all-zero blob yields an empty, non-nil slice.
func Decode(blob []byte) ([]int64, error) {
	if len(blob) != Width {
		return nil, fmt.Errorf("%w: blob is %d bytes, want %d", model.ErrMalformedMatchData, len(blob), Width)
	}

	mask := binary.LittleEndian.Uint64(blob)
	ids := make([]int64, 0, bits.OnesCount64(mask))
	for mask != 0 {
		p := bits.TrailingZeros64(mask)
		ids = append(ids, int64(p)+1)
		mask &= mask - 1
	}
	return ids, nil
}

// Encode builds a blob with the bits for ids set.
// Ids outside [1, MaxID] are rejected with model.ErrInvalidArgument.
func Encode(ids []int64) ([]byte, error) {
	var mask uint64
	for _, id := range ids {
		if id < 1 || id > MaxID {
			return nil, fmt.Errorf("%w: subscription id %d outside [1, %d]", model.ErrInvalidArgument, id, MaxID)
		}
		mask |= 1 << uint(id-1)
	}
	blob := make([]byte, Width)
	binary.LittleEndian.PutUint64(blob, mask)
	return blob, nil
}

// MustEncode is Encode for fixtures; it panics on invalid ids.
func MustEncode(ids ...int64) []byte {
	blob, err := Encode(ids)
	if err != nil {
		panic(err)
	}
	return blob
}
