package bitmask

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

func TestDecode_AllZero(t *testing.T) {
	ids, err := Decode(make([]byte, Width))
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestDecode_AllOnes(t *testing.T) {
	ids, err := Decode(bytes.Repeat([]byte{0xFF}, Width))
	require.NoError(t, err)
	require.Len(t, ids, MaxID)
	for i, id := range ids {
		assert.Equal(t, int64(i+1), id)
	}
}

func TestDecode_BitOrder(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
		want []int64
	}{
		{"lsb of first byte", []byte{0x01, 0, 0, 0, 0, 0, 0, 0}, []int64{1}},
		{"msb of first byte", []byte{0x80, 0, 0, 0, 0, 0, 0, 0}, []int64{8}},
		{"lsb of second byte", []byte{0, 0x01, 0, 0, 0, 0, 0, 0}, []int64{9}},
		{"msb of last byte", []byte{0, 0, 0, 0, 0, 0, 0, 0x80}, []int64{64}},
		{"ids 1 and 3", []byte{0x05, 0, 0, 0, 0, 0, 0, 0}, []int64{1, 3}},
		{"spread", []byte{0x01, 0, 0, 0x10, 0, 0, 0, 0x01}, []int64{1, 29, 57}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := Decode(tt.blob)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestDecode_WrongLength(t *testing.T) {
	for _, n := range []int{0, 1, 7, 9, 16} {
		_, err := Decode(make([]byte, n))
		assert.ErrorIs(t, err, model.ErrMalformedMatchData, "length %d", n)
	}
	_, err := Decode(nil)
	assert.ErrorIs(t, err, model.ErrMalformedMatchData)
}

func TestDecode_RandomBlobsAscendingAndInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	blob := make([]byte, Width)
	for i := 0; i < 1000; i++ {
		for j := range blob {
			blob[j] = byte(rng.UintN(256))
		}
		ids, err := Decode(blob)
		require.NoError(t, err)
		for k, id := range ids {
			assert.GreaterOrEqual(t, id, int64(1))
			assert.LessOrEqual(t, id, int64(MaxID))
			if k > 0 {
				assert.Greater(t, id, ids[k-1])
			}
		}

		// Round trip through Encode reproduces the blob.
		again, err := Encode(ids)
		require.NoError(t, err)
		assert.Equal(t, blob, again)
	}
}

func TestEncode_RejectsOutOfRange(t *testing.T) {
	for _, id := range []int64{0, -1, 65} {
		_, err := Encode([]int64{id})
		assert.ErrorIs(t, err, model.ErrInvalidArgument)
	}
	assert.Panics(t, func() { MustEncode(100) })
}

func TestEncode_DuplicatesCollapse(t *testing.T) {
	ids, err := Decode(MustEncode(3, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
}
