package ricecodec

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urlguard/urlguard/models"
)

// ── DecodeIntegers ───────────────────────────────────────────────────────────

func TestDecodeIntegers_KnownBitstream(t *testing.T) {
	// first=5, k=2, deltas 1,2,3. Each delta is a 0-bit quotient terminator
	// followed by two remainder bits (LSB first):
	//   1 -> 0 10, 2 -> 0 01, 3 -> 0 11
	// packed LSB-first: 0b10100010, 0b00000001.
	values, err := DecodeIntegers(5, 2, 3, []byte{0xA2, 0x01})
	require.NoError(t, err)
	assert.Equal(t, []uint32{5, 6, 8, 11}, values)
}

func TestDecodeIntegers_SingleValue(t *testing.T) {
	values, err := DecodeIntegers(4093, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{4093}, values)
}

func TestDecodeIntegers_ZeroEntriesWithData(t *testing.T) {
	_, err := DecodeIntegers(1, 2, 0, []byte{0xFF})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeIntegers_RiceParameterOutOfRange(t *testing.T) {
	for _, k := range []int{-1, 0, 1, 29, 32, 100} {
		_, err := DecodeIntegers(0, k, 1, []byte{0x00})
		assert.ErrorIs(t, err, ErrDecode, "k=%d must be rejected", k)
	}
}

func TestDecodeIntegers_Truncated(t *testing.T) {
	// Declares 3 entries but carries bits for barely one.
	_, err := DecodeIntegers(0, 10, 3, []byte{0x00})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeIntegers_TrailingGarbage(t *testing.T) {
	// Valid single delta followed by a full unconsumed byte.
	_, err := DecodeIntegers(5, 2, 1, []byte{0x02, 0x00})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeIntegers_NegativeCount(t *testing.T) {
	_, err := DecodeIntegers(0, 2, -1, nil)
	assert.ErrorIs(t, err, ErrDecode)
}

// ── round trips ──────────────────────────────────────────────────────────────

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		values []uint32
		k      int
	}{
		{"small deltas", []uint32{5, 6, 8, 11}, 2},
		{"large deltas", []uint32{0, 1 << 20, 1 << 24, 1<<31 + 7}, 14},
		{"dense run", []uint32{100, 101, 102, 103, 104, 105}, 2},
		{"single value", []uint32{0xDDCCBBAA}, 28},
		{"max parameter", []uint32{3, 4095, 70000, 4000000000}, 28},
		{"repeated value", []uint32{9, 9, 9}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, count, data, err := EncodeIntegers(tt.values, tt.k)
			require.NoError(t, err)
			require.Equal(t, len(tt.values)-1, count)

			decoded, err := DecodeIntegers(first, tt.k, count, data)
			require.NoError(t, err)
			assert.Equal(t, tt.values, decoded)
		})
	}
}

func TestEncodeIntegers_Empty(t *testing.T) {
	_, _, _, err := EncodeIntegers(nil, 2)
	assert.Error(t, err)
}

// ── DecodePrefixes / DecodeIndices ───────────────────────────────────────────

func TestDecodePrefixes_LittleEndian(t *testing.T) {
	// A single prefix, no deltas: value 0xDDCCBBAA must come back as the
	// bytes AA BB CC DD.
	enc := &models.RiceDeltaEncoding{FirstValue: "3721182122", NumEntries: 0}
	prefixes, err := DecodePrefixes(enc)
	require.NoError(t, err)
	require.Len(t, prefixes, 1)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, prefixes[0])
}

func TestDecodePrefixes_RoundTrip(t *testing.T) {
	in := [][]byte{
		{0x01, 0x02, 0x03, 0x04},
		{0xAA, 0xBB, 0xCC, 0xDD},
		{0xFF, 0x00, 0x00, 0x00},
	}
	first, count, data, err := EncodePrefixes(in, 20)
	require.NoError(t, err)

	enc := &models.RiceDeltaEncoding{
		FirstValue:    formatUint(first),
		RiceParameter: 20,
		NumEntries:    count,
		EncodedData:   data,
	}
	out, err := DecodePrefixes(enc)
	require.NoError(t, err)
	assert.ElementsMatch(t, in, out)
}

func TestDecodePrefixes_NilEncoding(t *testing.T) {
	_, err := DecodePrefixes(nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeIndices(t *testing.T) {
	first, count, data, err := EncodeIntegers([]uint32{2, 5, 9}, 2)
	require.NoError(t, err)

	enc := &models.RiceDeltaEncoding{
		FirstValue:    formatUint(first),
		RiceParameter: 2,
		NumEntries:    count,
		EncodedData:   data,
	}
	indices, err := DecodeIndices(enc)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5, 9}, indices)
}

func TestParseFirstValue(t *testing.T) {
	v, err := parseFirstValue("")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)

	_, err = parseFirstValue("not-a-number")
	assert.ErrorIs(t, err, ErrDecode)

	_, err = parseFirstValue("4294967296") // MaxUint32 + 1
	assert.ErrorIs(t, err, ErrDecode)
}

func TestEncodePrefixes_RejectsWrongWidth(t *testing.T) {
	_, _, _, err := EncodePrefixes([][]byte{{0x01, 0x02}}, 2)
	assert.Error(t, err)
}

func formatUint(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
