// SPDX-License-Identifier: Apache-2.0

// Package ricecodec implements the Golomb-Rice coding used by the update API
// to compress sets of monotonically increasing 32-bit integers.
//
// A coded set consists of an explicit first value, an entry count, a rice
// parameter k and a bitstream of deltas. Each delta is coded as a unary
// quotient (a run of 1-bits terminated by a 0-bit) followed by a k-bit
// remainder; bits are packed least-significant first within each byte.
// Depending on protocol mode, the decoded values are either hash prefixes
// (little-endian uint32) or zero-based removal indices.
package ricecodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/urlguard/urlguard/models"
)

// ErrDecode reports a malformed rice-encoded payload: bitstream truncation, a
// rice parameter outside the valid range, or leftover data after the declared
// entry count was consumed. Callers must treat the whole set as unusable.
var ErrDecode = errors.New("malformed rice-encoded data")

// The update API only ever emits rice parameters in this range; anything else
// means the payload is corrupt.
const (
	minRiceParameter = 2
	maxRiceParameter = 28
)

// PrefixSize is the byte width of rice-compressed hash prefixes. Longer
// prefixes are always transmitted raw.
const PrefixSize = 4

type bitReader struct {
	data []byte
	pos  int // bit offset from the start of data
}

func (r *bitReader) readBit() (uint32, error) {
	if r.pos >= len(r.data)*8 {
		return 0, fmt.Errorf("%w: bitstream truncated at bit %d", ErrDecode, r.pos)
	}
	bit := uint32(r.data[r.pos/8]>>(r.pos%8)) & 1
	r.pos++
	return bit, nil
}

// readBits reads n bits, least-significant first. n must be <= 32.
func (r *bitReader) readBits(n int) (uint32, error) {
	var v uint32
	for i := 0; i < n; i++ {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		v |= bit << i
	}
	return v, nil
}

func (r *bitReader) remaining() int {
	return len(r.data)*8 - r.pos
}

// DecodeIntegers decodes a rice-coded set into the full value sequence:
// first, then count delta-coded successors. Additions wrap around uint32
// arithmetic the same way the server encodes them.
func DecodeIntegers(first uint32, k, count int, data []byte) ([]uint32, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative entry count %d", ErrDecode, count)
	}
	values := make([]uint32, 0, count+1)
	values = append(values, first)
	if count == 0 {
		if len(data) > 0 {
			return nil, fmt.Errorf("%w: %d bytes of data with zero entries", ErrDecode, len(data))
		}
		return values, nil
	}
	if k < minRiceParameter || k > maxRiceParameter {
		return nil, fmt.Errorf("%w: rice parameter %d outside [%d, %d]", ErrDecode, k, minRiceParameter, maxRiceParameter)
	}

	br := &bitReader{data: data}
	last := first
	for i := 0; i < count; i++ {
		var q uint32
		for {
			bit, err := br.readBit()
			if err != nil {
				return nil, err
			}
			if bit == 0 {
				break
			}
			q++
		}
		r, err := br.readBits(k)
		if err != nil {
			return nil, err
		}
		last += q<<k | r
		values = append(values, last)
	}

	// The encoder pads the final byte with zero bits; a full unread byte
	// means the declared count does not match the stream.
	if br.remaining() >= 8 {
		return nil, fmt.Errorf("%w: %d unconsumed bits after %d entries", ErrDecode, br.remaining(), count)
	}
	return values, nil
}

// DecodePrefixes decodes a rice-coded addition set into 4-byte hash prefixes.
// Each decoded integer is the little-endian interpretation of one prefix; the
// result is returned in decode order, not yet lexicographically sorted.
func DecodePrefixes(enc *models.RiceDeltaEncoding) ([][]byte, error) {
	values, err := decodeEncoding(enc)
	if err != nil {
		return nil, err
	}
	prefixes := make([][]byte, 0, len(values))
	for _, v := range values {
		buf := make([]byte, PrefixSize)
		binary.LittleEndian.PutUint32(buf, v)
		prefixes = append(prefixes, buf)
	}
	return prefixes, nil
}

// DecodeIndices decodes a rice-coded removal set into zero-based indices into
// the pre-update sorted prefix array.
func DecodeIndices(enc *models.RiceDeltaEncoding) ([]int, error) {
	values, err := decodeEncoding(enc)
	if err != nil {
		return nil, err
	}
	indices := make([]int, 0, len(values))
	for _, v := range values {
		indices = append(indices, int(v))
	}
	return indices, nil
}

func decodeEncoding(enc *models.RiceDeltaEncoding) ([]uint32, error) {
	if enc == nil {
		return nil, fmt.Errorf("%w: missing rice encoding", ErrDecode)
	}
	first, err := parseFirstValue(enc.FirstValue)
	if err != nil {
		return nil, err
	}
	return DecodeIntegers(first, enc.RiceParameter, enc.NumEntries, enc.EncodedData)
}

// parseFirstValue parses the explicit first value, transmitted as a decimal
// string because the API encodes 64-bit integers that way. An absent value
// means zero.
func parseFirstValue(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: first value %q: %v", ErrDecode, s, err)
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: first value %d does not fit in 32 bits", ErrDecode, v)
	}
	return uint32(v), nil
}
