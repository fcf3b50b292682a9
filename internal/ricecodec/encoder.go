package ricecodec

import (
	"encoding/binary"
	"fmt"
	"sort"
)

type bitWriter struct {
	data []byte
	pos  int // bit offset of the next bit to write
}

func (w *bitWriter) writeBit(bit uint32) {
	if w.pos%8 == 0 {
		w.data = append(w.data, 0)
	}
	if bit != 0 {
		w.data[w.pos/8] |= 1 << (w.pos % 8)
	}
	w.pos++
}

// writeBits writes the n low bits of v, least-significant first.
func (w *bitWriter) writeBits(v uint32, n int) {
	for i := 0; i < n; i++ {
		w.writeBit(v >> i & 1)
	}
}

// EncodeIntegers rice-codes a non-empty ascending value sequence with
// parameter k. The returned triple mirrors the wire layout: the explicit
// first value, the number of delta-coded entries, and the delta bitstream.
func EncodeIntegers(values []uint32, k int) (first uint32, count int, data []byte, err error) {
	if len(values) == 0 {
		return 0, 0, nil, fmt.Errorf("nothing to encode")
	}
	if k < minRiceParameter || k > maxRiceParameter {
		return 0, 0, nil, fmt.Errorf("rice parameter %d outside [%d, %d]", k, minRiceParameter, maxRiceParameter)
	}

	first = values[0]
	count = len(values) - 1
	if count == 0 {
		return first, 0, nil, nil
	}

	bw := &bitWriter{}
	last := first
	for _, v := range values[1:] {
		delta := v - last
		last = v
		for q := delta >> k; q > 0; q-- {
			bw.writeBit(1)
		}
		bw.writeBit(0)
		bw.writeBits(delta, k)
	}
	return first, count, bw.data, nil
}

// EncodePrefixes is the inverse of DecodePrefixes: it interprets 4-byte
// prefixes as little-endian uint32s, sorts them numerically and rice-codes
// the result. Used by tests and fixtures.
func EncodePrefixes(prefixes [][]byte, k int) (first uint32, count int, data []byte, err error) {
	values := make([]uint32, 0, len(prefixes))
	for _, p := range prefixes {
		if len(p) != PrefixSize {
			return 0, 0, nil, fmt.Errorf("prefix length %d, rice coding carries %d-byte prefixes only", len(p), PrefixSize)
		}
		values = append(values, binary.LittleEndian.Uint32(p))
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return EncodeIntegers(values, k)
}
