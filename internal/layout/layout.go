// Package layout computes the absolute payload-bit positions a signal
// occupies, for both CAN byte orders, and packs/unpacks raw values against
// those positions. It is reused by the validator (overlap/DLC checks),
// the codegen (the Go reference the generated C mirrors) and the
// roundtrip verifier (the mask property).
package layout

import "fmt"

// ByteOrder selects the DBC-style bit-numbering convention.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota // Intel: bit 0 is the LSB of byte 0
	BigEndian                    // Motorola: start bit names the MSB
)

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big_endian"
	}
	return "little_endian"
}

// Positions returns the ordered list of absolute payload-bit indices a
// signal of the given length occupies, starting at startBit under order.
// positions[0] is the LSB of the signal's raw value, positions[length-1]
// the MSB. Callers that only need the occupied set (overlap/DLC checks)
// should treat the returned slice as a set; callers that pack/unpack a raw
// value must respect the order.
func Positions(startBit, length int, order ByteOrder) ([]int, error) {
	if length < 1 || length > 64 {
		return nil, fmt.Errorf("layout: bit_length %d out of range [1,64]", length)
	}
	if startBit < 0 {
		return nil, fmt.Errorf("layout: start_bit %d must be non-negative", startBit)
	}
	switch order {
	case LittleEndian:
		return littleEndianPositions(startBit, length), nil
	case BigEndian:
		return bigEndianPositions(startBit, length), nil
	default:
		return nil, fmt.Errorf("layout: unknown byte order %d", order)
	}
}

// littleEndianPositions is the contiguous run [start, start+length).
func littleEndianPositions(start, length int) []int {
	pos := make([]int, length)
	for i := 0; i < length; i++ {
		pos[i] = start + i
	}
	return pos
}

// bigEndianPositions walks MSB-first within a byte starting at startBit
// (which names the MSB of the signal) and, on underflow from bit 0 of a
// byte, continues at bit 7 of the next byte.
func bigEndianPositions(start, length int) []int {
	pos := make([]int, length)
	byteIdx := start / 8
	bitIdx := start % 8
	for i := 0; i < length; i++ {
		pos[i] = byteIdx*8 + bitIdx
		if bitIdx == 0 {
			byteIdx++
			bitIdx = 7
		} else {
			bitIdx--
		}
	}
	// pos was filled MSB-first (index 0 == MSB of the signal); reverse so
	// index 0 is the LSB, matching the little-endian packing convention.
	reverse(pos)
	return pos
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// PositionSet returns the occupied bit positions as a set (for overlap
// and DLC-range checks, where order is irrelevant).
func PositionSet(positions []int) map[int]struct{} {
	set := make(map[int]struct{}, len(positions))
	for _, p := range positions {
		set[p] = struct{}{}
	}
	return set
}

// Mask returns the bitmask (as a byte slice of length dlcBytes) covering
// every position in positions.
func Mask(positions []int, dlcBytes int) []byte {
	m := make([]byte, dlcBytes)
	for _, p := range positions {
		byteIdx := p / 8
		if byteIdx < 0 || byteIdx >= dlcBytes {
			continue
		}
		m[byteIdx] |= 1 << uint(p%8)
	}
	return m
}

// Encode sets, in payload, every bit of v (width len(positions)) at its
// mapped position: bit i of v goes to payload bit positions[i].
func Encode(v uint64, positions []int, payload []byte) {
	for i, p := range positions {
		if (v>>uint(i))&1 == 0 {
			continue
		}
		byteIdx := p / 8
		if byteIdx >= len(payload) {
			continue
		}
		payload[byteIdx] |= 1 << uint(p%8)
	}
}

// Decode reconstructs the raw value occupying positions in payload. If
// signed, the result is sign-extended from bit len(positions)-1 to 64 bits.
func Decode(positions []int, payload []byte, signed bool) int64 {
	var v uint64
	for i, p := range positions {
		byteIdx := p / 8
		if byteIdx >= len(payload) {
			continue
		}
		bit := (payload[byteIdx] >> uint(p%8)) & 1
		v |= uint64(bit) << uint(i)
	}
	n := len(positions)
	if signed && n < 64 && v&(1<<uint(n-1)) != 0 {
		v |= ^uint64(0) << uint(n)
	}
	return int64(v)
}

// Representable reports whether v fits in an n-bit field of the given
// signedness. Enum values and defaults are stored in the IR as int64, so a
// full-width 64-bit unsigned field holds every non-negative int64; a
// negative v is never representable in an unsigned field of any width.
func Representable(n int, signed bool, v int64) bool {
	if n <= 0 || n > 64 {
		return false
	}
	if signed {
		if n == 64 {
			return true
		}
		half := int64(1) << uint(n-1)
		return v >= -half && v < half
	}
	if v < 0 {
		return false
	}
	if n == 64 {
		return true
	}
	return uint64(v) < uint64(1)<<uint(n)
}
