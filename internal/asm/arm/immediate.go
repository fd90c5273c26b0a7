package arm

import "math/bits"

// EncodeImmediate finds seed and rot such that value == ror(seed, 2*rot),
// seed fitting in 8 bits and rot in 0..15. The smallest rotation wins.
func EncodeImmediate(value uint32) (seed, rot uint32, ok bool) {
	imm := value
	for imm&^0xFF != 0 {
		if rot == 15 {
			return 0, 0, false
		}
		imm = bits.RotateLeft32(imm, 2)
		rot++
	}
	return imm, rot, true
}

// DecodeImmediate expands an 8-bit seed and 4-bit rotation into the value the
// barrel shifter produces.
func DecodeImmediate(seed, rot uint32) uint32 {
	return bits.RotateLeft32(seed&0xFF, -int(2*(rot&0xF)))
}

// CanEncodeAs8BitImmediate reports whether value is a data-processing
// immediate.
func CanEncodeAs8BitImmediate(value uint32) bool {
	_, _, ok := EncodeImmediate(value)
	return ok
}

// EncodeImmediateOrInverted tries value first, then ^value. The inverted form
// lets MOV become MVN and AND become BIC.
func EncodeImmediateOrInverted(value uint32) (seed, rot uint32, inverted, ok bool) {
	if seed, rot, ok = EncodeImmediate(value); ok {
		return seed, rot, false, true
	}
	if seed, rot, ok = EncodeImmediate(^value); ok {
		return seed, rot, true, true
	}
	return 0, 0, false, false
}

// EncodeImmediateOrNegated tries value first, then -value. The negated form
// lets ADD become SUB, CMP become CMN.
func EncodeImmediateOrNegated(value uint32) (seed, rot uint32, negated, ok bool) {
	if seed, rot, ok = EncodeImmediate(value); ok {
		return seed, rot, false, true
	}
	if seed, rot, ok = EncodeImmediate(-value); ok {
		return seed, rot, true, true
	}
	return 0, 0, false, false
}

// SplitImmediate breaks value into the fewest byte-wide chunks at even bit
// positions, each one a data-processing immediate. The chunks sum to value.
func SplitImmediate(value uint32) []uint32 {
	var chunks []uint32
	for value != 0 {
		pos := bits.TrailingZeros32(value) &^ 1
		chunk := value & (0xFF << pos)
		chunks = append(chunks, chunk)
		value &^= chunk
	}
	return chunks
}
