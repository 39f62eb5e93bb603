// Package rangecoder implements the LZMA arithmetic range decoder: a
// byte-oriented, probability-weighted bit decoder. It has no notion of
// literals, matches, or dictionaries — those live one layer up in package
// lzma. This separation mirrors the teacher's split between chd's bitReader
// (pure bit mechanics) and its callers (symbol semantics).
package rangecoder

import (
	"errors"
	"fmt"
	"io"
)

const (
	topValue    = 1 << 24
	numBitModelTotalBits = 11
	bitModelTotal        = 1 << numBitModelTotalBits
	numMoveBits          = 5
)

// ErrCorrupt indicates the range coder stream is malformed: the mandatory
// leading zero byte was nonzero. A source that runs out while priming or
// normalizing surfaces as the source's own read error, wrapped.
var ErrCorrupt = errors.New("rangecoder: corrupt stream")

// Prob is an 11-bit adaptive probability that bit 0 will be observed next.
// The zero value (0) is invalid; callers must initialize probabilities to
// ProbInit before first use.
type Prob uint16

// ProbInit is the initial probability value, representing p=0.5.
const ProbInit Prob = bitModelTotal / 2

// Decoder is a range decoder reading from an underlying byte source.
type Decoder struct {
	r     io.ByteReader
	rng   uint32
	code  uint32
}

// New creates a Decoder and primes it by reading 5 bytes from r: a mandatory
// leading zero byte followed by 4 big-endian bytes forming the initial code.
func New(r io.ByteReader) (*Decoder, error) {
	d := &Decoder{r: r, rng: 0xFFFFFFFF}

	b, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("rangecoder: read lead byte: %w", err)
	}
	if b != 0 {
		return nil, fmt.Errorf("%w: lead byte 0x%02x", ErrCorrupt, b)
	}

	for i := 0; i < 4; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("rangecoder: read code byte %d: %w", i, err)
		}
		d.code = (d.code << 8) | uint32(b)
	}

	return d, nil
}

func (d *Decoder) normalize() error {
	if d.rng < topValue {
		b, err := d.r.ReadByte()
		if err != nil {
			return fmt.Errorf("rangecoder: normalize: %w", err)
		}
		d.rng <<= 8
		d.code = (d.code << 8) | uint32(b)
	}
	return nil
}

// DecodeBit decodes one probability-weighted bit and adapts *p toward the
// observed outcome at the standard LZMA adaptation rate (numMoveBits = 5).
func (d *Decoder) DecodeBit(p *Prob) (uint32, error) {
	bound := (d.rng >> numBitModelTotalBits) * uint32(*p)

	var bit uint32
	if d.code < bound {
		d.rng = bound
		*p += Prob((bitModelTotal - uint32(*p)) >> numMoveBits)
		bit = 0
	} else {
		d.rng -= bound
		d.code -= bound
		*p -= *p >> numMoveBits
		bit = 1
	}

	if err := d.normalize(); err != nil {
		return 0, err
	}
	return bit, nil
}

// DecodeDirectBits decodes numBits uniformly-distributed bits (no adaptive
// probability), used for alignment bits and the fixed parts of distance
// slots.
func (d *Decoder) DecodeDirectBits(numBits int) (uint32, error) {
	var result uint32
	for i := 0; i < numBits; i++ {
		d.rng >>= 1
		d.code -= d.rng
		t := 0 - (d.code >> 31)
		d.code += d.rng & t

		if err := d.normalize(); err != nil {
			return 0, err
		}

		result = (result << 1) | (t + 1)
	}
	return result, nil
}

// IsFinished reports whether the decoder has consumed all meaningful data:
// true once code has settled to zero, which callers use (together with a
// known output length) to validate stream termination without requiring an
// explicit end marker.
func (d *Decoder) IsFinished() bool {
	return d.code == 0
}
