package sevenzip

import (
	"fmt"

	"github.com/omnizip/sevenzip-go/internal/rangecoder"
)

func init() {
	RegisterMultiCodec(MethodBCJ2, newBCJ2Codec)
}

// bcj2NumProbs is the probability-context count: 256 contexts keyed on the
// byte preceding an E8 candidate, plus one fixed context each for E9 and
// for the two-byte Jcc-near (0F 8x) form.
const bcj2NumProbs = 256 + 2

const (
	bcj2ProbE9  = 256
	bcj2ProbJcc = 257
)

type bcj2Codec struct{}

func newBCJ2Codec(properties []byte, opts CoderOptions) (MultiCodec, error) {
	if opts.NumInStreams != 4 {
		return nil, fmt.Errorf("%w: BCJ2 coder declares %d input streams, want 4", ErrUnsupportedBcj2Layout, opts.NumInStreams)
	}
	return bcj2Codec{}, nil
}

// DecompressMulti recombines BCJ2's four input streams (main, call, jump,
// rc) into dst.
func (bcj2Codec) DecompressMulti(dst []byte, srcs [][]byte) (int, error) {
	if len(srcs) != 4 {
		return 0, fmt.Errorf("%w: got %d input streams, want 4", ErrUnsupportedBcj2Layout, len(srcs))
	}
	main, call, jump, rcBytes := srcs[0], srcs[1], srcs[2], srcs[3]

	rc, err := rangecoder.New(&byteSliceReader{data: rcBytes})
	if err != nil {
		return 0, fmt.Errorf("sevenzip: BCJ2 range coder: %w", err)
	}

	var probs [bcj2NumProbs]rangecoder.Prob
	for i := range probs {
		probs[i] = rangecoder.ProbInit
	}

	var mainPos, callPos, jumpPos, outPos int
	var prevByte byte

	for outPos < len(dst) {
		if mainPos >= len(main) {
			return outPos, fmt.Errorf("%w: BCJ2 main stream exhausted at output offset %d", ErrTruncated, outPos)
		}
		b := main[mainPos]
		mainPos++
		dst[outPos] = b
		outPos++

		var probIdx int = -1
		switch {
		case b == 0xE8:
			probIdx = int(prevByte)
		case b == 0xE9:
			probIdx = bcj2ProbE9
		case prevByte == 0x0F && b&0xF0 == 0x80:
			probIdx = bcj2ProbJcc
		}
		prevByte = b
		if probIdx < 0 || outPos >= len(dst) {
			continue
		}

		bit, err := rc.DecodeBit(&probs[probIdx])
		if err != nil {
			return outPos, fmt.Errorf("sevenzip: BCJ2 range coder: %w", err)
		}
		if bit == 0 {
			continue
		}

		var stream []byte
		var pos *int
		if b == 0xE8 {
			stream, pos = call, &callPos
		} else {
			stream, pos = jump, &jumpPos
		}
		if *pos+4 > len(stream) {
			return outPos, fmt.Errorf("%w: BCJ2 auxiliary stream exhausted", ErrTruncated)
		}
		absolute := uint32(stream[*pos])<<24 | uint32(stream[*pos+1])<<16 | uint32(stream[*pos+2])<<8 | uint32(stream[*pos+3])
		*pos += 4

		if outPos+4 > len(dst) {
			return outPos, fmt.Errorf("%w: BCJ2 branch operand overruns declared output size", ErrTruncated)
		}
		relative := absolute - uint32(outPos) - 4
		dst[outPos] = byte(relative)
		dst[outPos+1] = byte(relative >> 8)
		dst[outPos+2] = byte(relative >> 16)
		dst[outPos+3] = byte(relative >> 24)
		outPos += 4
		prevByte = dst[outPos-1]
	}
	return outPos, nil
}

type byteSliceReader struct {
	data []byte
	pos  int
}

func (r *byteSliceReader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("sevenzip: BCJ2 rc stream: %w", ErrTruncated)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}
