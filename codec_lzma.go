package sevenzip

import (
	"fmt"

	"github.com/omnizip/sevenzip-go/internal/lzma"
)

func init() {
	RegisterCodec(MethodLZMA, newLzmaCodec)
}

// lzmaCodec adapts internal/lzma.Decoder to the folder orchestrator's
// Codec interface, consuming the standalone 5-byte properties form
// (1 properties byte + 4-byte little-endian dictionary size) 7-Zip stores
// for the raw LZMA method.
type lzmaCodec struct {
	dec  *lzma.Decoder
	lc   int
	lp   int
	pb   int
}

func newLzmaCodec(properties []byte, opts CoderOptions) (Codec, error) {
	props, err := lzma.ParseStandaloneProps(properties)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLzmaProperties, err)
	}
	dec := lzma.NewDecoder(props.DictSize)
	if err := dec.SetProps(props.LC, props.LP, props.PB); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLzmaProperties, err)
	}
	return &lzmaCodec{dec: dec, lc: props.LC, lp: props.LP, pb: props.PB}, nil
}

func (c *lzmaCodec) Decompress(dst, src []byte) (int, error) {
	n, err := c.dec.Decompress(dst, 0, int64(len(dst)), src, true)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrCorruptRangeCoder, err)
	}
	return len(dst), nil
}
