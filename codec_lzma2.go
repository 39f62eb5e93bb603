package sevenzip

import (
	"fmt"

	"github.com/omnizip/sevenzip-go/internal/lzma2"
)

func init() {
	RegisterCodec(MethodLZMA2, newLzma2Codec)
}

// lzma2Codec adapts internal/lzma2.Decode to the folder orchestrator's
// Codec interface. LZMA2's coder property is the single dictionary-size
// byte; (lc, lp, pb) arrive per-chunk inside the compressed stream itself.
type lzma2Codec struct {
	propByte byte
}

func newLzma2Codec(properties []byte, opts CoderOptions) (Codec, error) {
	if len(properties) != 1 {
		return nil, fmt.Errorf("%w: LZMA2 expects 1 property byte, got %d", ErrInvalidLzma2Properties, len(properties))
	}
	return &lzma2Codec{propByte: properties[0]}, nil
}

func (c *lzma2Codec) Decompress(dst, src []byte) (int, error) {
	out, err := lzma2.Decode(src, int64(len(dst)), c.propByte)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptLzma2Control, err)
	}
	return copy(dst, out), nil
}
