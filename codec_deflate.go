package sevenzip

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

func init() {
	RegisterCodec(MethodDeflate, newDeflateCodec)
}

// deflateCodec wraps klauspost/compress/flate for the Deflate method
// (0x040108), per SPEC_FULL.md's domain-stack wiring: 7-Zip's Deflate coder
// carries no property bytes and uses raw (header-less) DEFLATE, the same
// framing klauspost's flate package reads.
type deflateCodec struct{}

func newDeflateCodec(properties []byte, opts CoderOptions) (Codec, error) {
	return deflateCodec{}, nil
}

func (deflateCodec) Decompress(dst, src []byte) (int, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	n, err := io.ReadFull(r, dst)
	if err != nil {
		return n, fmt.Errorf("%w: deflate: %v", ErrTruncated, err)
	}
	return n, nil
}
