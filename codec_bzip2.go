package sevenzip

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
)

func init() {
	RegisterCodec(MethodBZip2, newBZip2Codec)
}

// bzip2Codec wraps dsnet/compress/bzip2 for the BZip2 method (0x040202),
// per SPEC_FULL.md's domain-stack wiring: klauspost/compress has no bzip2
// decoder, and dsnet/compress is the library the example pack carries for
// this format.
type bzip2Codec struct{}

func newBZip2Codec(properties []byte, opts CoderOptions) (Codec, error) {
	return bzip2Codec{}, nil
}

func (bzip2Codec) Decompress(dst, src []byte) (int, error) {
	r, err := bzip2.NewReader(bytes.NewReader(src), nil)
	if err != nil {
		return 0, fmt.Errorf("sevenzip: bzip2: %w", err)
	}
	defer r.Close()
	n, err := io.ReadFull(r, dst)
	if err != nil {
		return n, fmt.Errorf("%w: bzip2: %v", ErrTruncated, err)
	}
	return n, nil
}
