package sevenzip

import (
	"fmt"

	"github.com/omnizip/sevenzip-go/internal/filter"
)

func init() {
	registerBCJ(MethodBCJX86, filter.BCJX86)
	registerBCJ(MethodBCJARM, filter.BCJARM)
	registerBCJ(MethodBCJARMT, filter.BCJARMT)
	registerBCJ(MethodARM64, filter.BCJARM64)
	registerBCJ(MethodBCJPPC, filter.BCJPPC)
	registerBCJ(MethodSPARC, filter.BCJSPARC)
	RegisterCodec(MethodBCJIA64, newIA64Codec)
}

type bcjFunc func(data []byte, position uint32, decode bool)

// bcjCodec adapts a per-architecture BCJ converter to Codec: each runs
// in place over a copy of the input, since a BCJ filter is an equal-length
// buffer transform rather than a streaming copy. Folder-level application
// always starts at position 0 (the filter's conceptual stream is the
// coder's own complete output, independent of the entry's offset within
// the archive).
type bcjCodec struct {
	f bcjFunc
}

func registerBCJ(id Method, f bcjFunc) {
	RegisterCodec(id, func(properties []byte, opts CoderOptions) (Codec, error) {
		return &bcjCodec{f: f}, nil
	})
}

func (c *bcjCodec) Decompress(dst, src []byte) (int, error) {
	if len(dst) != len(src) {
		return 0, fmt.Errorf("sevenzip: BCJ filter: src len %d != dst len %d", len(src), len(dst))
	}
	copy(dst, src)
	c.f(dst, 0, true)
	return len(dst), nil
}

type ia64Codec struct{}

func newIA64Codec(properties []byte, opts CoderOptions) (Codec, error) {
	return ia64Codec{}, nil
}

// Decompress converts in 16-byte IA-64 bundles; any trailing partial
// bundle is copied through unconverted.
func (ia64Codec) Decompress(dst, src []byte) (int, error) {
	if len(dst) != len(src) {
		return 0, fmt.Errorf("sevenzip: BCJ-IA64 filter: src len %d != dst len %d", len(src), len(dst))
	}
	copy(dst, src)
	filter.BCJIA64(dst, 0, true)
	return len(dst), nil
}
