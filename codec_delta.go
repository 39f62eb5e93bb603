package sevenzip

import (
	"fmt"

	"github.com/omnizip/sevenzip-go/internal/filter"
)

func init() {
	RegisterCodec(MethodDelta, newDeltaCodec)
}

// deltaCodec wraps internal/filter.DeltaDecode. The coder's single
// property byte is (distance - 1).
type deltaCodec struct {
	distance int
}

func newDeltaCodec(properties []byte, opts CoderOptions) (Codec, error) {
	if len(properties) != 1 {
		return nil, fmt.Errorf("sevenzip: delta filter expects 1 property byte, got %d", len(properties))
	}
	return &deltaCodec{distance: int(properties[0]) + 1}, nil
}

func (c *deltaCodec) Decompress(dst, src []byte) (int, error) {
	if err := filter.DeltaDecode(dst, src, c.distance); err != nil {
		return 0, err
	}
	return len(dst), nil
}
