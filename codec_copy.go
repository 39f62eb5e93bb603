package sevenzip

import "fmt"

func init() {
	RegisterCodec(MethodCopy, func(properties []byte, opts CoderOptions) (Codec, error) {
		return copyCodec{}, nil
	})
}

// copyCodec implements the Copy (stored, uncompressed) method — method id
// 0x00.
type copyCodec struct{}

func (copyCodec) Decompress(dst, src []byte) (int, error) {
	if len(src) != len(dst) {
		return 0, fmt.Errorf("sevenzip: copy method: src len %d != dst len %d", len(src), len(dst))
	}
	return copy(dst, src), nil
}
