package lzma

import "github.com/omnizip/sevenzip-go/internal/rangecoder"

// bitTreeDecode reads numBits MSB-first through a binary probability tree of
// size 1<<numBits stored in probs (probs[0] is unused; the tree root is
// probs[1]).
func bitTreeDecode(rc *rangecoder.Decoder, probs []rangecoder.Prob, numBits int) (uint32, error) {
	m := uint32(1)
	for i := 0; i < numBits; i++ {
		bit, err := rc.DecodeBit(&probs[m])
		if err != nil {
			return 0, err
		}
		m = (m << 1) + bit
	}
	return m - (1 << uint(numBits)), nil
}

// bitTreeReverseDecode reads numBits LSB-first (used for the distance
// alignment tree and the short reverse trees inside [startPosModelIndex,
// endPosModelIndex)). probs is indexed starting at offset so callers can
// share one backing array across multiple reverse trees (as the reference
// decoder's PosDecoders array does).
func bitTreeReverseDecode(rc *rangecoder.Decoder, probs []rangecoder.Prob, offset int, numBits int) (uint32, error) {
	m := uint32(1)
	var symbol uint32
	for i := 0; i < numBits; i++ {
		bit, err := rc.DecodeBit(&probs[offset+int(m)])
		if err != nil {
			return 0, err
		}
		m = (m << 1) + bit
		symbol |= bit << uint(i)
	}
	return symbol, nil
}
