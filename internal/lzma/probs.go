package lzma

import "github.com/omnizip/sevenzip-go/internal/rangecoder"

// lengthDecoder implements the LZMA length coder: a 2-bit choice selecting
// among a low (2-9), mid (10-17), or high (18-273) regime, the low/mid
// regimes further split by pos_state.
type lengthDecoder struct {
	choice  rangecoder.Prob
	choice2 rangecoder.Prob
	low     [numPosStatesMax][1 << 3]rangecoder.Prob
	mid     [numPosStatesMax][1 << 3]rangecoder.Prob
	high    [1 << 8]rangecoder.Prob
}

func (l *lengthDecoder) reset() {
	l.choice = rangecoder.ProbInit
	l.choice2 = rangecoder.ProbInit
	for i := range l.low {
		resetProbSlice(l.low[i][:])
	}
	for i := range l.mid {
		resetProbSlice(l.mid[i][:])
	}
	resetProbSlice(l.high[:])
}

// decode returns the length offset (0-based; callers add matchMinLen).
func (l *lengthDecoder) decode(rc *rangecoder.Decoder, posState uint32) (uint32, error) {
	bit, err := rc.DecodeBit(&l.choice)
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		return bitTreeDecode(rc, l.low[posState][:], 3)
	}
	bit, err = rc.DecodeBit(&l.choice2)
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		v, err := bitTreeDecode(rc, l.mid[posState][:], 3)
		if err != nil {
			return 0, err
		}
		return 8 + v, nil
	}
	v, err := bitTreeDecode(rc, l.high[:], 8)
	if err != nil {
		return 0, err
	}
	return 16 + v, nil
}

// probTables holds every adaptive probability used by one LZMA decode
// session, sized once from (lc, lp). About 14.1K 16-bit probabilities
// (~28KB) at lc+lp=4.
type probTables struct {
	lc, lp int

	isMatch    [numStates][numPosStatesMax]rangecoder.Prob
	isRep      [numStates]rangecoder.Prob
	isRepG0    [numStates]rangecoder.Prob
	isRepG1    [numStates]rangecoder.Prob
	isRepG2    [numStates]rangecoder.Prob
	isRep0Long [numStates][numPosStatesMax]rangecoder.Prob

	posSlot      [numLenToPosStates][1 << numPosSlotBits]rangecoder.Prob
	posDecoders  [1 + posDecodersSize]rangecoder.Prob
	alignDecoder [1 << numAlignBits]rangecoder.Prob

	lenCoder    lengthDecoder
	repLenCoder lengthDecoder

	// literal holds literalCodersPerContext probabilities per (posState,
	// prevByte>>（8-lc)) context, laid out context-major.
	literal []rangecoder.Prob
}

func newProbTables(lc, lp int) *probTables {
	p := &probTables{lc: lc, lp: lp}
	p.literal = make([]rangecoder.Prob, literalCodersPerContext<<uint(lc+lp))
	p.reset()
	return p
}

func resetProbSlice(s []rangecoder.Prob) {
	for i := range s {
		s[i] = rangecoder.ProbInit
	}
}

func (p *probTables) reset() {
	for i := range p.isMatch {
		resetProbSlice(p.isMatch[i][:])
	}
	resetProbSlice(p.isRep[:])
	resetProbSlice(p.isRepG0[:])
	resetProbSlice(p.isRepG1[:])
	resetProbSlice(p.isRepG2[:])
	for i := range p.isRep0Long {
		resetProbSlice(p.isRep0Long[i][:])
	}
	for i := range p.posSlot {
		resetProbSlice(p.posSlot[i][:])
	}
	resetProbSlice(p.posDecoders[:])
	resetProbSlice(p.alignDecoder[:])
	p.lenCoder.reset()
	p.repLenCoder.reset()
	resetProbSlice(p.literal)
}

// literalProbs returns the probability slice for a literal-tree context.
func (p *probTables) literalProbs(context uint32) []rangecoder.Prob {
	start := int(context) * literalCodersPerContext
	return p.literal[start : start+literalCodersPerContext]
}
