// Package lzma implements the LZMA probability model and decode state
// machine on top of package rangecoder. It supports both the standalone
// 5-byte-properties stream form and the raw form used by LZMA2.
package lzma

import (
	"errors"
	"fmt"

	"github.com/omnizip/sevenzip-go/internal/rangecoder"
)

// ErrInvalidProperties indicates an (lc, lp, pb) triple or encoded
// properties byte that violates the documented bounds (lc+lp<=4, lc<=8,
// lp<=4, pb<=4).
var ErrInvalidProperties = errors.New("lzma: invalid properties")

// ErrUnexpectedEOF is returned when the compressed input ends before the
// requested number of output bytes has been produced and no end marker was
// seen.
var ErrUnexpectedEOF = errors.New("lzma: truncated stream")

// Props is the decoded (lc, lp, pb, dictSize) property tuple.
type Props struct {
	LC, LP, PB int
	DictSize   uint32
}

// ParseStandaloneProps decodes the 5-byte property prefix used by standalone
// LZMA streams and 7-Zip's LZMA coder property bytes: byte 0 packs
// pb*45+lp*9+lc, followed by a 4-byte little-endian dictionary size.
func ParseStandaloneProps(b []byte) (Props, error) {
	if len(b) < 5 {
		return Props{}, fmt.Errorf("%w: need 5 bytes, got %d", ErrInvalidProperties, len(b))
	}
	d := int(b[0])
	if d >= 9*5*5 {
		return Props{}, fmt.Errorf("%w: properties byte 0x%02x out of range", ErrInvalidProperties, b[0])
	}
	lc := d % 9
	d /= 9
	lp := d % 5
	pb := d / 5
	dictSize := uint32(b[1]) | uint32(b[2])<<8 | uint32(b[3])<<16 | uint32(b[4])<<24
	return validate(Props{LC: lc, LP: lp, PB: pb, DictSize: dictSize})
}

func validate(p Props) (Props, error) {
	if p.LC < 0 || p.LC > 8 || p.LP < 0 || p.LP > 4 || p.PB < 0 || p.PB > 4 || p.LC+p.LP > 4 {
		return Props{}, fmt.Errorf("%w: lc=%d lp=%d pb=%d", ErrInvalidProperties, p.LC, p.LP, p.PB)
	}
	if p.DictSize == 0 {
		p.DictSize = 1
	}
	return p, nil
}

// byteSliceReader adapts a []byte to io.ByteReader, tracking consumption so
// the decoder can report how many compressed bytes it used.
type byteSliceReader struct {
	data []byte
	pos  int
}

func (r *byteSliceReader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// Decoder holds one LZMA decode session's mutable state: probability
// tables, match-length/rep-distance state, and the dictionary window. State
// persists across Decompress calls so LZMA2 can drive the same Decoder across
// many chunks, resetting only the pieces its control byte specifies.
type Decoder struct {
	lc, lp, pb int
	posMask    uint32
	probs      *probTables
	win        *window
	state      uint32
	reps       [4]uint32
}

// NewDecoder creates a Decoder with the given dictionary size. Properties
// must be supplied via SetProps before the first Decompress call.
func NewDecoder(dictSize uint32) *Decoder {
	return &Decoder{win: newWindow(dictSize)}
}

// SetProps installs (lc, lp, pb), rebuilding the literal-probability table
// if the (lc, lp) pair changed. An LZMA2 "properties reset" chunk calls
// this; a plain "state reset" chunk does not.
func (d *Decoder) SetProps(lc, lp, pb int) error {
	p, err := validate(Props{LC: lc, LP: lp, PB: pb, DictSize: 1})
	if err != nil {
		return err
	}
	if d.probs == nil || d.lc != lc || d.lp != lp {
		d.probs = newProbTables(lc, lp)
	}
	d.lc, d.lp, d.pb = lc, lp, pb
	d.posMask = 1<<uint(pb) - 1
	_ = p
	return nil
}

// ResetState clears the match/literal state machine and probability tables
// without touching the dictionary window.
func (d *Decoder) ResetState() {
	d.state = 0
	d.reps = [4]uint32{}
	if d.probs != nil {
		d.probs.reset()
	}
}

// ResetDict clears dictionary history; subsequent match distances may not
// reference bytes written before this call.
func (d *Decoder) ResetDict() {
	d.win.reset()
}

// Absorb advances the dictionary window over n bytes already written into
// out at outPos without running the range coder. LZMA2 uncompressed chunks
// bypass LZMA entirely but must remain visible to later compressed chunks'
// match distances.
func (d *Decoder) Absorb(out []byte, outPos int, n int) {
	d.win.attach(out, outPos)
	d.win.advance(n)
}

func lpMask(lp int) uint32 { return 1<<uint(lp) - 1 }

// Decompress decodes into out[outPos:outPos+size] reading compressed bytes
// from src. allowMarker permits (LZMA2: forbids) the end-of-payload marker;
// when permitted and size is negative the decoder runs until the marker is
// seen. It returns the number of compressed bytes consumed from src.
func (d *Decoder) Decompress(out []byte, outPos int, size int64, src []byte, allowMarker bool) (int, error) {
	if d.probs == nil {
		return 0, fmt.Errorf("%w: properties not set", ErrInvalidProperties)
	}
	r := &byteSliceReader{data: src}
	rc, err := rangecoder.New(r)
	if err != nil {
		return 0, fmt.Errorf("lzma: init range coder: %w", err)
	}
	d.win.attach(out, outPos)

	target := outPos
	if size >= 0 {
		target = outPos + int(size)
	}

	for size < 0 || d.win.pos < target {
		prevByte := byte(0)
		if d.win.total() > 0 {
			b, _ := d.win.byteAt(0)
			prevByte = b
		}
		posState := uint32(d.win.pos) & d.posMask

		isMatch, err := rc.DecodeBit(&d.probs.isMatch[d.state][posState])
		if err != nil {
			return r.pos, err
		}
		if isMatch == 0 {
			sym, err := d.decodeLiteral(rc, prevByte)
			if err != nil {
				return r.pos, err
			}
			d.win.putByte(sym)
			d.state = literalNextState(d.state)
			continue
		}

		isRep, err := rc.DecodeBit(&d.probs.isRep[d.state])
		if err != nil {
			return r.pos, err
		}

		var length uint32
		if isRep == 0 {
			// New distance.
			d.reps[3], d.reps[2], d.reps[1] = d.reps[2], d.reps[1], d.reps[0]

			lenVal, err := d.probs.lenCoder.decode(rc, posState)
			if err != nil {
				return r.pos, err
			}
			length = lenVal + matchMinLen

			lenState := lenVal
			if lenState > numLenToPosStates-1 {
				lenState = numLenToPosStates - 1
			}
			slot, err := bitTreeDecode(rc, d.probs.posSlot[lenState][:], numPosSlotBits)
			if err != nil {
				return r.pos, err
			}

			dist, err := d.decodeDistance(rc, slot)
			if err != nil {
				return r.pos, err
			}
			if dist == 0xFFFFFFFF {
				if !allowMarker {
					return r.pos, fmt.Errorf("lzma: unexpected end marker")
				}
				if size >= 0 && d.win.pos != target {
					return r.pos, fmt.Errorf("lzma: end marker before declared size")
				}
				return r.pos, nil
			}
			d.reps[0] = dist
			d.state = matchNextState(d.state)
		} else {
			isRepG0, err := rc.DecodeBit(&d.probs.isRepG0[d.state])
			if err != nil {
				return r.pos, err
			}
			if isRepG0 == 0 {
				isRep0Long, err := rc.DecodeBit(&d.probs.isRep0Long[d.state][posState])
				if err != nil {
					return r.pos, err
				}
				if isRep0Long == 0 {
					d.state = shortRepNextState(d.state)
					b, err := d.win.byteAt(d.reps[0])
					if err != nil {
						return r.pos, err
					}
					d.win.putByte(b)
					continue
				}
			} else {
				var dist uint32
				isRepG1, err := rc.DecodeBit(&d.probs.isRepG1[d.state])
				if err != nil {
					return r.pos, err
				}
				if isRepG1 == 0 {
					dist = d.reps[1]
				} else {
					isRepG2, err := rc.DecodeBit(&d.probs.isRepG2[d.state])
					if err != nil {
						return r.pos, err
					}
					if isRepG2 == 0 {
						dist = d.reps[2]
					} else {
						dist = d.reps[3]
						d.reps[3] = d.reps[2]
					}
					d.reps[2] = d.reps[1]
				}
				d.reps[1] = d.reps[0]
				d.reps[0] = dist
			}

			lenVal, err := d.probs.repLenCoder.decode(rc, posState)
			if err != nil {
				return r.pos, err
			}
			length = lenVal + matchMinLen
			d.state = repNextState(d.state)
		}

		for i := uint32(0); i < length; i++ {
			if size >= 0 && d.win.pos >= target {
				return r.pos, fmt.Errorf("lzma: match overruns declared size")
			}
			b, err := d.win.byteAt(d.reps[0])
			if err != nil {
				return r.pos, err
			}
			d.win.putByte(b)
		}
	}

	return r.pos, nil
}

func (d *Decoder) decodeDistance(rc *rangecoder.Decoder, slot uint32) (uint32, error) {
	if slot < startPosModelIndex {
		return slot, nil
	}
	numDirectBits := int(slot>>1) - 1
	dist := (2 | (slot & 1)) << uint(numDirectBits)
	if slot < endPosModelIndex {
		v, err := bitTreeReverseDecode(rc, d.probs.posDecoders[:], int(dist-slot), numDirectBits)
		if err != nil {
			return 0, err
		}
		return dist + v, nil
	}
	direct, err := rc.DecodeDirectBits(numDirectBits - numAlignBits)
	if err != nil {
		return 0, err
	}
	dist += direct << numAlignBits
	align, err := bitTreeReverseDecode(rc, d.probs.alignDecoder[:], 0, numAlignBits)
	if err != nil {
		return 0, err
	}
	return dist + align, nil
}

func (d *Decoder) decodeLiteral(rc *rangecoder.Decoder, prevByte byte) (byte, error) {
	litState := ((uint32(d.win.pos) & lpMask(d.lp)) << uint(d.lc)) | uint32(prevByte>>uint(8-d.lc))
	probs := d.probs.literalProbs(litState)

	if d.state < 7 {
		v, err := bitTreeDecode(rc, probs, 8)
		if err != nil {
			return 0, err
		}
		return byte(v), nil
	}

	matchByte, err := d.win.byteAt(d.reps[0])
	if err != nil {
		return 0, err
	}

	symbol := uint32(1)
	for symbol < 0x100 {
		matchBit := uint32(matchByte>>7) & 1
		matchByte <<= 1
		idx := ((1 + matchBit) << 8) + symbol
		bit, err := rc.DecodeBit(&probs[idx])
		if err != nil {
			return 0, err
		}
		symbol = (symbol << 1) | bit
		if matchBit != bit {
			for symbol < 0x100 {
				bit, err := rc.DecodeBit(&probs[symbol])
				if err != nil {
					return 0, err
				}
				symbol = (symbol << 1) | bit
			}
			break
		}
	}
	return byte(symbol), nil
}

func literalNextState(state uint32) uint32 {
	switch {
	case state < 4:
		return 0
	case state < 10:
		return state - 3
	default:
		return state - 6
	}
}

func matchNextState(state uint32) uint32 {
	if state < 7 {
		return 7
	}
	return 10
}

func repNextState(state uint32) uint32 {
	if state < 7 {
		return 8
	}
	return 11
}

func shortRepNextState(state uint32) uint32 {
	if state < 7 {
		return 9
	}
	return 11
}
