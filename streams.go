package sevenzip

import (
	"fmt"
	"io"
)

// Property ids used throughout the NextHeader property graph.
const (
	idEnd                = 0x00
	idHeader             = 0x01
	idArchiveProperties  = 0x02
	idAdditionalStreams  = 0x03
	idMainStreamsInfo    = 0x04
	idFilesInfo          = 0x05
	idPackInfo           = 0x06
	idUnpackInfo         = 0x07
	idSubStreamsInfo     = 0x08
	idSize               = 0x09
	idCRC                = 0x0a
	idFolder             = 0x0b
	idCodersUnpackSize   = 0x0c
	idNumUnpackStream    = 0x0d
	idEmptyStream        = 0x0e
	idEmptyFile          = 0x0f
	idAnti               = 0x10
	idName               = 0x11
	idCTime              = 0x12
	idATime              = 0x13
	idMTime              = 0x14
	idWinAttributes      = 0x15
	idComment            = 0x16
	idEncodedHeader      = 0x17
	idStartPos           = 0x18
	idDummy              = 0x19
)

// PackInfo gives the archive-relative position and sizes of the folders'
// raw packed byte ranges.
type PackInfo struct {
	PackPos        uint64
	NumPackStreams uint64
	PackSizes      []uint64
	PackCRCDefined []bool
	PackCRC        []uint32
}

// CoderInfo is one coder (compression method, filter, or BCJ2
// recombinator) within a Folder, decoded from the folder's coder flag
// byte.
type CoderInfo struct {
	MethodID      []byte
	NumInStreams  int
	NumOutStreams int
	Properties    []byte
}

// BindPair connects one coder's input stream to another coder's output
// stream within a Folder, forming the folder's dataflow DAG.
type BindPair struct {
	InIndex  uint64
	OutIndex uint64
}

// Folder is one solid group: a list of coders wired by bind pairs, plus
// the subset of global input-stream indices fed directly from packed data
// rather than another coder's output.
type Folder struct {
	Coders              []CoderInfo
	BindPairs           []BindPair
	PackedIndices       []uint64 // indices into the folder's global input streams fed by pack streams, in pack-stream order
	UnpackSizes         []uint64 // one per coder output stream, in the same global numbering as BindPairs/PackedIndices
	UnpackCRCDefined    bool
	UnpackCRC           uint32
	NumUnpackSubStreams int
}

// NumOutStreamsTotal returns the folder's global out-stream count (sum of
// every coder's NumOutStreams).
func (f *Folder) NumOutStreamsTotal() int {
	n := 0
	for _, c := range f.Coders {
		n += c.NumOutStreams
	}
	return n
}

// NumInStreamsTotal returns the folder's global in-stream count (sum of
// every coder's NumInStreams).
func (f *Folder) NumInStreamsTotal() int {
	n := 0
	for _, c := range f.Coders {
		n += c.NumInStreams
	}
	return n
}

// FindBindPairForInStream returns the bind pair binding the given global
// in-stream index, if any.
func (f *Folder) FindBindPairForInStream(inIndex uint64) (*BindPair, bool) {
	for i := range f.BindPairs {
		if f.BindPairs[i].InIndex == inIndex {
			return &f.BindPairs[i], true
		}
	}
	return nil, false
}

// FindBindPairForOutStream returns the bind pair binding the given global
// out-stream index, if any.
func (f *Folder) FindBindPairForOutStream(outIndex uint64) (*BindPair, bool) {
	for i := range f.BindPairs {
		if f.BindPairs[i].OutIndex == outIndex {
			return &f.BindPairs[i], true
		}
	}
	return nil, false
}

// PrimaryOutStream returns the folder's single unbound output index — the
// folder's primary output — or an error if zero or more than one output
// stream lacks a binding (InvalidFolderGraph).
func (f *Folder) PrimaryOutStream() (uint64, error) {
	var found []uint64
	for out := 0; out < f.NumOutStreamsTotal(); out++ {
		if _, bound := f.FindBindPairForOutStream(uint64(out)); !bound {
			found = append(found, uint64(out))
		}
	}
	if len(found) != 1 {
		return 0, fmt.Errorf("%w: folder has %d unbound output streams, want 1", ErrInvalidFolderGraph, len(found))
	}
	return found[0], nil
}

// UnpackInfo carries the archive's folder definitions.
type UnpackInfo struct {
	Folders []Folder
}

// SubStreamsInfo refines each folder's single unpack size into per-entry
// substream sizes and CRCs for solid groups holding multiple files.
type SubStreamsInfo struct {
	NumUnpackStreamsInFolders []uint64
	UnpackSizes               []uint64
	CRCDefined                []bool
	CRCs                      []uint32
}

// StreamsInfo aggregates PackInfo/UnpackInfo/SubStreamsInfo, the three
// sections that together describe the archive's pack ranges and how to
// decode them into entries' byte streams.
type StreamsInfo struct {
	PackInfo       *PackInfo
	UnpackInfo     *UnpackInfo
	SubStreamsInfo *SubStreamsInfo
}

type byteReader interface {
	io.Reader
	io.ByteReader
}

func parseStreamsInfo(r byteReader) (*StreamsInfo, error) {
	info := &StreamsInfo{}
	for {
		id, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: read StreamsInfo property id: %w", err)
		}
		if id == idEnd {
			break
		}
		switch id {
		case idPackInfo:
			info.PackInfo, err = parsePackInfo(r)
		case idUnpackInfo:
			info.UnpackInfo, err = parseUnpackInfo(r)
		case idSubStreamsInfo:
			info.SubStreamsInfo, err = parseSubStreamsInfo(r, info.UnpackInfo)
		default:
			return nil, fmt.Errorf("%w: 0x%02x in StreamsInfo", ErrUnexpectedProperty, id)
		}
		if err != nil {
			return nil, err
		}
	}
	if info.UnpackInfo != nil && info.SubStreamsInfo == nil {
		info.SubStreamsInfo = defaultSubStreamsInfo(info.UnpackInfo)
	}
	return info, nil
}

func defaultSubStreamsInfo(ui *UnpackInfo) *SubStreamsInfo {
	ssi := &SubStreamsInfo{
		NumUnpackStreamsInFolders: make([]uint64, len(ui.Folders)),
	}
	for i, f := range ui.Folders {
		ssi.NumUnpackStreamsInFolders[i] = 1
		out, err := f.PrimaryOutStream()
		if err == nil && int(out) < len(f.UnpackSizes) {
			ssi.UnpackSizes = append(ssi.UnpackSizes, f.UnpackSizes[out])
		}
	}
	return ssi
}

func parsePackInfo(r byteReader) (*PackInfo, error) {
	pi := &PackInfo{}
	var err error
	if pi.PackPos, err = readNumber(r); err != nil {
		return nil, err
	}
	if pi.NumPackStreams, err = readNumber(r); err != nil {
		return nil, err
	}
	for {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if id == idEnd {
			break
		}
		switch id {
		case idSize:
			pi.PackSizes = make([]uint64, pi.NumPackStreams)
			for i := range pi.PackSizes {
				if pi.PackSizes[i], err = readNumber(r); err != nil {
					return nil, err
				}
			}
		case idCRC:
			defined, err := readAllOrBitVector(r, int(pi.NumPackStreams))
			if err != nil {
				return nil, err
			}
			pi.PackCRCDefined = defined
			pi.PackCRC = make([]uint32, pi.NumPackStreams)
			for i, d := range defined {
				if d {
					if pi.PackCRC[i], err = readUint32(r); err != nil {
						return nil, err
					}
				}
			}
		default:
			return nil, fmt.Errorf("%w: 0x%02x in PackInfo", ErrUnexpectedProperty, id)
		}
	}
	return pi, nil
}

func parseFolder(r byteReader) (Folder, error) {
	var f Folder
	numCoders, err := readNumber(r)
	if err != nil {
		return f, err
	}
	f.Coders = make([]CoderInfo, numCoders)
	for i := range f.Coders {
		c := &f.Coders[i]
		flags, err := r.ReadByte()
		if err != nil {
			return f, err
		}
		idSize := int(flags & 0x0F)
		isComplex := flags&0x10 != 0
		hasAttrs := flags&0x20 != 0
		if flags&0x80 != 0 {
			return f, fmt.Errorf("%w: coder flag byte 0x%02x sets reserved bit 7", ErrUnexpectedProperty, flags)
		}
		c.MethodID = make([]byte, idSize)
		if _, err := io.ReadFull(r, c.MethodID); err != nil {
			return f, err
		}
		if isComplex {
			in, err := readNumber(r)
			if err != nil {
				return f, err
			}
			out, err := readNumber(r)
			if err != nil {
				return f, err
			}
			c.NumInStreams, c.NumOutStreams = int(in), int(out)
		} else {
			c.NumInStreams, c.NumOutStreams = 1, 1
		}
		if hasAttrs {
			propSize, err := readNumber(r)
			if err != nil {
				return f, err
			}
			c.Properties = make([]byte, propSize)
			if _, err := io.ReadFull(r, c.Properties); err != nil {
				return f, err
			}
		}
	}

	numOutTotal := f.NumOutStreamsTotal()
	numInTotal := f.NumInStreamsTotal()
	numBindPairs := numOutTotal - 1
	if numBindPairs < 0 {
		return f, fmt.Errorf("%w: folder has no output streams", ErrInvalidFolderGraph)
	}
	f.BindPairs = make([]BindPair, numBindPairs)
	for i := range f.BindPairs {
		in, err := readNumber(r)
		if err != nil {
			return f, err
		}
		out, err := readNumber(r)
		if err != nil {
			return f, err
		}
		f.BindPairs[i] = BindPair{InIndex: in, OutIndex: out}
	}

	numPackedStreams := numInTotal - numBindPairs
	if numPackedStreams < 0 {
		return f, fmt.Errorf("%w: folder bind pairs exceed its input streams", ErrInvalidFolderGraph)
	}
	if numPackedStreams == 1 {
		for in := 0; in < numInTotal; in++ {
			if _, bound := f.FindBindPairForInStream(uint64(in)); !bound {
				f.PackedIndices = []uint64{uint64(in)}
				break
			}
		}
	} else {
		f.PackedIndices = make([]uint64, numPackedStreams)
		for i := range f.PackedIndices {
			idx, err := readNumber(r)
			if err != nil {
				return f, err
			}
			f.PackedIndices[i] = idx
		}
	}
	return f, nil
}

func parseUnpackInfo(r byteReader) (*UnpackInfo, error) {
	id, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if id != idFolder {
		return nil, fmt.Errorf("%w: expected kFolder, got 0x%02x", ErrUnexpectedProperty, id)
	}
	numFolders, err := readNumber(r)
	if err != nil {
		return nil, err
	}
	external, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if external != 0 {
		return nil, fmt.Errorf("%w: external folder definitions are not supported", ErrUnexpectedProperty)
	}

	ui := &UnpackInfo{Folders: make([]Folder, numFolders)}
	for i := range ui.Folders {
		f, err := parseFolder(r)
		if err != nil {
			return nil, err
		}
		ui.Folders[i] = f
	}

	id, err = r.ReadByte()
	if err != nil {
		return nil, err
	}
	if id != idCodersUnpackSize {
		return nil, fmt.Errorf("%w: expected kCodersUnpackSize, got 0x%02x", ErrUnexpectedProperty, id)
	}
	for i := range ui.Folders {
		f := &ui.Folders[i]
		n := f.NumOutStreamsTotal()
		f.UnpackSizes = make([]uint64, n)
		for j := 0; j < n; j++ {
			if f.UnpackSizes[j], err = readNumber(r); err != nil {
				return nil, err
			}
		}
	}

	for {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if id == idEnd {
			break
		}
		switch id {
		case idCRC:
			defined, err := readAllOrBitVector(r, len(ui.Folders))
			if err != nil {
				return nil, err
			}
			for i, d := range defined {
				ui.Folders[i].UnpackCRCDefined = d
				if d {
					if ui.Folders[i].UnpackCRC, err = readUint32(r); err != nil {
						return nil, err
					}
				}
			}
		default:
			if err := skipProperty(r); err != nil {
				return nil, err
			}
		}
	}
	return ui, nil
}

func parseSubStreamsInfo(r byteReader, ui *UnpackInfo) (*SubStreamsInfo, error) {
	ssi := &SubStreamsInfo{}
	numFolders := 0
	if ui != nil {
		numFolders = len(ui.Folders)
	}
	ssi.NumUnpackStreamsInFolders = make([]uint64, numFolders)
	for i := range ssi.NumUnpackStreamsInFolders {
		ssi.NumUnpackStreamsInFolders[i] = 1
	}

	haveNumUnpackStream := false
	id, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if id == idNumUnpackStream {
		haveNumUnpackStream = true
		for i := range ssi.NumUnpackStreamsInFolders {
			n, err := readNumber(r)
			if err != nil {
				return nil, err
			}
			ssi.NumUnpackStreamsInFolders[i] = n
		}
		if id, err = r.ReadByte(); err != nil {
			return nil, err
		}
	}
	_ = haveNumUnpackStream

	// Sizes: for each folder, all but the last of its substreams get an
	// explicit size; the last is derived from the folder's total minus the
	// sum of the explicit ones.
	if id == idSize {
		for fi := range ssi.NumUnpackStreamsInFolders {
			n := ssi.NumUnpackStreamsInFolders[fi]
			if n == 0 {
				continue
			}
			var sum uint64
			for i := uint64(0); i < n-1; i++ {
				sz, err := readNumber(r)
				if err != nil {
					return nil, err
				}
				ssi.UnpackSizes = append(ssi.UnpackSizes, sz)
				sum += sz
			}
			folderTotal, terr := folderUnpackTotal(ui, fi)
			if terr != nil {
				return nil, terr
			}
			ssi.UnpackSizes = append(ssi.UnpackSizes, folderTotal-sum)
		}
		if id, err = r.ReadByte(); err != nil {
			return nil, err
		}
	} else {
		for fi := range ssi.NumUnpackStreamsInFolders {
			if ssi.NumUnpackStreamsInFolders[fi] != 1 {
				continue
			}
			folderTotal, terr := folderUnpackTotal(ui, fi)
			if terr != nil {
				return nil, terr
			}
			ssi.UnpackSizes = append(ssi.UnpackSizes, folderTotal)
		}
	}

	numDigestsNeeded := 0
	for fi, n := range ssi.NumUnpackStreamsInFolders {
		if n == 1 && ui != nil && ui.Folders[fi].UnpackCRCDefined {
			continue
		}
		numDigestsNeeded += int(n)
	}

	for id != idEnd {
		switch id {
		case idCRC:
			defined, err := readAllOrBitVector(r, numDigestsNeeded)
			if err != nil {
				return nil, err
			}
			crcs := make([]uint32, numDigestsNeeded)
			for i, d := range defined {
				if d {
					if crcs[i], err = readUint32(r); err != nil {
						return nil, err
					}
				}
			}
			ssi.CRCDefined, ssi.CRCs = expandSubStreamCRCs(ui, ssi.NumUnpackStreamsInFolders, defined, crcs)
		default:
			if err := skipProperty(r); err != nil {
				return nil, err
			}
		}
		if id, err = r.ReadByte(); err != nil {
			return nil, err
		}
	}
	return ssi, nil
}

// expandSubStreamCRCs merges digests explicitly stored here with the ones
// already known from a folder's own UnpackCRC: a folder's own CRC is
// reused for its substream when that folder has exactly one substream.
func expandSubStreamCRCs(ui *UnpackInfo, counts []uint64, stored []bool, storedCRCs []uint32) ([]bool, []uint32) {
	var defined []bool
	var crcs []uint32
	si := 0
	for fi, n := range counts {
		if n == 1 && ui != nil && ui.Folders[fi].UnpackCRCDefined {
			defined = append(defined, true)
			crcs = append(crcs, ui.Folders[fi].UnpackCRC)
			continue
		}
		for i := uint64(0); i < n; i++ {
			if si < len(stored) {
				defined = append(defined, stored[si])
				crcs = append(crcs, storedCRCs[si])
				si++
			}
		}
	}
	return defined, crcs
}

func folderUnpackTotal(ui *UnpackInfo, folderIndex int) (uint64, error) {
	if ui == nil || folderIndex >= len(ui.Folders) {
		return 0, fmt.Errorf("%w: substream size refers to missing folder %d", ErrInvalidFolderGraph, folderIndex)
	}
	f := &ui.Folders[folderIndex]
	out, err := f.PrimaryOutStream()
	if err != nil {
		return 0, err
	}
	if int(out) >= len(f.UnpackSizes) {
		return 0, fmt.Errorf("%w: primary output index out of range", ErrInvalidFolderGraph)
	}
	return f.UnpackSizes[out], nil
}

// readAllOrBitVector decodes the "AllAreDefined" byte 7-Zip uses before
// every digest/CRC list: 1 means every item is defined (and no bit vector
// follows); 0 means a packed MSB-first bit vector of numItems bits follows.
func readAllOrBitVector(r byteReader, numItems int) ([]bool, error) {
	allDefined, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if allDefined != 0 {
		out := make([]bool, numItems)
		for i := range out {
			out[i] = true
		}
		return out, nil
	}
	return readBitVector(r, numItems)
}

// readBitVector reads a packed, MSB-first bit vector of numItems bits.
func readBitVector(r byteReader, numItems int) ([]bool, error) {
	out := make([]bool, numItems)
	var cur byte
	var mask byte
	for i := 0; i < numItems; i++ {
		if mask == 0 {
			b, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidBitVector, err)
			}
			cur = b
			mask = 0x80
		}
		out[i] = cur&mask != 0
		mask >>= 1
	}
	return out, nil
}

func skipProperty(r byteReader) error {
	size, err := readNumber(r)
	if err != nil {
		return err
	}
	_, err = io.CopyN(io.Discard, r, int64(size))
	return err
}
