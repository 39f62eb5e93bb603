package sevenzip

import (
	"fmt"
	"io"
)

// packSource addresses one folder's pack streams, in the order of the
// folder's PackedIndices, as absolute byte ranges over the archive.
type packSource struct {
	r     io.ReaderAt
	base  int64 // absolute offset of the folder's first pack stream
	sizes []uint64
}

// read returns the raw bytes of the globalIndex'th pack stream in sizes
// (the folder-local pack stream number).
func (p packSource) read(globalIndex int) ([]byte, error) {
	if globalIndex < 0 || globalIndex >= len(p.sizes) {
		return nil, fmt.Errorf("sevenzip: pack stream index %d out of range (have %d)", globalIndex, len(p.sizes))
	}
	var offset int64
	for i := 0; i < globalIndex; i++ {
		offset += int64(p.sizes[i])
	}
	buf := make([]byte, p.sizes[globalIndex])
	if _, err := p.r.ReadAt(buf, p.base+offset); err != nil {
		return nil, fmt.Errorf("sevenzip: read pack stream %d: %w", globalIndex, err)
	}
	return buf, nil
}

// decodeFolder runs the coder-chain orchestrator: it treats the folder as
// a DAG of coder inputs/outputs wired by bind pairs and pack streams,
// resolving outputs on demand starting from the folder's single primary
// (unbound) output. A coder with more than one input stream (only BCJ2,
// in practice) is dispatched through the MultiCodec registry instead of
// Codec; there is no separate "detect BCJ2" step, since BCJ2's four
// inputs are just ordinary folder inputs that happen to come from a mix
// of pack streams and bound coder outputs.
func decodeFolder(f *Folder, src packSource, password string) ([]byte, error) {
	primary, err := f.PrimaryOutStream()
	if err != nil {
		return nil, err
	}

	outOwner := make([]int, f.NumOutStreamsTotal())
	outLocalStart := make([]int, len(f.Coders))
	inLocalStart := make([]int, len(f.Coders))
	{
		outIdx, inIdx := 0, 0
		for ci, c := range f.Coders {
			outLocalStart[ci] = outIdx
			inLocalStart[ci] = inIdx
			for o := 0; o < c.NumOutStreams; o++ {
				outOwner[outIdx] = ci
				outIdx++
			}
			inIdx += c.NumInStreams
		}
	}

	packedLocalIndex := make(map[uint64]int, len(f.PackedIndices))
	for k, globalIn := range f.PackedIndices {
		packedLocalIndex[globalIn] = k
	}

	outputs := make(map[uint64][]byte)
	resolving := make(map[uint64]bool)

	var resolveOutput func(outIdx uint64) ([]byte, error)
	resolveOutput = func(outIdx uint64) ([]byte, error) {
		if buf, ok := outputs[outIdx]; ok {
			return buf, nil
		}
		if resolving[outIdx] {
			return nil, fmt.Errorf("%w: cycle through output stream %d", ErrInvalidFolderGraph, outIdx)
		}
		resolving[outIdx] = true
		defer delete(resolving, outIdx)

		ci := outOwner[outIdx]
		coder := &f.Coders[ci]

		ins := make([][]byte, coder.NumInStreams)
		for k := 0; k < coder.NumInStreams; k++ {
			globalIn := uint64(inLocalStart[ci] + k)
			if localPack, ok := packedLocalIndex[globalIn]; ok {
				data, err := src.read(localPack)
				if err != nil {
					return nil, err
				}
				ins[k] = data
				continue
			}
			bp, ok := f.FindBindPairForInStream(globalIn)
			if !ok {
				return nil, fmt.Errorf("%w: input stream %d is neither packed nor bound", ErrInvalidFolderGraph, globalIn)
			}
			data, err := resolveOutput(bp.OutIndex)
			if err != nil {
				return nil, err
			}
			ins[k] = data
		}

		if int(outIdx) >= len(f.UnpackSizes) {
			return nil, fmt.Errorf("%w: missing unpack size for output %d", ErrInvalidFolderGraph, outIdx)
		}
		unpackSize := f.UnpackSizes[outIdx]
		opts := CoderOptions{
			UnpackSize:    int64(unpackSize),
			NumInStreams:  coder.NumInStreams,
			NumOutStreams: coder.NumOutStreams,
			Password:      password,
		}

		dst := make([]byte, unpackSize)
		var n int
		var err error
		if coder.NumInStreams > 1 {
			var mc MultiCodec
			mc, err = GetMultiCodec(NewMethod(coder.MethodID), coder.Properties, opts)
			if err != nil {
				return nil, err
			}
			n, err = mc.DecompressMulti(dst, ins)
		} else {
			var c Codec
			c, err = GetCodec(NewMethod(coder.MethodID), coder.Properties, opts)
			if err != nil {
				return nil, err
			}
			n, err = c.Decompress(dst, ins[0])
		}
		if err != nil {
			return nil, fmt.Errorf("sevenzip: coder %d (method % x): %w", ci, coder.MethodID, err)
		}
		dst = dst[:n]
		outputs[outIdx] = dst
		return dst, nil
	}

	return resolveOutput(primary)
}
