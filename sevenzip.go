// Package sevenzip parses and extracts 7-Zip (.7z) archives: the
// container's property-tagged header graph, the LZMA/LZMA2 range-coded
// decoder, the BCJ/BCJ2 executable pre-filters, and the Delta filter that
// together make up its coder chain. See spec.md and SPEC_FULL.md for the
// format this package implements.
package sevenzip

import (
	"bytes"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/bodgit/plumbing"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// defaultFolderCacheSize bounds how many solid folders' decoded output
// Reader keeps resident at once. A folder can bundle many small files
// behind one decompression, so re-reading files from the same folder
// without re-decoding it matters for archives with large solid groups.
const defaultFolderCacheSize = 4

// File is one archive entry, with enough folder/substream bookkeeping for
// Reader.Open to materialize its bytes on demand.
type File struct {
	FileEntry

	folderIndex    int
	offsetInFolder int64
	size           int64
	crc            uint32
	hasCRC         bool
}

// Size returns the entry's uncompressed size in bytes (0 for directories).
func (f *File) Size() int64 { return f.size }

// Reader reads a 7-Zip archive's directory and extracts its entries.
type Reader struct {
	ra       io.ReaderAt
	password string

	streamsInfo *StreamsInfo
	files       []*File

	cache *lru.Cache[int, []byte]

	// diagnostics collects the folder failures Open reports: a folder whose
	// coder chain can't be resolved (missing volume, unsupported method)
	// doesn't abort the whole archive, it just makes that folder's entries
	// unreadable.
	diagnostics []error
}

// OpenReader opens a 7-Zip archive by path, probing for split-archive
// volumes if name matches a numbered or lettered volume pattern.
func OpenReader(name, password string) (*Reader, error) {
	vs, err := OpenVolumes(afero.NewOsFs(), name)
	if err != nil {
		return nil, err
	}
	return NewReader(vs, vs.Size(), password)
}

// NewReader opens a 7-Zip archive from ra, which must expose size total
// bytes (the concatenated length of all volumes, for split archives).
func NewReader(ra io.ReaderAt, size int64, password string) (*Reader, error) {
	if size < signatureHeaderSize {
		return nil, ErrTruncatedStartHeader
	}
	sh, err := parseStartHeader(ra)
	if err != nil {
		return nil, err
	}
	raw, err := readNextHeader(ra, sh)
	if err != nil {
		return nil, err
	}
	header, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}

	cache, err := lru.New[int, []byte](defaultFolderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("sevenzip: create folder cache: %w", err)
	}

	r := &Reader{
		ra:          ra,
		password:    password,
		streamsInfo: header.StreamsInfo,
		cache:       cache,
	}
	if err := r.indexFiles(header.FilesInfo); err != nil {
		return nil, err
	}
	return r, nil
}

// indexFiles walks FilesInfo entries in declaration order, assigning each
// entry with a stream to the next substream in folder order: non-empty-
// stream entries line up with SubStreamsInfo in declaration order.
func (r *Reader) indexFiles(fi *FilesInfo) error {
	if fi == nil {
		return nil
	}
	r.files = make([]*File, len(fi.Entries))

	var folderIdx, subIdx int
	var offset int64
	ssi := r.ssi()

	advance := func() (folder int, off int64, size int64, crc uint32, hasCRC bool, err error) {
		for ssi != nil && folderIdx < len(ssi.NumUnpackStreamsInFolders) && subIdx >= int(ssi.NumUnpackStreamsInFolders[folderIdx]) {
			folderIdx++
			subIdx = 0
			offset = 0
		}
		if ssi == nil || folderIdx >= len(ssi.NumUnpackStreamsInFolders) {
			return 0, 0, 0, 0, false, fmt.Errorf("%w: more file entries with streams than substreams", ErrInvalidFolderGraph)
		}
		flatIndex := flatSubstreamIndex(ssi, folderIdx, subIdx)
		if flatIndex >= len(ssi.UnpackSizes) {
			return 0, 0, 0, 0, false, fmt.Errorf("%w: missing substream size", ErrInvalidFolderGraph)
		}
		sz := int64(ssi.UnpackSizes[flatIndex])
		var c uint32
		var has bool
		if flatIndex < len(ssi.CRCDefined) && ssi.CRCDefined[flatIndex] {
			c, has = ssi.CRCs[flatIndex], true
		}
		f, o := folderIdx, offset
		offset += sz
		subIdx++
		return f, o, sz, c, has, nil
	}

	for i := range fi.Entries {
		e := fi.Entries[i]
		f := &File{FileEntry: e}
		if e.HasStream {
			folder, off, sz, crc, hasCRC, err := advance()
			if err != nil {
				return err
			}
			f.folderIndex, f.offsetInFolder, f.size, f.crc, f.hasCRC = folder, off, sz, crc, hasCRC
		}
		r.files[i] = f
	}
	return nil
}

func (r *Reader) ssi() *SubStreamsInfo {
	if r.streamsInfo == nil {
		return nil
	}
	return r.streamsInfo.SubStreamsInfo
}

// flatSubstreamIndex converts a (folder, local substream) pair into
// SubStreamsInfo's flat size/CRC index.
func flatSubstreamIndex(ssi *SubStreamsInfo, folder, local int) int {
	idx := 0
	for i := 0; i < folder; i++ {
		idx += int(ssi.NumUnpackStreamsInFolders[i])
	}
	return idx + local
}

// Files returns every entry in the archive, in declaration order.
func (r *Reader) Files() []*File { return r.files }

// Diagnostics returns the folder-level errors encountered while reading
// entries so far, most recent last.
func (r *Reader) Diagnostics() []error { return r.diagnostics }

// Open returns a reader over f's decompressed content. Directories return
// an empty reader. The returned reader verifies f's stored CRC (if any) as
// its bytes are consumed, reporting a mismatch from Close rather than Read,
// mirroring bodgit/sevenzip's tee-the-hash-while-reading folder reader.
func (r *Reader) Open(f *File) (io.ReadCloser, error) {
	if f.IsDir || !f.HasStream {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	folderData, err := r.decodeFolderCached(f.folderIndex)
	if err != nil {
		err = fmt.Errorf("sevenzip: open %q: %w", f.Name, err)
		r.diagnostics = append(r.diagnostics, err)
		return nil, err
	}
	if f.offsetInFolder+f.size > int64(len(folderData)) {
		return nil, fmt.Errorf("%w: entry %q extends past its folder's decoded size", ErrInvalidFolderGraph, f.Name)
	}
	data := folderData[f.offsetInFolder : f.offsetInFolder+f.size]

	base := plumbing.LimitReadCloser(io.NopCloser(bytes.NewReader(data)), f.size)
	h := crc32.NewIEEE()
	return &crcVerifyingReadCloser{
		ReadCloser: plumbing.TeeReadCloser(base, h),
		hash:       h,
		name:       f.Name,
		want:       f.crc,
		hasCRC:     f.hasCRC,
	}, nil
}

// crcVerifyingReadCloser checks its entry's stored CRC-32 once the caller
// has read it to completion and closed it.
type crcVerifyingReadCloser struct {
	io.ReadCloser
	hash   hash.Hash32
	name   string
	want   uint32
	hasCRC bool
}

func (c *crcVerifyingReadCloser) Close() error {
	if err := c.ReadCloser.Close(); err != nil {
		return err
	}
	if c.hasCRC {
		if got := c.hash.Sum32(); got != c.want {
			return &CrcMismatchError{Name: c.name, Expected: c.want, Actual: got}
		}
	}
	return nil
}

// decodeFolderCached decodes folder i, serving repeat calls for the same
// solid folder from Reader.cache instead of re-running the coder chain:
// a solid group is decoded again only after the cache (defaultFolderCacheSize
// folders, least recently used first) has evicted it.
func (r *Reader) decodeFolderCached(i int) ([]byte, error) {
	if data, ok := r.cache.Get(i); ok {
		return data, nil
	}
	if r.streamsInfo == nil || r.streamsInfo.UnpackInfo == nil || i >= len(r.streamsInfo.UnpackInfo.Folders) {
		return nil, fmt.Errorf("%w: folder %d does not exist", ErrInvalidFolderGraph, i)
	}
	folder := &r.streamsInfo.UnpackInfo.Folders[i]
	src, err := r.packSourceForFolder(i)
	if err != nil {
		return nil, &FolderError{FolderIndex: i, Err: err}
	}
	data, err := decodeFolder(folder, src, r.password)
	if err != nil {
		return nil, &FolderError{FolderIndex: i, Err: err}
	}
	if folder.UnpackCRCDefined && !verifyCRC32(data, folder.UnpackCRC) {
		err := &CrcMismatchError{Expected: folder.UnpackCRC, Actual: checksumCRC32(data)}
		return nil, &FolderError{FolderIndex: i, Err: err}
	}
	r.cache.Add(i, data)
	return data, nil
}

// packSourceForFolder computes folder i's absolute byte range within
// PackInfo's flat, archive-wide pack stream list.
func (r *Reader) packSourceForFolder(i int) (packSource, error) {
	pi := r.streamsInfo.PackInfo
	ui := r.streamsInfo.UnpackInfo
	if pi == nil || ui == nil {
		return packSource{}, fmt.Errorf("%w: missing pack/unpack info", ErrInvalidFolderGraph)
	}
	packStart := 0
	for j := 0; j < i; j++ {
		packStart += len(ui.Folders[j].PackedIndices)
	}
	count := len(ui.Folders[i].PackedIndices)
	if packStart+count > len(pi.PackSizes) {
		return packSource{}, fmt.Errorf("%w: folder %d's pack streams exceed PackInfo", ErrInvalidFolderGraph, i)
	}

	var base int64 = int64(signatureHeaderSize) + int64(pi.PackPos)
	for j := 0; j < packStart; j++ {
		base += int64(pi.PackSizes[j])
	}
	return packSource{r: r.ra, base: base, sizes: pi.PackSizes[packStart : packStart+count]}, nil
}
