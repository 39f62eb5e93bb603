package sevenzip

import (
	"hash/crc32"
	"io"
	"testing"

	lru "github.com/hashicorp/golang-lru/v2"
)

// fakeReaderAt serves bytes from an in-memory buffer, standing in for an
// archive's raw backing file in tests that don't need a real filesystem.
type fakeReaderAt struct {
	data []byte
}

func (f *fakeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func newCopyFolderReader(t *testing.T, content string, crc uint32, hasCRC bool) (*Reader, *Folder) {
	t.Helper()
	data := make([]byte, signatureHeaderSize+len(content))
	copy(data[signatureHeaderSize:], content)

	folder := Folder{
		Coders: []CoderInfo{{
			MethodID:      []byte(MethodCopy),
			NumInStreams:  1,
			NumOutStreams: 1,
		}},
		PackedIndices:    []uint64{0},
		UnpackSizes:      []uint64{uint64(len(content))},
		UnpackCRCDefined: hasCRC,
		UnpackCRC:        crc,
	}

	cache, err := lru.New[int, []byte](defaultFolderCacheSize)
	if err != nil {
		t.Fatalf("lru.New: %v", err)
	}

	r := &Reader{
		ra: &fakeReaderAt{data: data},
		streamsInfo: &StreamsInfo{
			PackInfo:   &PackInfo{PackPos: 0, PackSizes: []uint64{uint64(len(content))}},
			UnpackInfo: &UnpackInfo{Folders: []Folder{folder}},
		},
		cache: cache,
	}
	return r, &r.streamsInfo.UnpackInfo.Folders[0]
}

func TestDecodeFolderCachedDecodesAndCaches(t *testing.T) {
	r, _ := newCopyFolderReader(t, "hello", 0, false)

	got, err := r.decodeFolderCached(0)
	if err != nil {
		t.Fatalf("decodeFolderCached: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}

	if _, ok := r.cache.Get(0); !ok {
		t.Fatal("folder 0 was not cached after decoding")
	}
}

func TestDecodeFolderCachedDetectsCRCMismatch(t *testing.T) {
	r, _ := newCopyFolderReader(t, "hello", 0xdeadbeef, true)

	if _, err := r.decodeFolderCached(0); err == nil {
		t.Fatal("expected a CRC mismatch error, got nil")
	}
}

func TestOpenReturnsEmptyReaderForDirectories(t *testing.T) {
	r, _ := newCopyFolderReader(t, "hello", 0, false)
	f := &File{FileEntry: FileEntry{Name: "adir", IsDir: true}}

	rc, err := r.Open(f)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d bytes, want 0", len(got))
	}
}

func TestOpenVerifiesEntryCRCOnClose(t *testing.T) {
	content := "hello"
	crc := crc32.ChecksumIEEE([]byte(content))
	r, _ := newCopyFolderReader(t, content, crc, true)

	f := &File{FileEntry: FileEntry{Name: "f.txt", HasStream: true}}
	f.folderIndex = 0
	f.offsetInFolder = 0
	f.size = int64(len(content))
	f.crc = crc
	f.hasCRC = true

	rc, err := r.Open(f)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != content {
		t.Fatalf("got %q, want %q", got, content)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenReportsEntryCRCMismatchOnClose(t *testing.T) {
	content := "hello"
	r, _ := newCopyFolderReader(t, content, 0, false)

	f := &File{FileEntry: FileEntry{Name: "f.txt", HasStream: true}}
	f.folderIndex = 0
	f.offsetInFolder = 0
	f.size = int64(len(content))
	f.crc = 0xdeadbeef
	f.hasCRC = true

	rc, err := r.Open(f)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := io.ReadAll(rc); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := rc.Close(); err == nil {
		t.Fatal("expected a CRC mismatch error from Close, got nil")
	}
}

func TestIndexFilesAssignsSubstreamsInDeclarationOrder(t *testing.T) {
	r := &Reader{
		streamsInfo: &StreamsInfo{
			SubStreamsInfo: &SubStreamsInfo{
				NumUnpackStreamsInFolders: []uint64{2},
				UnpackSizes:               []uint64{3, 4},
				CRCDefined:                []bool{true, false},
				CRCs:                      []uint32{0x11111111, 0},
			},
		},
	}
	fi := &FilesInfo{Entries: []FileEntry{
		{Name: "a", HasStream: true},
		{Name: "dir", IsDir: true},
		{Name: "b", HasStream: true},
	}}

	if err := r.indexFiles(fi); err != nil {
		t.Fatalf("indexFiles: %v", err)
	}
	if len(r.files) != 3 {
		t.Fatalf("got %d files, want 3", len(r.files))
	}

	fa, fdir, fb := r.files[0], r.files[1], r.files[2]
	if fa.size != 3 || fa.offsetInFolder != 0 || !fa.hasCRC || fa.crc != 0x11111111 {
		t.Fatalf("file a: %+v", fa)
	}
	if fdir.HasStream {
		t.Fatalf("directory entry unexpectedly has a stream: %+v", fdir)
	}
	if fb.size != 4 || fb.offsetInFolder != 3 || fb.hasCRC {
		t.Fatalf("file b: %+v", fb)
	}
}

func TestPackSourceForFolderComputesOffsets(t *testing.T) {
	r := &Reader{
		ra: &fakeReaderAt{},
		streamsInfo: &StreamsInfo{
			PackInfo: &PackInfo{PackPos: 0, PackSizes: []uint64{5, 7}},
			UnpackInfo: &UnpackInfo{Folders: []Folder{
				{PackedIndices: []uint64{0}},
				{PackedIndices: []uint64{0}},
			}},
		},
	}
	src, err := r.packSourceForFolder(1)
	if err != nil {
		t.Fatalf("packSourceForFolder: %v", err)
	}
	if src.base != int64(signatureHeaderSize)+5 {
		t.Fatalf("base = %d, want %d", src.base, int64(signatureHeaderSize)+5)
	}
	if len(src.sizes) != 1 || src.sizes[0] != 7 {
		t.Fatalf("sizes = %v, want [7]", src.sizes)
	}
}
