package sevenzip

import (
	"fmt"
	"io"
	"time"

	"github.com/bodgit/windows"
	"github.com/icza/bitio"
	"golang.org/x/text/encoding/unicode"
)

// FileEntry describes one archive entry from FilesInfo, before it has been
// matched up against a folder's decoded substreams.
type FileEntry struct {
	Name       string
	IsDir      bool
	IsAnti     bool
	HasStream  bool
	Attributes uint32
	HasMTime   bool
	MTime      time.Time
	HasCTime   bool
	CTime      time.Time
	HasATime   bool
	ATime      time.Time
}

// FilesInfo is the parsed FilesInfo property block: every archive entry in
// declaration order, interleaved empty/directory/anti-item and regular
// files alike.
type FilesInfo struct {
	Entries []FileEntry
}

func parseFilesInfo(r byteReader) (*FilesInfo, error) {
	numFiles, err := readNumber(r)
	if err != nil {
		return nil, err
	}
	fi := &FilesInfo{Entries: make([]FileEntry, numFiles)}

	var emptyStream []bool
	var emptyFile []bool
	var anti []bool
	numEmptyStreams := 0

	for {
		id, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: read FilesInfo property id: %w", err)
		}
		if id == idEnd {
			break
		}
		size, err := readNumber(r)
		if err != nil {
			return nil, err
		}
		lr := io.LimitReader(r, int64(size))
		plr := &limitedByteReader{lr}

		switch id {
		case idEmptyStream:
			emptyStream, err = readBitVectorExact(plr, int(numFiles))
			if err != nil {
				return nil, err
			}
			for _, v := range emptyStream {
				if v {
					numEmptyStreams++
				}
			}
		case idEmptyFile:
			emptyFile, err = readBitVectorExact(plr, numEmptyStreams)
		case idAnti:
			anti, err = readBitVectorExact(plr, numEmptyStreams)
		case idName:
			err = parseNames(plr, fi.Entries)
		case idCTime:
			err = parseTimes(plr, fi.Entries, int(numFiles), func(e *FileEntry, t time.Time) { e.HasCTime, e.CTime = true, t })
		case idATime:
			err = parseTimes(plr, fi.Entries, int(numFiles), func(e *FileEntry, t time.Time) { e.HasATime, e.ATime = true, t })
		case idMTime:
			err = parseTimes(plr, fi.Entries, int(numFiles), func(e *FileEntry, t time.Time) { e.HasMTime, e.MTime = true, t })
		case idWinAttributes:
			err = parseWinAttributes(plr, fi.Entries, int(numFiles))
		default:
			// idDummy, idComment, idStartPos, and any future property this
			// reader doesn't understand: the size prefix lets us skip it.
		}
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(io.Discard, lr); err != nil {
			return nil, fmt.Errorf("sevenzip: drain FilesInfo property 0x%02x: %w", id, err)
		}
	}

	ei := 0
	for i := range fi.Entries {
		e := &fi.Entries[i]
		isEmpty := len(emptyStream) > 0 && emptyStream[i]
		e.HasStream = !isEmpty
		if isEmpty {
			e.IsDir = len(emptyFile) == 0 || !emptyFile[ei]
			if len(anti) > 0 {
				e.IsAnti = anti[ei]
			}
			ei++
		}
	}
	return fi, nil
}

// limitedByteReader adapts an io.Reader already bounded to a property's
// declared size into the byteReader interface the rest of this package's
// parsers expect.
type limitedByteReader struct {
	io.Reader
}

func (r *limitedByteReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r.Reader, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// readBitVectorExact reads exactly numItems MSB-first bits via bitio, used
// for the EmptyStream/EmptyFile/Anti vectors.
func readBitVectorExact(r io.Reader, numItems int) ([]bool, error) {
	br := bitio.NewReader(r)
	out := make([]bool, numItems)
	for i := range out {
		b, err := br.ReadBool()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBitVector, err)
		}
		out[i] = b
	}
	return out, nil
}

func parseNames(r io.Reader, entries []FileEntry) error {
	external, err := readByte(r)
	if err != nil {
		return err
	}
	if external != 0 {
		return fmt.Errorf("%w: external file names are not supported", ErrUnexpectedProperty)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	decoded, err := decoder.Bytes(raw)
	if err != nil {
		return fmt.Errorf("sevenzip: decode UTF-16LE file names: %w", err)
	}
	names := splitNUL(string(decoded))
	if len(names) != len(entries) {
		return fmt.Errorf("sevenzip: FilesInfo names: got %d names for %d entries", len(names), len(entries))
	}
	for i := range entries {
		entries[i].Name = names[i]
	}
	return nil
}

func splitNUL(s string) []string {
	var out []string
	start := 0
	for i, c := range s {
		if c == 0 {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func parseTimes(r io.Reader, entries []FileEntry, numFiles int, set func(*FileEntry, time.Time)) error {
	allDefined, err := readByte(r)
	if err != nil {
		return err
	}
	var defined []bool
	if allDefined != 0 {
		defined = make([]bool, numFiles)
		for i := range defined {
			defined[i] = true
		}
	} else {
		defined, err = readBitVectorExact(r, numFiles)
		if err != nil {
			return err
		}
	}
	external, err := readByte(r)
	if err != nil {
		return err
	}
	if external != 0 {
		return fmt.Errorf("%w: external timestamps are not supported", ErrUnexpectedProperty)
	}
	for i, d := range defined {
		if !d {
			continue
		}
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		ft := uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
			uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56
		set(&entries[i], windows.FileTimeToTime(ft))
	}
	return nil
}

func parseWinAttributes(r io.Reader, entries []FileEntry, numFiles int) error {
	allDefined, err := readByte(r)
	if err != nil {
		return err
	}
	var defined []bool
	if allDefined != 0 {
		defined = make([]bool, numFiles)
		for i := range defined {
			defined[i] = true
		}
	} else {
		defined, err = readBitVectorExact(r, numFiles)
		if err != nil {
			return err
		}
	}
	external, err := readByte(r)
	if err != nil {
		return err
	}
	if external != 0 {
		return fmt.Errorf("%w: external attributes are not supported", ErrUnexpectedProperty)
	}
	for i, d := range defined {
		if !d {
			continue
		}
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		entries[i].Attributes = uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	}
	return nil
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
