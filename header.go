package sevenzip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	sevenzipbinary "github.com/omnizip/sevenzip-go/internal/binary"
)

// signatureHeaderSize is the fixed 32-byte prologue every 7z archive
// starts with:
// [signature(6)][version(2)][StartHeaderCRC(4)][NextHeaderOffset(8)]
// [NextHeaderSize(8)][NextHeaderCRC(4)].
const signatureHeaderSize = 32

var signatureMagic = [6]byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}

// startHeader is the decoded form of the archive's fixed 32-byte prologue.
type startHeader struct {
	VersionMajor, VersionMinor byte
	StartHeaderCRC             uint32
	NextHeaderOffset           uint64
	NextHeaderSize             uint64
	NextHeaderCRC              uint32
}

func parseStartHeader(r io.ReaderAt) (*startHeader, error) {
	buf, err := sevenzipbinary.ReadBytesAt(r, 0, signatureHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedStartHeader, err)
	}
	if !bytes.Equal(buf[0:6], signatureMagic[:]) {
		return nil, ErrNotASevenZip
	}

	sh := &startHeader{
		VersionMajor:     buf[6],
		VersionMinor:     buf[7],
		StartHeaderCRC:   binary.LittleEndian.Uint32(buf[8:12]),
		NextHeaderOffset: binary.LittleEndian.Uint64(buf[12:20]),
		NextHeaderSize:   binary.LittleEndian.Uint64(buf[20:28]),
		NextHeaderCRC:    binary.LittleEndian.Uint32(buf[28:32]),
	}
	if sh.VersionMajor != 0 {
		return nil, fmt.Errorf("%w: major version %d", ErrUnsupportedVersion, sh.VersionMajor)
	}
	if got := crc32.ChecksumIEEE(buf[12:32]); got != sh.StartHeaderCRC {
		return nil, fmt.Errorf("%w: stored %08x, computed %08x", ErrStartHeaderCRC, sh.StartHeaderCRC, got)
	}
	return sh, nil
}

// readNextHeader reads and decompresses (if necessary) the NextHeader
// property block described by sh, verifying its CRC.
func readNextHeader(r io.ReaderAt, sh *startHeader) ([]byte, error) {
	offset := int64(signatureHeaderSize) + int64(sh.NextHeaderOffset)
	raw, err := sevenzipbinary.ReadBytesAt(r, offset, int(sh.NextHeaderSize))
	if err != nil {
		return nil, fmt.Errorf("sevenzip: read next header: %w", err)
	}
	if got := crc32.ChecksumIEEE(raw); got != sh.NextHeaderCRC {
		return nil, fmt.Errorf("%w: stored %08x, computed %08x", ErrNextHeaderCRC, sh.NextHeaderCRC, got)
	}

	br := bytes.NewReader(raw)
	id, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: read header property id: %w", err)
	}
	switch id {
	case idHeader:
		return raw[1:], nil
	case idEncodedHeader:
		return decodeEncodedHeader(r, br)
	default:
		return nil, fmt.Errorf("%w: 0x%02x at archive top level", ErrUnexpectedProperty, id)
	}
}

// Header is the parsed top-level NextHeader body: the archive's pack/folder
// layout plus its file entries.
type Header struct {
	StreamsInfo *StreamsInfo
	FilesInfo   *FilesInfo
}

// parseHeader walks the Header body (the bytes readNextHeader returns after
// stripping the leading kHeader id byte), dispatching kArchiveProperties,
// kAdditionalStreamsInfo, kMainStreamsInfo, and kFilesInfo in that order.
func parseHeader(raw []byte) (*Header, error) {
	r := bytes.NewReader(raw)
	h := &Header{}
	for {
		id, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: read Header property id: %w", err)
		}
		if id == idEnd {
			break
		}
		switch id {
		case idArchiveProperties:
			if err := skipArchiveProperties(r); err != nil {
				return nil, err
			}
		case idAdditionalStreams:
			if _, err := parseStreamsInfo(r); err != nil {
				return nil, fmt.Errorf("sevenzip: parse additional streams info: %w", err)
			}
		case idMainStreamsInfo:
			if h.StreamsInfo, err = parseStreamsInfo(r); err != nil {
				return nil, err
			}
		case idFilesInfo:
			if h.FilesInfo, err = parseFilesInfo(r); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: 0x%02x in Header", ErrUnexpectedProperty, id)
		}
	}
	return h, nil
}

func skipArchiveProperties(r byteReader) error {
	for {
		propType, err := readNumber(r)
		if err != nil {
			return err
		}
		if propType == idEnd {
			return nil
		}
		if err := skipProperty(r); err != nil {
			return err
		}
	}
}

// decodeEncodedHeader decompresses a header stored as its own single-folder
// StreamsInfo (the kEncodedHeader form): the header itself is
// just another folder, decoded through the normal coder chain. Archives
// that additionally encrypt their header (rather than just their file
// content) need the archive password here too; that case is out of scope
// for now and surfaces as ErrPasswordRequired from the AES256SHA256 codec.
func decodeEncodedHeader(r io.ReaderAt, br byteReader) ([]byte, error) {
	streamsInfo, err := parseStreamsInfo(br)
	if err != nil {
		return nil, fmt.Errorf("sevenzip: parse encoded header streams info: %w", err)
	}
	if streamsInfo.PackInfo == nil || streamsInfo.UnpackInfo == nil || len(streamsInfo.UnpackInfo.Folders) == 0 {
		return nil, fmt.Errorf("%w: encoded header missing pack/folder info", ErrInvalidFolderGraph)
	}

	folder := &streamsInfo.UnpackInfo.Folders[0]
	packBase := int64(signatureHeaderSize) + int64(streamsInfo.PackInfo.PackPos)
	src := packSource{r: r, base: packBase, sizes: streamsInfo.PackInfo.PackSizes}

	out, err := decodeFolder(folder, src, "")
	if err != nil {
		return nil, fmt.Errorf("sevenzip: decode encoded header: %w", err)
	}

	ob := bytes.NewReader(out)
	id, err := ob.ReadByte()
	if err != nil || id != idHeader {
		return nil, fmt.Errorf("%w: decoded header does not start with kHeader", ErrUnexpectedProperty)
	}
	return out[1:], nil
}
