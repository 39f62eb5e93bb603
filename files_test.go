package sevenzip

import (
	"bytes"
	"testing"
)

func TestParseFilesInfoNames(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(2) // numFiles

	var names bytes.Buffer
	names.WriteByte(0) // external = 0
	names.Write([]byte{'a', 0, 0, 0, 'b', 0, 0, 0})
	buf.WriteByte(idName)
	buf.WriteByte(byte(names.Len()))
	buf.Write(names.Bytes())

	buf.WriteByte(idEnd)

	fi, err := parseFilesInfo(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("parseFilesInfo: %v", err)
	}
	if len(fi.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(fi.Entries))
	}
	if fi.Entries[0].Name != "a" || fi.Entries[1].Name != "b" {
		t.Fatalf("got names %q, %q, want a, b", fi.Entries[0].Name, fi.Entries[1].Name)
	}
	// no EmptyStream property: every entry has a stream and isn't a dir.
	for i, e := range fi.Entries {
		if !e.HasStream || e.IsDir {
			t.Fatalf("entry %d: HasStream=%v IsDir=%v, want true/false", i, e.HasStream, e.IsDir)
		}
	}
}

func TestParseFilesInfoEmptyStreamAndDir(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(3) // numFiles

	// EmptyStream bits [true,false,true] MSB-first -> 0b101_00000 = 0xA0.
	buf.WriteByte(idEmptyStream)
	buf.WriteByte(1)
	buf.WriteByte(0xA0)

	// Of the 2 empty-stream entries, EmptyFile bits [true,false] -> 0x80.
	buf.WriteByte(idEmptyFile)
	buf.WriteByte(1)
	buf.WriteByte(0x80)

	buf.WriteByte(idEnd)

	fi, err := parseFilesInfo(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("parseFilesInfo: %v", err)
	}
	if len(fi.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(fi.Entries))
	}

	e0, e1, e2 := fi.Entries[0], fi.Entries[1], fi.Entries[2]
	if e0.HasStream || e0.IsDir {
		t.Fatalf("entry 0: HasStream=%v IsDir=%v, want false/false (empty file)", e0.HasStream, e0.IsDir)
	}
	if !e1.HasStream || e1.IsDir {
		t.Fatalf("entry 1: HasStream=%v IsDir=%v, want true/false", e1.HasStream, e1.IsDir)
	}
	if e2.HasStream || !e2.IsDir {
		t.Fatalf("entry 2: HasStream=%v IsDir=%v, want false/true (directory)", e2.HasStream, e2.IsDir)
	}
}

func TestParseFilesInfoRejectsExternalNames(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(1)
	buf.WriteByte(idName)
	buf.WriteByte(1)
	buf.WriteByte(1) // external = 1, unsupported
	buf.WriteByte(idEnd)

	if _, err := parseFilesInfo(bytes.NewReader(buf.Bytes())); err == nil {
		t.Fatal("expected an error for external file names, got nil")
	}
}

func TestSplitNUL(t *testing.T) {
	got := splitNUL("a\x00bc\x00")
	want := []string{"a", "bc"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
