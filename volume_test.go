package sevenzip

import (
	"testing"

	"github.com/spf13/afero"
)

func TestProbeVolumesNumeric(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/archive.7z.001", []byte("aaa"), 0o644)
	afero.WriteFile(fs, "/archive.7z.002", []byte("bbbb"), 0o644)

	files, err := probeVolumes(fs, "/archive.7z.001")
	if err != nil {
		t.Fatalf("probeVolumes: %v", err)
	}
	want := []string{"/archive.7z.001", "/archive.7z.002"}
	if len(files) != len(want) {
		t.Fatalf("got %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("got %v, want %v", files, want)
		}
	}
}

func TestProbeVolumesAlpha(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/archive.7z.aa", []byte("aaa"), 0o644)
	afero.WriteFile(fs, "/archive.7z.ab", []byte("bbbb"), 0o644)

	files, err := probeVolumes(fs, "/archive.7z.aa")
	if err != nil {
		t.Fatalf("probeVolumes: %v", err)
	}
	want := []string{"/archive.7z.aa", "/archive.7z.ab"}
	if len(files) != len(want) {
		t.Fatalf("got %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("got %v, want %v", files, want)
		}
	}
}

func TestProbeVolumesSingleFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/archive.7z", []byte("aaa"), 0o644)

	files, err := probeVolumes(fs, "/archive.7z")
	if err != nil {
		t.Fatalf("probeVolumes: %v", err)
	}
	if len(files) != 1 || files[0] != "/archive.7z" {
		t.Fatalf("got %v, want [/archive.7z]", files)
	}
}

func TestAlphaSuffix(t *testing.T) {
	cases := map[int]string{0: "aa", 1: "ab", 25: "az", 26: "ba", 27: "bb"}
	for n, want := range cases {
		if got := alphaSuffix(n); got != want {
			t.Fatalf("alphaSuffix(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestVolumeSetReadAtCrossesBoundary(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/archive.7z.001", []byte("abc"), 0o644)
	afero.WriteFile(fs, "/archive.7z.002", []byte("defg"), 0o644)

	vs, err := OpenVolumes(fs, "/archive.7z.001")
	if err != nil {
		t.Fatalf("OpenVolumes: %v", err)
	}
	if vs.Size() != 7 {
		t.Fatalf("Size() = %d, want 7", vs.Size())
	}

	buf := make([]byte, 4)
	n, err := vs.ReadAt(buf, 2)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 4 || string(buf) != "cdef" {
		t.Fatalf("ReadAt(off=2) = %q (n=%d), want \"cdef\" (n=4)", buf, n)
	}
}

func TestVolumeSetReadAtPastEnd(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/archive.7z.001", []byte("abc"), 0o644)

	vs, err := OpenVolumes(fs, "/archive.7z.001")
	if err != nil {
		t.Fatalf("OpenVolumes: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := vs.ReadAt(buf, 1); err == nil {
		t.Fatal("expected an error reading past the end of the volume set, got nil")
	}
}
