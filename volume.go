package sevenzip

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// VolumeSet presents a split archive's numbered or lettered volume files as
// a single concatenated io.ReaderAt: the start header lives in the first
// volume and every offset elsewhere in the archive is absolute against the
// concatenated sequence. It seeks into each underlying file on demand
// rather than loading every volume into memory.
type VolumeSet struct {
	fs    afero.Fs
	files []string
	sizes []int64
}

// OpenVolumes probes for a split archive's volumes starting from the first
// volume's path and returns a VolumeSet over however many it finds. first
// must be either a numeric-suffixed path (*.001) or an alpha-suffixed path
// (*.7z.aa); any other path is treated as a single, unsplit archive.
func OpenVolumes(fs afero.Fs, first string) (*VolumeSet, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	files, err := probeVolumes(fs, first)
	if err != nil {
		return nil, err
	}
	vs := &VolumeSet{fs: fs, files: files, sizes: make([]int64, len(files))}
	for i, name := range files {
		fi, err := fs.Stat(name)
		if err != nil {
			return nil, fmt.Errorf("sevenzip: stat volume %q: %w", name, err)
		}
		vs.sizes[i] = fi.Size()
	}
	return vs, nil
}

func probeVolumes(fs afero.Fs, first string) ([]string, error) {
	dir := filepath.Dir(first)
	base := filepath.Base(first)

	if ext := filepath.Ext(base); len(ext) == 4 && ext[1] >= '0' && ext[1] <= '9' {
		// Numeric pattern: name.001, name.002, ...
		stem := strings.TrimSuffix(base, ext)
		var files []string
		for n := 1; ; n++ {
			name := filepath.Join(dir, fmt.Sprintf("%s.%03d", stem, n))
			if ok, err := afero.Exists(fs, name); err != nil {
				return nil, err
			} else if !ok {
				break
			}
			files = append(files, name)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("sevenzip: no volumes found for %q", first)
		}
		return files, nil
	}

	if idx := strings.LastIndex(base, ".7z."); idx >= 0 && len(base)-idx == 6 {
		// Alpha pattern: name.7z.aa, name.7z.ab, ...
		stem := base[:idx+3]
		var files []string
		for n := 0; ; n++ {
			suffix := alphaSuffix(n)
			name := filepath.Join(dir, stem+"."+suffix)
			if ok, err := afero.Exists(fs, name); err != nil {
				return nil, err
			} else if !ok {
				break
			}
			files = append(files, name)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("sevenzip: no volumes found for %q", first)
		}
		return files, nil
	}

	return []string{first}, nil
}

// alphaSuffix returns the nth two-letter volume suffix: aa, ab, ..., az,
// ba, ...
func alphaSuffix(n int) string {
	return string(rune('a'+n/26)) + string(rune('a'+n%26))
}

// ReadAt implements io.ReaderAt over the concatenated volume sequence,
// opening and seeking into only the volumes the requested range touches.
func (vs *VolumeSet) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("sevenzip: negative volume offset %d", off)
	}
	var total int
	var base int64
	for i, size := range vs.sizes {
		if off >= base+size {
			base += size
			continue
		}
		if len(p) == 0 {
			break
		}
		localOff := off - base
		want := size - localOff
		if want > int64(len(p)) {
			want = int64(len(p))
		}
		n, err := vs.readFileAt(i, p[:want], localOff)
		total += n
		p = p[n:]
		off += int64(n)
		if err != nil {
			return total, err
		}
		if int64(n) < want {
			return total, io.ErrUnexpectedEOF
		}
		base += size
	}
	if len(p) > 0 {
		return total, io.EOF
	}
	return total, nil
}

func (vs *VolumeSet) readFileAt(index int, p []byte, off int64) (int, error) {
	f, err := vs.fs.Open(vs.files[index])
	if err != nil {
		return 0, fmt.Errorf("sevenzip: open volume %q: %w", vs.files[index], err)
	}
	defer f.Close()
	return f.ReadAt(p, off)
}

// Size returns the archive's total concatenated byte length.
func (vs *VolumeSet) Size() int64 {
	var total int64
	for _, s := range vs.sizes {
		total += s
	}
	return total
}
