package sevenzip

func init() {
	RegisterCodec(MethodPPMd, newPPMdCodec)
}

// ppmdCodec is a placeholder registration for the PPMd method (0x030401).
// No example repo in the pack vendors a PPMd7 (7z variant) implementation —
// DESIGN.md records this gap. Registering it lets folder parsing and
// listing proceed normally (PPMd-coded folders still parse structurally);
// only Decompress fails, surfaced through FolderError so the rest of an
// archive's listing is unaffected.
type ppmdCodec struct{}

func newPPMdCodec(properties []byte, opts CoderOptions) (Codec, error) {
	return ppmdCodec{}, nil
}

func (ppmdCodec) Decompress(dst, src []byte) (int, error) {
	return 0, &UnsupportedMethodError{ID: []byte(MethodPPMd)}
}
