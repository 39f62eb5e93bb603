package sevenzip

import "fmt"

func init() {
	RegisterCodec(MethodAES256, newAESCodec)
}

// aesCodec wraps AES256SHA256, registered under the AES-256-SHA-256 method
// id (0x06F10701). 7-Zip encodes the password as UTF-16LE before hashing
// it into the key.
type aesCodec struct {
	params   *AES256SHA256
	password []byte
}

func newAESCodec(properties []byte, opts CoderOptions) (Codec, error) {
	if opts.Password == "" {
		return nil, ErrPasswordRequired
	}
	params, err := parseAES256SHA256Properties(properties)
	if err != nil {
		return nil, err
	}
	return &aesCodec{params: params, password: passwordToUTF16LE(opts.Password)}, nil
}

func (c *aesCodec) Decompress(dst, src []byte) (int, error) {
	n, err := c.params.decrypt(dst, src, c.password)
	if err != nil {
		return 0, fmt.Errorf("sevenzip: AES256SHA256: %w", err)
	}
	return n, nil
}

// passwordToUTF16LE matches 7-Zip's password encoding ahead of key
// derivation: each password rune as a little-endian UTF-16 code unit (or
// U+FFFD for anything outside the BMP, since 7-Zip's own tools work in
// UTF-16 code units rather than full code points here).
func passwordToUTF16LE(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		if r > 0xFFFF {
			r = 0xFFFD
		}
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}
