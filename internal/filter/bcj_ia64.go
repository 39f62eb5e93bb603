package filter

// ia64BranchSlotMask maps each of the 32 possible bundle templates to a
// 3-bit mask of which of its three 41-bit instruction slots can hold a
// branch-immediate worth converting, per the IA-64 bundle encoding tables.
var ia64BranchSlotMask = [32]byte{
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	4, 4, 6, 6, 0, 0, 7, 7,
	4, 4, 0, 0, 4, 4, 0, 0,
}

// BCJIA64 converts IA-64 branch-immediate operands between PC-relative and
// absolute form. Operates on 16-byte bundles; each bundle
// packs three 41-bit instruction slots starting 5 bits in. Only slots whose
// bundle template marks them as branch-capable, and whose raw bits match
// the branch-instruction opcode pattern, are converted.
func BCJIA64(data []byte, position uint32, decode bool) {
	size := len(data)
	if size < 16 {
		return
	}
	size -= 16

	for i := 0; i <= size; i += 16 {
		tmpl := uint32(data[i] & 0x1F)
		mask := ia64BranchSlotMask[tmpl]
		bitPos := 5
		for slot := 0; slot < 3; slot, bitPos = slot+1, bitPos+41 {
			if (mask>>uint(slot))&1 == 0 {
				continue
			}
			bytePos := bitPos >> 3
			bitRes := uint(bitPos & 0x7)

			var instruction uint64
			for j := 0; j < 6; j++ {
				instruction |= uint64(data[i+j+bytePos]) << (8 * uint(j))
			}

			instNorm := instruction >> bitRes
			if (instNorm>>37)&0xF != 0x5 || (instNorm>>9)&0x7 != 0 {
				continue
			}

			src := uint32((instNorm >> 13) & 0xFFFFF)
			src |= uint32((instNorm>>36)&1) << 20
			src <<= 4

			var dest uint32
			if decode {
				dest = src - (position + uint32(i))
			} else {
				dest = position + uint32(i) + src
			}
			dest >>= 4

			instNorm &^= uint64(0x8FFFFF) << 13
			instNorm |= uint64(dest&0xFFFFF) << 13
			instNorm |= uint64(dest&0x100000) << (36 - 20)

			instruction &= (uint64(1) << bitRes) - 1
			instruction |= instNorm << bitRes
			for j := 0; j < 6; j++ {
				data[i+j+bytePos] = byte(instruction >> (8 * uint(j)))
			}
		}
	}
}
