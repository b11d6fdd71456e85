// Package dtb parses the subset of a flattened device tree this kernel
// needs at boot (§6 "External interfaces"): the root /memory node's reg
// property (RAM base/size) and the optional /model string, grounded on
// _examples/original_source/kernel-aarch64/fdt.c's hand-rolled FDT
// struct-block walker (no libfdt dependency in the original, so none
// here either — the format is simple enough that a dedicated walker is
// the idiomatic match rather than an adopted third-party parser).
package dtb

import "encoding/binary"
import "errors"

const fdtMagic = 0xd00dfeed

const (
	tokenBeginNode = 0x1
	tokenEndNode   = 0x2
	tokenProp      = 0x3
	tokenNop       = 0x4
	tokenEnd       = 0x9
)

// ErrInvalid is returned for a blob that fails magic, bounds, or
// structural validation.
var ErrInvalid = errors.New("dtb: invalid blob")

// Info is the subset of the device tree this kernel consults.
type Info struct {
	HasModel bool
	Model    string
	HasMem   bool
	MemBase  uint64
	MemSize  uint64
}

type header struct {
	Magic          uint32
	TotalSize      uint32
	OffDtStruct    uint32
	OffDtStrings   uint32
	OffMemRsvmap   uint32
	Version        uint32
	LastCompVer    uint32
	BootCpuidPhys  uint32
	SizeDtStrings  uint32
	SizeDtStruct   uint32
}

func align4(n int) int { return (n + 3) &^ 3 }

// ReadInfo walks blob's struct block and extracts /model and the root
// /memory node's reg property (fdt_read_info).
func ReadInfo(blob []byte) (Info, error) {
	var out Info
	if len(blob) < 40 {
		return out, ErrInvalid
	}
	h := header{
		Magic:         binary.BigEndian.Uint32(blob[0:4]),
		TotalSize:     binary.BigEndian.Uint32(blob[4:8]),
		OffDtStruct:   binary.BigEndian.Uint32(blob[8:12]),
		OffDtStrings:  binary.BigEndian.Uint32(blob[12:16]),
		SizeDtStrings: binary.BigEndian.Uint32(blob[32:36]),
		SizeDtStruct:  binary.BigEndian.Uint32(blob[36:40]),
	}
	if h.Magic != fdtMagic {
		return out, ErrInvalid
	}
	if int(h.TotalSize) > len(blob) {
		return out, ErrInvalid
	}
	if int(h.OffDtStruct) >= int(h.TotalSize) || int(h.OffDtStrings) >= int(h.TotalSize) {
		return out, ErrInvalid
	}
	structEnd := int(h.OffDtStruct) + int(h.SizeDtStruct)
	if structEnd > int(h.TotalSize) {
		return out, ErrInvalid
	}
	stringsEnd := int(h.OffDtStrings) + int(h.SizeDtStrings)
	if stringsEnd > int(h.TotalSize) {
		return out, ErrInvalid
	}

	strings := blob[h.OffDtStrings:stringsEnd]
	p := int(h.OffDtStruct)

	depth := 0
	inRoot := false
	inMemory := false
	addrCells := 2
	sizeCells := 2

	strAt := func(off uint32) (string, bool) {
		if int(off) >= len(strings) {
			return "", false
		}
		end := int(off)
		for end < len(strings) && strings[end] != 0 {
			end++
		}
		if end >= len(strings) {
			return "", false
		}
		return string(strings[off:end]), true
	}

	for p+4 <= structEnd {
		token := binary.BigEndian.Uint32(blob[p : p+4])
		p += 4
		switch token {
		case tokenBeginNode:
			start := p
			for p < structEnd && blob[p] != 0 {
				p++
			}
			if p >= structEnd {
				return out, ErrInvalid
			}
			name := string(blob[start:p])
			p++
			p = int(h.OffDtStruct) + align4(p-int(h.OffDtStruct))
			depth++
			if depth == 1 {
				inRoot = true
				inMemory = false
			} else {
				inRoot = false
				inMemory = len(name) >= 6 && name[:6] == "memory"
			}
		case tokenEndNode:
			if depth > 0 {
				depth--
			}
			if depth < 2 {
				inMemory = false
			}
			if depth == 0 {
				inRoot = false
			}
		case tokenProp:
			if p+8 > structEnd {
				return out, ErrInvalid
			}
			length := binary.BigEndian.Uint32(blob[p : p+4])
			nameoff := binary.BigEndian.Uint32(blob[p+4 : p+8])
			p += 8
			name, ok := strAt(nameoff)
			if !ok {
				return out, ErrInvalid
			}
			valStart := p
			valEnd := p + int(length)
			if valEnd > structEnd {
				return out, ErrInvalid
			}
			val := blob[valStart:valEnd]

			if inRoot {
				if !out.HasModel && name == "model" && len(val) > 0 {
					end := len(val)
					for end > 0 && val[end-1] == 0 {
						end--
					}
					out.Model = string(val[:end])
					out.HasModel = true
				}
				if name == "#address-cells" && length == 4 {
					v := int(binary.BigEndian.Uint32(val))
					if v >= 1 && v <= 2 {
						addrCells = v
					}
				}
				if name == "#size-cells" && length == 4 {
					v := int(binary.BigEndian.Uint32(val))
					if v >= 1 && v <= 2 {
						sizeCells = v
					}
				}
			}
			if inMemory && !out.HasMem && name == "reg" {
				entryCells := addrCells + sizeCells
				if entryCells < 2 {
					entryCells = 2
				}
				if len(val) >= entryCells*4 {
					out.MemBase = cellsToU64(val[0:addrCells*4], addrCells)
					out.MemSize = cellsToU64(val[addrCells*4:entryCells*4], sizeCells)
					out.HasMem = true
				}
			}

			p = int(h.OffDtStruct) + align4(valEnd-int(h.OffDtStruct))
		case tokenNop:
		case tokenEnd:
			return out, nil
		default:
			return out, ErrInvalid
		}
	}
	return out, nil
}

func cellsToU64(cells []byte, nCells int) uint64 {
	if nCells <= 0 {
		return 0
	}
	if nCells == 1 {
		return uint64(binary.BigEndian.Uint32(cells[0:4]))
	}
	hi := uint64(binary.BigEndian.Uint32(cells[0:4]))
	lo := uint64(binary.BigEndian.Uint32(cells[4:8]))
	return hi<<32 | lo
}
