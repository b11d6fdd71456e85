package dtb

import "encoding/binary"
import "testing"

type fdtBuilder struct {
	strbuf []byte
	strOff map[string]uint32
	struc  []byte
}

func newFdtBuilder() *fdtBuilder {
	return &fdtBuilder{strOff: map[string]uint32{}}
}

func (b *fdtBuilder) be32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	b.struc = append(b.struc, buf[:]...)
}

func (b *fdtBuilder) pad4() {
	for len(b.struc)%4 != 0 {
		b.struc = append(b.struc, 0)
	}
}

func (b *fdtBuilder) beginNode(name string) {
	b.be32(tokenBeginNode)
	b.struc = append(b.struc, name...)
	b.struc = append(b.struc, 0)
	b.pad4()
}

func (b *fdtBuilder) endNode() { b.be32(tokenEndNode) }

func (b *fdtBuilder) nameOff(name string) uint32 {
	if off, ok := b.strOff[name]; ok {
		return off
	}
	off := uint32(len(b.strbuf))
	b.strbuf = append(b.strbuf, name...)
	b.strbuf = append(b.strbuf, 0)
	b.strOff[name] = off
	return off
}

func (b *fdtBuilder) prop(name string, val []byte) {
	b.be32(tokenProp)
	b.be32(uint32(len(val)))
	b.be32(b.nameOff(name))
	b.struc = append(b.struc, val...)
	b.pad4()
}

func (b *fdtBuilder) finish() []byte {
	b.be32(tokenEnd)
	const headerSize = 40
	offStruct := headerSize
	offStrings := offStruct + len(b.struc)
	total := offStrings + len(b.strbuf)

	out := make([]byte, total)
	binary.BigEndian.PutUint32(out[0:4], fdtMagic)
	binary.BigEndian.PutUint32(out[4:8], uint32(total))
	binary.BigEndian.PutUint32(out[8:12], uint32(offStruct))
	binary.BigEndian.PutUint32(out[12:16], uint32(offStrings))
	binary.BigEndian.PutUint32(out[32:36], uint32(len(b.strbuf)))
	binary.BigEndian.PutUint32(out[36:40], uint32(len(b.struc)))
	copy(out[offStruct:], b.struc)
	copy(out[offStrings:], b.strbuf)
	return out
}

func cells2(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(v>>32))
	binary.BigEndian.PutUint32(buf[4:8], uint32(v))
	return buf[:]
}

func TestReadInfoModelAndMemory(t *testing.T) {
	b := newFdtBuilder()
	b.beginNode("")
	b.prop("model", append([]byte("test,board"), 0))
	b.beginNode("memory@40000000")
	reg := append(cells2(0x40000000), cells2(0x20000000)...)
	b.prop("reg", reg)
	b.endNode()
	b.endNode()
	blob := b.finish()

	info, err := ReadInfo(blob)
	if err != nil {
		t.Fatalf("ReadInfo failed: %v", err)
	}
	if !info.HasModel || info.Model != "test,board" {
		t.Fatalf("model mismatch: %+v", info)
	}
	if !info.HasMem || info.MemBase != 0x40000000 || info.MemSize != 0x20000000 {
		t.Fatalf("mem mismatch: %+v", info)
	}
}

func TestReadInfoRejectsBadMagic(t *testing.T) {
	blob := make([]byte, 64)
	if _, err := ReadInfo(blob); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
