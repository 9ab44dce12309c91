package cms

import (
	"encoding/binary"
	"errors"

	"github.com/piskvorky/bounter/hll"
)

const (
	cmsMagic   = "BCMS"
	cmsVersion = 1

	flagCardinalityOnly = 1 << 0
)

// MarshalBinary implements encoding.BinaryMarshaler. The persisted form is
// magic + version + variant tag + flags + width + depth + total + raw
// little-endian cells + HLL register bytes, per spec §6.
func (s *Sketch) MarshalBinary() ([]byte, error) {
	hllBytes, err := s.dist.MarshalBinary()
	if err != nil {
		return nil, err
	}

	cellBytes := s.variant.CellBytes()
	cellArea := int(s.width) * int(s.depth) * cellBytes

	header := make([]byte, 4+1+1+1+4+4+8)
	copy(header[0:4], cmsMagic)
	header[4] = cmsVersion
	header[5] = byte(s.variant)
	var flags byte
	if s.cardinalityOnly {
		flags |= flagCardinalityOnly
	}
	header[6] = flags
	binary.LittleEndian.PutUint32(header[7:], s.width)
	binary.LittleEndian.PutUint32(header[11:], s.depth)
	binary.LittleEndian.PutUint64(header[15:], s.total)

	buf := make([]byte, 0, len(header)+cellArea+len(hllBytes))
	buf = append(buf, header...)

	switch s.variant {
	case Conservative:
		cells := make([]byte, cellArea)
		for i, v := range s.cellsU32 {
			binary.LittleEndian.PutUint32(cells[i*4:], v)
		}
		buf = append(buf, cells...)
	case Log8:
		buf = append(buf, s.cellsU8...)
	case Log1024, LogCons1024:
		cells := make([]byte, cellArea)
		for i, v := range s.cellsU16 {
			binary.LittleEndian.PutUint16(cells[i*2:], v)
		}
		buf = append(buf, cells...)
	}

	buf = append(buf, hllBytes...)
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Sketch) UnmarshalBinary(data []byte) error {
	const headerLen = 4 + 1 + 1 + 1 + 4 + 4 + 8
	if len(data) < headerLen {
		return errors.New("cms: data too short")
	}
	if string(data[0:4]) != cmsMagic {
		return errors.New("cms: bad magic")
	}
	if data[4] != cmsVersion {
		return errors.New("cms: unsupported version")
	}
	variant, ok := variantFromTag(data[5])
	if !ok {
		return errors.New("cms: unknown variant tag")
	}
	flags := data[6]
	width := binary.LittleEndian.Uint32(data[7:])
	depth := binary.LittleEndian.Uint32(data[11:])
	total := binary.LittleEndian.Uint64(data[15:])

	fresh, err := New(variant, width, depth)
	if err != nil {
		return err
	}
	fresh.cardinalityOnly = flags&flagCardinalityOnly != 0
	fresh.total = total

	cellBytes := variant.CellBytes()
	cellArea := int(width) * int(depth) * cellBytes
	offset := headerLen
	if offset+cellArea > len(data) {
		return errors.New("cms: data too short for cell table")
	}
	cellData := data[offset : offset+cellArea]
	offset += cellArea

	switch variant {
	case Conservative:
		for i := range fresh.cellsU32 {
			fresh.cellsU32[i] = binary.LittleEndian.Uint32(cellData[i*4:])
		}
	case Log8:
		copy(fresh.cellsU8, cellData)
	case Log1024, LogCons1024:
		for i := range fresh.cellsU16 {
			fresh.cellsU16[i] = binary.LittleEndian.Uint16(cellData[i*2:])
		}
	}

	fresh.dist = hll.New()
	if err := fresh.dist.UnmarshalBinary(data[offset:]); err != nil {
		return err
	}

	*s = *fresh
	return nil
}
