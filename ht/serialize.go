package ht

import (
	"encoding/binary"
	"errors"

	"github.com/piskvorky/bounter/hll"
)

const (
	htMagic   = "BHTC"
	htVersion = 1

	flagPruned     = 1 << 0
	flagUseUnicode = 1 << 1

	tombstoneSentinel = 0xffffffff
)

// MarshalBinary implements encoding.BinaryMarshaler. The persisted form
// is magic + version + flags + N + total, followed by one record per
// live slot (hash64 + key_len u32 + key bytes + count u64), a
// tombstoneSentinel key_len terminator, and the HLL register bytes.
func (t *Table) MarshalBinary() ([]byte, error) {
	hllBytes, err := t.dist.MarshalBinary()
	if err != nil {
		return nil, err
	}

	header := make([]byte, 4+1+1+4+8)
	copy(header[0:4], htMagic)
	header[4] = htVersion
	var flags byte
	if t.pruned {
		flags |= flagPruned
	}
	if t.useUnicode {
		flags |= flagUseUnicode
	}
	header[5] = flags
	binary.LittleEndian.PutUint32(header[6:], t.n)
	binary.LittleEndian.PutUint64(header[10:], t.total)

	buf := append([]byte(nil), header...)
	rec := make([]byte, 8+4)
	for i := uint32(0); i < t.n; i++ {
		if t.state[i] != slotLive {
			continue
		}
		binary.LittleEndian.PutUint64(rec[0:], t.hashes[i])
		binary.LittleEndian.PutUint32(rec[8:], uint32(len(t.keys[i])))
		buf = append(buf, rec...)
		buf = append(buf, t.keys[i]...)

		var countBuf [8]byte
		binary.LittleEndian.PutUint64(countBuf[:], t.counts[i])
		buf = append(buf, countBuf[:]...)
	}

	var term [12]byte
	binary.LittleEndian.PutUint32(term[8:], tombstoneSentinel)
	buf = append(buf, term[:]...)

	buf = append(buf, hllBytes...)
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (t *Table) UnmarshalBinary(data []byte) error {
	const headerLen = 4 + 1 + 1 + 4 + 8
	if len(data) < headerLen {
		return errors.New("ht: data too short")
	}
	if string(data[0:4]) != htMagic {
		return errors.New("ht: bad magic")
	}
	if data[4] != htVersion {
		return errors.New("ht: unsupported version")
	}
	flags := data[5]
	n := binary.LittleEndian.Uint32(data[6:])
	total := binary.LittleEndian.Uint64(data[10:])

	fresh, err := New(n, flags&flagUseUnicode != 0)
	if err != nil {
		return err
	}

	offset := headerLen
	for {
		if offset+12 > len(data) {
			return errors.New("ht: truncated record stream")
		}
		h1 := binary.LittleEndian.Uint64(data[offset:])
		keyLen := binary.LittleEndian.Uint32(data[offset+8:])
		offset += 12
		if keyLen == tombstoneSentinel {
			break
		}
		if offset+int(keyLen)+8 > len(data) {
			return errors.New("ht: truncated key/count")
		}
		key := append([]byte(nil), data[offset:offset+int(keyLen)]...)
		offset += int(keyLen)
		count := binary.LittleEndian.Uint64(data[offset:])
		offset += 8

		_, _, insertAt := fresh.probe(h1, key)
		fresh.insertAt(insertAt, h1, key, count)
	}

	fresh.total = total
	fresh.pruned = flags&flagPruned != 0
	fresh.dist = hll.New()
	if err := fresh.dist.UnmarshalBinary(data[offset:]); err != nil {
		return err
	}

	*t = *fresh
	return nil
}
