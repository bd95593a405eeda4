package tiff

import (
	"bufio"
	"io"
)

// TIFF LZW differs from compress/lzw in when the code width grows: TIFF
// switches one code early. golang.org/x/image/tiff/lzw decodes that
// variant; this file is the matching encoder.

const (
	lzwClear     = 256
	lzwEOI       = 257
	lzwMaxWidth  = 12
	lzwTableSize = 4 << lzwMaxWidth
	lzwTableMask = lzwTableSize - 1
)

type lzwWriter struct {
	w        *bufio.Writer
	bits     uint32
	nBits    uint
	width    uint
	hi       uint32
	overflow uint32
	table    [lzwTableSize]uint32
}

// compressLZW writes the TIFF LZW encoding of src to w.
func compressLZW(w io.Writer, src []byte) error {
	bw := bufio.NewWriter(w)
	e := &lzwWriter{w: bw}
	e.reset()
	if err := e.emit(lzwClear); err != nil {
		return err
	}

	if len(src) > 0 {
		code := uint32(src[0])
	loop:
		for _, b := range src[1:] {
			key := code<<8 | uint32(b)
			hash := (key>>12 ^ key) & lzwTableMask
			for h, t := hash, e.table[hash]; t != 0; {
				if key == t>>12 {
					code = t & (1<<lzwMaxWidth - 1)
					continue loop
				}
				h = (h + 1) & lzwTableMask
				t = e.table[h]
			}

			if err := e.emit(code); err != nil {
				return err
			}
			code = uint32(b)
			cleared, err := e.incHi()
			if err != nil {
				return err
			}
			if cleared {
				continue
			}
			for h := hash; ; h = (h + 1) & lzwTableMask {
				if e.table[h] == 0 {
					e.table[h] = key<<12 | e.hi
					break
				}
			}
		}
		if err := e.emit(code); err != nil {
			return err
		}
		if _, err := e.incHi(); err != nil {
			return err
		}
	}

	if err := e.emit(lzwEOI); err != nil {
		return err
	}
	if e.nBits > 0 {
		if err := bw.WriteByte(uint8(e.bits >> 24)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (e *lzwWriter) reset() {
	e.width = 9
	e.hi = lzwEOI
	e.overflow = 1 << e.width
	clear(e.table[:])
}

// incHi advances the next free code. When the table is full it emits a
// Clear code, resets the state and reports cleared.
func (e *lzwWriter) incHi() (cleared bool, err error) {
	e.hi++
	if e.hi+1 < e.overflow {
		return false, nil
	}
	if e.width < lzwMaxWidth {
		e.width++
		e.overflow <<= 1
		return false, nil
	}
	if err := e.emit(lzwClear); err != nil {
		return false, err
	}
	e.reset()
	return true, nil
}

// emit appends code MSB-first at the current width.
func (e *lzwWriter) emit(code uint32) error {
	e.bits |= code << (32 - e.width - e.nBits)
	e.nBits += e.width
	for e.nBits >= 8 {
		if err := e.w.WriteByte(uint8(e.bits >> 24)); err != nil {
			return err
		}
		e.bits <<= 8
		e.nBits -= 8
	}
	return nil
}
