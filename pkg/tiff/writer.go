package tiff

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"

	"github.com/matzehuels/tilestitch/pkg/volume"
)

// WriteOptions configures Encode and WriteFile.
type WriteOptions struct {
	// Compression of every strip. Zero means CompressionNone.
	Compression Compression

	// Description is stored as the ImageDescription of the first page.
	Description string

	// BigTIFF forces 64-bit offsets. WriteFile turns it on automatically
	// when the volume cannot fit a classic TIFF.
	BigTIFF bool
}

// classicLimit is the largest raw payload WriteFile will attempt in a classic
// TIFF before switching to BigTIFF. It leaves headroom for IFDs and for
// compression that fails to shrink the data.
const classicLimit = math.MaxUint32 - 64<<20

// WriteFile writes v to path atomically: the stack is encoded into a
// temporary file in the same directory which is renamed over path on success.
func WriteFile(path string, v *volume.Volume, opts WriteOptions) (err error) {
	if !opts.BigTIFF && v.Bytes() > classicLimit {
		opts.BigTIFF = true
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriterSize(tmp, 1<<20)
	if err = Encode(bw, v, opts); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Encode writes v as a little-endian multi-page TIFF, one page per z-slice.
//
// The file is laid out sequentially (header, then for each page its IFD
// followed by its strip) so w never needs to seek.
func Encode(w io.Writer, v *volume.Volume, opts WriteOptions) error {
	if v.Len() == 0 {
		return fmt.Errorf("%w: empty volume", ErrFormat)
	}
	if opts.Compression == 0 {
		opts.Compression = CompressionNone
	}
	switch opts.Compression {
	case CompressionNone, CompressionLZW, CompressionDeflate:
	default:
		return fmt.Errorf("%w: compression %d", ErrUnsupported, opts.Compression)
	}

	e := &encoder{
		w:      w,
		layout: layout{big: opts.BigTIFF},
		opts:   opts,
		raw:    make([]byte, v.Height*v.Width*2),
	}
	return e.encode(v)
}

type encoder struct {
	w      io.Writer
	layout layout
	opts   WriteOptions
	raw    []byte
	off    uint64
	buf    bytes.Buffer
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint64
	value uint64 // inline value or offset
}

func (e *encoder) write(p []byte) error {
	n, err := e.w.Write(p)
	e.off += uint64(n)
	return err
}

func (e *encoder) putOffset(b []byte, v uint64) []byte {
	if e.layout.big {
		return binary.LittleEndian.AppendUint64(b, v)
	}
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

func (e *encoder) encode(v *volume.Volume) error {
	var hdr []byte
	if e.layout.big {
		hdr = append(hdr, 'I', 'I')
		hdr = binary.LittleEndian.AppendUint16(hdr, 43)
		hdr = binary.LittleEndian.AppendUint16(hdr, 8)
		hdr = binary.LittleEndian.AppendUint16(hdr, 0)
		hdr = binary.LittleEndian.AppendUint64(hdr, uint64(e.layout.headerSize()))
	} else {
		hdr = append(hdr, 'I', 'I')
		hdr = binary.LittleEndian.AppendUint16(hdr, 42)
		hdr = binary.LittleEndian.AppendUint32(hdr, uint32(e.layout.headerSize()))
	}
	if err := e.write(hdr); err != nil {
		return err
	}

	desc := []byte(e.opts.Description)
	if len(desc) > 0 {
		desc = append(desc, 0)
	}

	for z := 0; z < v.Depth; z++ {
		strip, err := e.compress(v.Slice(z))
		if err != nil {
			return fmt.Errorf("page %d: %w", z, err)
		}
		pageDesc := desc
		if z > 0 {
			pageDesc = nil
		}
		if err := e.writePage(v, strip, pageDesc, z == v.Depth-1); err != nil {
			return fmt.Errorf("page %d: %w", z, err)
		}
	}
	return nil
}

func (e *encoder) compress(plane []uint16) ([]byte, error) {
	for i, px := range plane {
		binary.LittleEndian.PutUint16(e.raw[2*i:], px)
	}
	switch e.opts.Compression {
	case CompressionLZW:
		e.buf.Reset()
		if err := compressLZW(&e.buf, e.raw); err != nil {
			return nil, err
		}
		return e.buf.Bytes(), nil
	case CompressionDeflate:
		e.buf.Reset()
		zw := zlib.NewWriter(&e.buf)
		if _, err := zw.Write(e.raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return e.buf.Bytes(), nil
	}
	return e.raw, nil
}

// writePage emits one IFD, the out-of-line description (if any) and the
// strip. The next-IFD pointer is computed from the sizes written here.
func (e *encoder) writePage(v *volume.Volume, strip, desc []byte, last bool) error {
	offType := uint16(typeLong)
	if e.layout.big {
		offType = typeLong8
	}

	entries := []entry{
		{tagImageWidth, typeLong, 1, uint64(v.Width)},
		{tagImageLength, typeLong, 1, uint64(v.Height)},
		{tagBitsPerSample, typeShort, 1, 16},
		{tagCompression, typeShort, 1, uint64(e.opts.Compression)},
		{tagPhotometric, typeShort, 1, 1},
	}
	descIdx := -1
	if len(desc) > 0 {
		descIdx = len(entries)
		entries = append(entries, entry{tagImageDescription, typeASCII, uint64(len(desc)), 0})
	}
	stripIdx := len(entries)
	entries = append(entries,
		entry{tagStripOffsets, offType, 1, 0},
		entry{tagSamplesPerPixel, typeShort, 1, 1},
		entry{tagRowsPerStrip, typeLong, 1, uint64(v.Height)},
		entry{tagStripByteCounts, offType, 1, uint64(len(strip))},
		entry{tagPlanarConfig, typeShort, 1, 1},
		entry{tagSampleFormat, typeShort, 1, 1},
	)

	ifdStart := e.off
	cursor := ifdStart + uint64(e.layout.ifdSize(len(entries)))

	inlineDesc := len(desc) <= e.layout.inlineSize()
	if descIdx >= 0 && !inlineDesc {
		entries[descIdx].value = cursor
		cursor += uint64(len(desc))
	}
	entries[stripIdx].value = cursor
	cursor += uint64(len(strip))
	pad := cursor % 2
	cursor += pad

	var next uint64
	if !last {
		next = cursor
	}
	if !e.layout.big && next > math.MaxUint32 {
		return ErrTooLarge
	}
	if !e.layout.big && cursor > math.MaxUint32 {
		return ErrTooLarge
	}

	ifd := make([]byte, 0, e.layout.ifdSize(len(entries)))
	if e.layout.big {
		ifd = binary.LittleEndian.AppendUint64(ifd, uint64(len(entries)))
	} else {
		ifd = binary.LittleEndian.AppendUint16(ifd, uint16(len(entries)))
	}
	for i, en := range entries {
		ifd = binary.LittleEndian.AppendUint16(ifd, en.tag)
		ifd = binary.LittleEndian.AppendUint16(ifd, en.typ)
		if e.layout.big {
			ifd = binary.LittleEndian.AppendUint64(ifd, en.count)
		} else {
			ifd = binary.LittleEndian.AppendUint32(ifd, uint32(en.count))
		}
		slot := make([]byte, e.layout.inlineSize())
		switch {
		case i == descIdx && inlineDesc:
			copy(slot, desc)
		case en.typ == typeShort:
			binary.LittleEndian.PutUint16(slot, uint16(en.value))
		case en.typ == typeLong:
			binary.LittleEndian.PutUint32(slot, uint32(en.value))
		default:
			slot = e.putOffset(slot[:0], en.value)
		}
		ifd = append(ifd, slot...)
	}
	ifd = e.putOffset(ifd, next)

	if err := e.write(ifd); err != nil {
		return err
	}
	if descIdx >= 0 && !inlineDesc {
		if err := e.write(desc); err != nil {
			return err
		}
	}
	if err := e.write(strip); err != nil {
		return err
	}
	if pad > 0 {
		return e.write([]byte{0})
	}
	return nil
}
