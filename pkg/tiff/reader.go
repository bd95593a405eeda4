package tiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"

	"github.com/matzehuels/tilestitch/pkg/volume"
)

// ReadInfo inspects the stack at path: page count, page shape, compression
// and the first page's description. No pixel data is decoded.
func ReadInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Info{}, err
	}

	d, err := newDecoder(f)
	if err != nil {
		return Info{}, err
	}
	pages, err := d.pageOffsets()
	if err != nil {
		return Info{}, err
	}
	first, err := d.readIFD(pages[0])
	if err != nil {
		return Info{}, err
	}
	if err := first.check(); err != nil {
		return Info{}, err
	}
	return Info{
		Pages:         len(pages),
		Height:        first.height,
		Width:         first.width,
		BitsPerSample: first.bitsPerSample,
		Compression:   first.compression,
		Description:   first.description,
		Size:          st.Size(),
		BigTIFF:       d.layout.big,
	}, nil
}

// ReadVolume decodes pages [z0, z1) of the stack at path into a volume.
// All decoded pages must share the shape of page z0.
func ReadVolume(path string, z0, z1 int) (*volume.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, z0, z1)
}

// Decode reads pages [z0, z1) from r. z1 < 0 means "through the last page".
func Decode(r io.ReaderAt, z0, z1 int) (*volume.Volume, error) {
	d, err := newDecoder(r)
	if err != nil {
		return nil, err
	}
	pages, err := d.pageOffsets()
	if err != nil {
		return nil, err
	}
	if z1 < 0 || z1 > len(pages) {
		z1 = len(pages)
	}
	if z0 < 0 || z0 >= z1 {
		return nil, fmt.Errorf("%w: page range %d:%d of %d", ErrFormat, z0, z1, len(pages))
	}

	var vol *volume.Volume
	for z := z0; z < z1; z++ {
		page, err := d.readIFD(pages[z])
		if err != nil {
			return nil, err
		}
		if err := page.check(); err != nil {
			return nil, fmt.Errorf("page %d: %w", z, err)
		}
		if vol == nil {
			vol = volume.New(z1-z0, page.height, page.width)
		} else if page.height != vol.Height || page.width != vol.Width {
			return nil, fmt.Errorf("%w: page %d is %dx%d, want %dx%d",
				ErrFormat, z, page.height, page.width, vol.Height, vol.Width)
		}
		if err := d.decodePage(page, vol.Slice(z-z0)); err != nil {
			return nil, fmt.Errorf("page %d: %w", z, err)
		}
	}
	return vol, nil
}

type decoder struct {
	r      io.ReaderAt
	order  binary.ByteOrder
	layout layout
	first  int64
	size   int64 // -1 when r cannot report its length
}

// readerSize reports the length of r when it exposes one.
func readerSize(r io.ReaderAt) int64 {
	switch v := r.(type) {
	case interface{ Size() int64 }:
		return v.Size()
	case interface{ Stat() (os.FileInfo, error) }:
		if st, err := v.Stat(); err == nil {
			return st.Size()
		}
	}
	return -1
}

// checkExtent rejects n bytes at off that would run past the end of the file.
func (d *decoder) checkExtent(what string, off, n uint64) error {
	if d.size < 0 {
		return nil
	}
	if size := uint64(d.size); off > size || n > size-off {
		return fmt.Errorf("%w: %s of %d bytes at %d exceeds file size %d", ErrFormat, what, n, off, d.size)
	}
	return nil
}

// maxStripBytes bounds the stored size of a strip that decodes to want
// bytes. LZW and deflate never expand 16-bit samples past twice their size.
func maxStripBytes(want int) uint64 {
	return 2*uint64(want) + 1<<12
}

func newDecoder(r io.ReaderAt) (*decoder, error) {
	var hdr [16]byte
	if _, err := r.ReadAt(hdr[:8], 0); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrFormat, err)
	}

	d := &decoder{r: r, size: readerSize(r)}
	switch string(hdr[:2]) {
	case "II":
		d.order = binary.LittleEndian
	case "MM":
		d.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order mark %q", ErrFormat, hdr[:2])
	}

	switch d.order.Uint16(hdr[2:4]) {
	case 42:
		d.first = int64(d.order.Uint32(hdr[4:8]))
	case 43:
		d.layout.big = true
		if _, err := r.ReadAt(hdr[8:16], 8); err != nil {
			return nil, fmt.Errorf("%w: bigtiff header: %v", ErrFormat, err)
		}
		if d.order.Uint16(hdr[4:6]) != 8 {
			return nil, fmt.Errorf("%w: bigtiff offset size %d", ErrUnsupported, d.order.Uint16(hdr[4:6]))
		}
		d.first = int64(d.order.Uint64(hdr[8:16]))
	default:
		return nil, fmt.Errorf("%w: bad magic %d", ErrFormat, d.order.Uint16(hdr[2:4]))
	}
	return d, nil
}

// pageOffsets walks the IFD chain and returns every IFD offset.
func (d *decoder) pageOffsets() ([]int64, error) {
	var offsets []int64
	seen := make(map[int64]bool)
	for off := d.first; off != 0; {
		if seen[off] || len(offsets) >= maxPages {
			return nil, fmt.Errorf("%w: IFD chain loops", ErrFormat)
		}
		seen[off] = true
		offsets = append(offsets, off)

		n, err := d.readCount(off)
		if err != nil {
			return nil, err
		}
		nextAt := off + d.layout.countSize() + int64(n)*d.layout.entrySize()
		if off, err = d.readOffset(nextAt); err != nil {
			return nil, err
		}
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrFormat)
	}
	return offsets, nil
}

func (d *decoder) readCount(off int64) (uint64, error) {
	buf := make([]byte, d.layout.countSize())
	if _, err := d.r.ReadAt(buf, off); err != nil {
		return 0, fmt.Errorf("%w: IFD at %d: %v", ErrFormat, off, err)
	}
	if d.layout.big {
		return d.order.Uint64(buf), nil
	}
	return uint64(d.order.Uint16(buf)), nil
}

func (d *decoder) readOffset(at int64) (int64, error) {
	buf := make([]byte, d.layout.inlineSize())
	if _, err := d.r.ReadAt(buf, at); err != nil {
		return 0, fmt.Errorf("%w: next IFD pointer: %v", ErrFormat, err)
	}
	if d.layout.big {
		return int64(d.order.Uint64(buf)), nil
	}
	return int64(d.order.Uint32(buf)), nil
}

// page holds the tags of one IFD that this package understands.
type page struct {
	width, height   int
	bitsPerSample   int
	samplesPerPixel int
	sampleFormat    int
	compression     Compression
	predictor       int
	rowsPerStrip    int
	stripOffsets    []uint64
	stripByteCounts []uint64
	description     string
	tiled           bool
}

func (p *page) check() error {
	switch {
	case p.tiled:
		return fmt.Errorf("%w: tiled layout", ErrUnsupported)
	case p.width <= 0 || p.height <= 0:
		return fmt.Errorf("%w: missing image dimensions", ErrFormat)
	case p.samplesPerPixel != 1:
		return fmt.Errorf("%w: %d samples per pixel", ErrUnsupported, p.samplesPerPixel)
	case p.bitsPerSample != 16:
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupported, p.bitsPerSample)
	case p.sampleFormat != 1:
		return fmt.Errorf("%w: sample format %d", ErrUnsupported, p.sampleFormat)
	case len(p.stripOffsets) == 0 || len(p.stripOffsets) != len(p.stripByteCounts):
		return fmt.Errorf("%w: strip offsets/counts mismatch", ErrFormat)
	}
	switch p.compression {
	case CompressionNone, CompressionLZW, CompressionDeflate, compressionDeflateOld:
	default:
		return fmt.Errorf("%w: compression %d", ErrUnsupported, p.compression)
	}
	if p.predictor != predictorNone && p.predictor != predictorHorizontal {
		return fmt.Errorf("%w: predictor %d", ErrUnsupported, p.predictor)
	}
	return nil
}

func (d *decoder) readIFD(off int64) (*page, error) {
	n, err := d.readCount(off)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, int64(n)*d.layout.entrySize())
	if _, err := d.r.ReadAt(buf, off+d.layout.countSize()); err != nil {
		return nil, fmt.Errorf("%w: IFD entries at %d: %v", ErrFormat, off, err)
	}

	p := &page{
		bitsPerSample:   1,
		samplesPerPixel: 1,
		sampleFormat:    1,
		compression:     CompressionNone,
		predictor:       predictorNone,
	}
	for i := uint64(0); i < n; i++ {
		e := buf[int64(i)*d.layout.entrySize():][:d.layout.entrySize()]
		tag := d.order.Uint16(e[0:2])
		typ := d.order.Uint16(e[2:4])

		switch tag {
		case tagImageDescription:
			raw, err := d.entryBytes(e, typ)
			if err != nil {
				return nil, err
			}
			p.description = string(bytes.TrimRight(raw, "\x00"))
			continue
		case tagTileWidth:
			p.tiled = true
			continue
		case tagImageWidth, tagImageLength, tagBitsPerSample, tagCompression,
			tagStripOffsets, tagSamplesPerPixel, tagRowsPerStrip, tagStripByteCounts,
			tagPredictor, tagSampleFormat:
		default:
			continue
		}

		vals, err := d.entryInts(e, typ)
		if err != nil {
			return nil, fmt.Errorf("tag %d: %w", tag, err)
		}
		if len(vals) == 0 {
			return nil, fmt.Errorf("%w: tag %d has no values", ErrFormat, tag)
		}
		switch tag {
		case tagImageWidth:
			p.width = int(vals[0])
		case tagImageLength:
			p.height = int(vals[0])
		case tagBitsPerSample:
			p.bitsPerSample = int(vals[0])
		case tagCompression:
			p.compression = Compression(vals[0])
		case tagStripOffsets:
			p.stripOffsets = vals
		case tagSamplesPerPixel:
			p.samplesPerPixel = int(vals[0])
		case tagRowsPerStrip:
			p.rowsPerStrip = int(min(vals[0], uint64(1<<31-1)))
		case tagStripByteCounts:
			p.stripByteCounts = vals
		case tagPredictor:
			p.predictor = int(vals[0])
		case tagSampleFormat:
			p.sampleFormat = int(vals[0])
		}
	}
	if p.rowsPerStrip <= 0 || p.rowsPerStrip > p.height {
		p.rowsPerStrip = p.height
	}
	return p, nil
}

// entryBytes returns the raw payload of an entry, following the offset when
// it does not fit inline.
func (d *decoder) entryBytes(e []byte, typ uint16) ([]byte, error) {
	size, ok := typeSizes[typ]
	if !ok {
		return nil, fmt.Errorf("%w: field type %d", ErrFormat, typ)
	}
	var count uint64
	var value []byte
	if d.layout.big {
		count = d.order.Uint64(e[4:12])
		value = e[12:20]
	} else {
		count = uint64(d.order.Uint32(e[4:8]))
		value = e[8:12]
	}
	if count > 1<<28 {
		return nil, fmt.Errorf("%w: field count %d", ErrFormat, count)
	}
	n := int(count) * size
	if n <= d.layout.inlineSize() {
		return value[:n], nil
	}

	var off int64
	if d.layout.big {
		off = int64(d.order.Uint64(value))
	} else {
		off = int64(d.order.Uint32(value))
	}
	if off < 0 {
		return nil, fmt.Errorf("%w: field data at %d", ErrFormat, off)
	}
	if err := d.checkExtent("field data", uint64(off), uint64(n)); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := d.r.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("%w: field data at %d: %v", ErrFormat, off, err)
	}
	return buf, nil
}

func (d *decoder) entryInts(e []byte, typ uint16) ([]uint64, error) {
	raw, err := d.entryBytes(e, typ)
	if err != nil {
		return nil, err
	}
	var vals []uint64
	switch typ {
	case typeByte, typeUndef:
		for _, b := range raw {
			vals = append(vals, uint64(b))
		}
	case typeShort, typeSShort:
		for i := 0; i+2 <= len(raw); i += 2 {
			vals = append(vals, uint64(d.order.Uint16(raw[i:])))
		}
	case typeLong, typeSLong:
		for i := 0; i+4 <= len(raw); i += 4 {
			vals = append(vals, uint64(d.order.Uint32(raw[i:])))
		}
	case typeLong8:
		for i := 0; i+8 <= len(raw); i += 8 {
			vals = append(vals, d.order.Uint64(raw[i:]))
		}
	default:
		return nil, fmt.Errorf("%w: non-integer field type %d", ErrFormat, typ)
	}
	return vals, nil
}

// decodePage decompresses every strip of p into dst (height*width samples).
func (d *decoder) decodePage(p *page, dst []uint16) error {
	rowBytes := p.width * 2
	for i, off := range p.stripOffsets {
		row0 := i * p.rowsPerStrip
		if row0 >= p.height {
			break
		}
		rows := min(p.rowsPerStrip, p.height-row0)
		want := rows * rowBytes

		count := p.stripByteCounts[i]
		if count > maxStripBytes(want) {
			return fmt.Errorf("%w: strip %d has %d bytes for %d decoded", ErrFormat, i, count, want)
		}
		if err := d.checkExtent(fmt.Sprintf("strip %d", i), off, count); err != nil {
			return err
		}
		compressed := make([]byte, count)
		if _, err := d.r.ReadAt(compressed, int64(off)); err != nil {
			return fmt.Errorf("%w: strip %d: %v", ErrFormat, i, err)
		}
		raw, err := decompress(compressed, p.compression, want)
		if err != nil {
			return fmt.Errorf("strip %d: %w", i, err)
		}

		out := dst[row0*p.width : (row0+rows)*p.width]
		for j := range out {
			out[j] = d.order.Uint16(raw[2*j:])
		}
		if p.predictor == predictorHorizontal {
			for r := 0; r < rows; r++ {
				row := out[r*p.width : (r+1)*p.width]
				for x := 1; x < len(row); x++ {
					row[x] += row[x-1]
				}
			}
		}
	}
	return nil
}

// decompress returns exactly want bytes of decoded strip data.
func decompress(data []byte, c Compression, want int) ([]byte, error) {
	if c == CompressionNone {
		if len(data) < want {
			return nil, fmt.Errorf("%w: strip has %d bytes, want %d", ErrFormat, len(data), want)
		}
		return data[:want], nil
	}

	var rc io.ReadCloser
	switch c {
	case CompressionLZW:
		rc = lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	case CompressionDeflate, compressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: deflate: %v", ErrFormat, err)
		}
		rc = zr
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, c)
	}
	defer rc.Close()

	out := make([]byte, want)
	if _, err := io.ReadFull(rc, out); err != nil {
		return nil, fmt.Errorf("%w: %s strip: %v", ErrFormat, c, err)
	}
	return out, nil
}
