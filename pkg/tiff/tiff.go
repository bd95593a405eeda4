// Package tiff reads and writes multi-page 16-bit grayscale TIFF stacks.
//
// Each page of a stack is one z-slice of a volume. The package covers the
// subset of TIFF that tile files and reconstructions use:
//
//   - classic TIFF and BigTIFF, either byte order on read, little-endian on write
//   - one sample per pixel, 16 bits per sample, unsigned
//   - strip layout (tiled TIFFs are rejected with [ErrUnsupported])
//   - compression none, LZW and deflate, with optional horizontal predictor on read
//   - the ImageDescription tag of the first page
//
// [ReadInfo] inspects a file without decoding pixels, [ReadVolume] decodes a
// z-range and [WriteFile] writes a volume atomically.
package tiff

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrFormat reports a malformed or truncated file.
	ErrFormat = errors.New("tiff: invalid format")

	// ErrUnsupported reports a valid TIFF using features outside this package's subset.
	ErrUnsupported = errors.New("tiff: unsupported feature")

	// ErrTooLarge reports a classic TIFF whose offsets would exceed 4 GiB.
	ErrTooLarge = errors.New("tiff: file too large for classic TIFF")
)

// Compression identifies a strip compression scheme by its TIFF tag value.
type Compression uint16

// Supported compression schemes.
const (
	CompressionNone    Compression = 1
	CompressionLZW     Compression = 5
	CompressionDeflate Compression = 8

	// compressionDeflateOld is the pre-standard deflate code some writers still emit.
	compressionDeflateOld Compression = 32946
)

// String returns the CLI name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZW:
		return "lzw"
	case CompressionDeflate, compressionDeflateOld:
		return "deflate"
	}
	return fmt.Sprintf("compression(%d)", uint16(c))
}

// ParseCompression converts a CLI name (none, lzw, deflate) to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return CompressionNone, nil
	case "lzw":
		return CompressionLZW, nil
	case "deflate", "zlib":
		return CompressionDeflate, nil
	}
	return 0, fmt.Errorf("%w: compression %q (want none, lzw or deflate)", ErrUnsupported, s)
}

// Info describes a stack without its pixel data.
type Info struct {
	Pages         int
	Height        int
	Width         int
	BitsPerSample int
	Compression   Compression
	Description   string
	Size          int64
	BigTIFF       bool
}

// Tag numbers.
const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagImageDescription = 270
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagPlanarConfig     = 284
	tagPredictor        = 317
	tagTileWidth        = 322
	tagSampleFormat     = 339
)

// Field types.
const (
	typeByte   = 1
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeLong8  = 16
	typeUndef  = 7
	typeSShort = 8
	typeSLong  = 9
)

var typeSizes = map[uint16]int{
	typeByte:   1,
	typeASCII:  1,
	typeShort:  2,
	typeLong:   4,
	typeUndef:  1,
	typeSShort: 2,
	typeSLong:  4,
	5:          8, // RATIONAL
	10:         8, // SRATIONAL
	11:         4, // FLOAT
	12:         8, // DOUBLE
	typeLong8:  8,
	17:         8, // SLONG8
	18:         8, // IFD8
}

const (
	predictorNone       = 1
	predictorHorizontal = 2
)

// maxPages guards against IFD cycles in corrupt files.
const maxPages = 1 << 16

// layout captures the offsets that differ between classic TIFF and BigTIFF.
type layout struct {
	big bool
}

func (l layout) headerSize() int64 {
	if l.big {
		return 16
	}
	return 8
}

func (l layout) entrySize() int64 {
	if l.big {
		return 20
	}
	return 12
}

func (l layout) countSize() int64 {
	if l.big {
		return 8
	}
	return 2
}

func (l layout) inlineSize() int {
	if l.big {
		return 8
	}
	return 4
}

func (l layout) ifdSize(entries int) int64 {
	return l.countSize() + int64(entries)*l.entrySize() + int64(l.inlineSize())
}
