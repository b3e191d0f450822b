package vfs

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zstd"
	"github.com/saintfish/chardet"
)

// CompressThreshold is the size above which file content is stored zstd
// compressed
const CompressThreshold = 4 * 1024

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
	detector   = chardet.NewTextDetector()
)

// encoded is file content ready for storage
type encoded struct {
	data       []byte
	size       int64
	mime       string
	charset    string
	compressed bool
}

func encode(data []byte) encoded {
	mt := mimetype.Detect(data)
	out := encoded{
		data: data,
		size: int64(len(data)),
		mime: mt.String(),
	}

	if isText(mt) && len(data) > 0 {
		if res, err := detector.DetectBest(data); err == nil {
			out.charset = strings.ToLower(res.Charset)
		}
	}

	if len(data) > CompressThreshold {
		if packed := encoder.EncodeAll(data, make([]byte, 0, len(data)/2)); len(packed) < len(data) {
			out.data = packed
			out.compressed = true
		}
	}
	return out
}

func decode(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
