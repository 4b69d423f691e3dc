// Package codec compresses and decompresses trace files.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

// Codec provides compression and decompression functionality.
type Codec interface {
	// Reader wraps r to decompress data read from it.
	Reader(r io.Reader) (io.ReadCloser, error)
	// Writer wraps w to compress data written to it.
	Writer(w io.Writer) (io.WriteCloser, error)
	// Extension returns the file extension without dot (e.g., "zst", "gz").
	// Returns empty string for no compression.
	Extension() string
}

// ForName picks the codec matching the extension of a trace name.
func ForName(name string) Codec {
	return ForExtension(strings.TrimPrefix(path.Ext(name), "."))
}

// ForExtension returns the codec for ext, or None when ext names no
// compression.
func ForExtension(ext string) Codec {
	switch strings.ToLower(ext) {
	case "zst", "zstd":
		return NewZstd()
	case "gz", "gzip":
		return NewGzip()
	default:
		return None{}
	}
}

// Decode decompresses data in full.
func Decode(c Codec, data []byte) ([]byte, error) {
	if d, ok := c.(interface {
		decodeAll([]byte) ([]byte, error)
	}); ok {
		return d.decodeAll(data)
	}
	r, err := c.Reader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening %s reader: %w", name(c), err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", name(c), err)
	}
	return out, nil
}

// Encode compresses data in full.
func Encode(c Codec, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := c.Writer(&buf)
	if err != nil {
		return nil, fmt.Errorf("opening %s writer: %w", name(c), err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("compressing %s: %w", name(c), err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing %s: %w", name(c), err)
	}
	return buf.Bytes(), nil
}

func name(c Codec) string {
	if ext := c.Extension(); ext != "" {
		return ext
	}
	return "raw"
}
