// Package store defines the storage backend interface for reading trace files.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/discochess/cachesim/internal/codec"
)

// ErrNotFound is returned when a trace does not exist in the store.
var ErrNotFound = errors.New("store: trace not found")

// Store defines the interface for storage backends.
// Implementations handle path formats and storage details internally.
type Store interface {
	// ReadTrace reads the named trace. Data is decompressed according to
	// the name's extension, so "wiki.oracleGeneral.zst" yields raw records.
	ReadTrace(ctx context.Context, name string) ([]byte, error)

	// Close releases any resources held by the store.
	Close() error
}

// Decompress reads r to the end through the codec matching name.
func Decompress(name string, r io.Reader) ([]byte, error) {
	c := codec.ForName(name)
	reader, err := c.Reader(r)
	if err != nil {
		return nil, fmt.Errorf("creating decompressor: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing trace: %w", err)
	}
	return data, nil
}
