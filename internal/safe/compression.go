// internal/safe/compression.go
package safe

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Disabled turns off compression at rest. Wire encoding is unaffected.
	Disabled bool
	// Minimum size in bytes before compressing
	MinSize int
	// Compression level (1=fastest, 4=best)
	Level int
}

// DefaultCompressionOptions provides sensible defaults
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024, // 1KB
		Level:   2,    // Balanced speed/compression
	}
}

func encoderLevel(level int) zstd.EncoderLevel {
	switch level {
	case 1:
		return zstd.SpeedFastest
	case 3:
		return zstd.SpeedBetterCompression
	case 4:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// Codec compresses blobs at rest and encodes them for transfer. EncodeAll
// and DecodeAll are safe for concurrent use, so one Codec is shared by all
// workers.
type Codec struct {
	opts    CompressionOptions
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewCodec(opts CompressionOptions) (*Codec, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel(opts.Level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &Codec{opts: opts, encoder: enc, decoder: dec}, nil
}

// compress returns the at-rest form of content and whether it is compressed.
// Small content, or content that does not shrink, is kept as is.
func (c *Codec) compress(content []byte) ([]byte, bool) {
	if c.opts.Disabled || len(content) < c.opts.MinSize {
		return content, false
	}

	compressed := c.encoder.EncodeAll(content, make([]byte, 0, len(content)))
	if len(compressed) >= len(content) {
		return content, false
	}
	return compressed, true
}

// Encode always zstd-encodes data, for transfer to a remote.
func (c *Codec) Encode(data []byte) []byte {
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// Decode reverses Encode.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}

// Close releases the encoder and decoder.
func (c *Codec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
