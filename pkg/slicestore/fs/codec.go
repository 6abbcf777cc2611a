/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package fs

import (
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/numaproj/windowstore/pkg/storeerr"
)

// Codec compresses the pages of a segment.
type Codec uint16

const (
	CodecNone Codec = iota
	CodecZstd
	CodecLZ4
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%d)", uint16(c))
	}
}

// ParseCodec parses a codec name, case-insensitively. The empty name is CodecNone.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return CodecNone, nil
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return 0, storeerr.Newf(storeerr.Configuration, "unknown slice file codec %q", name)
	}
}

// EncodeAll and DecodeAll are safe for concurrent use, so one instance of each is shared.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// compress returns the stored form of data and whether it is compressed. Data which
// does not shrink is stored as is.
func (c Codec) compress(data []byte) ([]byte, bool, error) {
	var compressed []byte
	switch c {
	case CodecNone:
		return data, false, nil
	case CodecZstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, false, err
		}
		compressed = enc.EncodeAll(data, nil)
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, false, err
		}
		// zero means incompressible
		compressed = buf[:n]
	default:
		return nil, false, fmt.Errorf("unsupported codec %s", c)
	}
	if len(compressed) == 0 || len(compressed) >= len(data) {
		return data, false, nil
	}
	return compressed, true, nil
}

// decompress decodes stored into dst, which has the uncompressed length.
func (c Codec) decompress(stored []byte, dst []byte) error {
	switch c {
	case CodecZstd:
		_, dec, err := zstdCodec()
		if err != nil {
			return err
		}
		out, err := dec.DecodeAll(stored, dst[:0])
		if err != nil {
			return err
		}
		if len(out) != len(dst) {
			return fmt.Errorf("decompressed %d bytes, expected %d", len(out), len(dst))
		}
		if &out[0] != &dst[0] {
			copy(dst, out)
		}
		return nil
	case CodecLZ4:
		n, err := lz4.UncompressBlock(stored, dst)
		if err != nil {
			return err
		}
		if n != len(dst) {
			return fmt.Errorf("decompressed %d bytes, expected %d", n, len(dst))
		}
		return nil
	default:
		return fmt.Errorf("unsupported codec %s", c)
	}
}
