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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"go.uber.org/multierr"

	"github.com/numaproj/windowstore/pkg/buffer"
	"github.com/numaproj/windowstore/pkg/slice"
)

const (
	IEEE          = 0xedb88320
	SegmentPrefix = "segment"
	segmentMagic  = 0x4c535357 // "WSSL"
	segmentV1     = 1
)

var (
	errChecksumMismatch = errors.New("data checksum not match")
	errHeaderMismatch   = errors.New("segment header does not match")
)

var crcTable = crc32.MakeTable(IEEE)

// SegmentID identifies the state of one (worker, build side) of a slice.
type SegmentID struct {
	SliceStart int64
	SliceEnd   int64
	ThreadID   int
	Side       slice.BuildSide
}

func (id SegmentID) String() string {
	return fmt.Sprintf("%s-%d-%d-%d-%s", SegmentPrefix, id.SliceStart, id.SliceEnd, id.ThreadID, id.Side)
}

// segmentHeader starts every segment file.
//
//	+-------+---------+-------+-------------+-----------+-----------+---------+-------------+
//	| magic | version | codec | slice start | slice end | thread id | side    | record size |
//	| u32   | u16     | u16   | i64         | i64       | u32       | u32     | u32         |
//	+-------+---------+-------+-------------+-----------+-----------+---------+-------------+
type segmentHeader struct {
	Magic      uint32
	Version    uint16
	Codec      uint16
	SliceStart int64
	SliceEnd   int64
	ThreadID   uint32
	Side       uint32
	RecordSize uint32
}

var segmentHeaderSize = int64(binary.Size(segmentHeader{}))

// entryHeader precedes the bytes of every page. Compressed is 1 when the stored bytes are
// encoded with the segment's codec. The CRC covers the stored bytes.
//
//	+-------------+------------+---------------+------------+-----+--------------+
//	| num records | raw length | stored length | compressed | CRC | stored bytes |
//	| u32         | u32        | u32           | u32        | u32 | []byte       |
//	+-------------+------------+---------------+------------+-----+--------------+
type entryHeader struct {
	NumRecords   uint32
	RawLength    uint32
	StoredLength uint32
	Compressed   uint32
	Checksum     uint32
}

var entryHeaderSize = int64(binary.Size(entryHeader{}))

func newSegmentHeader(id SegmentID, recordSize int, codec Codec) segmentHeader {
	return segmentHeader{
		Magic:      segmentMagic,
		Version:    segmentV1,
		Codec:      uint16(codec),
		SliceStart: id.SliceStart,
		SliceEnd:   id.SliceEnd,
		ThreadID:   uint32(id.ThreadID),
		Side:       uint32(id.Side),
		RecordSize: uint32(recordSize),
	}
}

func calculateChecksum(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// encodeEntries builds the entries of the non-empty pages.
func encodeEntries(buf *bytes.Buffer, pages []*buffer.Page, recordSize int, codec Codec) (int, error) {
	entries := 0
	for _, p := range pages {
		if p.NumRecords == 0 {
			continue
		}
		raw := p.Data[:p.NumRecords*recordSize]
		stored, compressed, err := codec.compress(raw)
		if err != nil {
			return 0, fmt.Errorf("failed to compress page: %w", err)
		}
		eh := entryHeader{
			NumRecords:   uint32(p.NumRecords),
			RawLength:    uint32(len(raw)),
			StoredLength: uint32(len(stored)),
			Checksum:     calculateChecksum(stored),
		}
		if compressed {
			eh.Compressed = 1
		}
		if err = binary.Write(buf, binary.LittleEndian, eh); err != nil {
			return 0, err
		}
		buf.Write(stored)
		entries++
	}
	return entries, nil
}

// writeResult describes a successful append to a segment.
type writeResult struct {
	bytes   int64
	entries int
	created bool
}

// appendSegment appends the pages to the segment at path, creating it if needed. The
// write is synced before returning. On failure the file is truncated back to its
// previous size so a later attempt starts from a clean end.
func appendSegment(fsys FileSystem, path string, id SegmentID, recordSize int, codec Codec, pages []*buffer.Page) (res writeResult, err error) {
	fp, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return res, err
	}
	defer func() {
		err = multierr.Append(err, fp.Close())
	}()
	stat, err := fp.Stat()
	if err != nil {
		return res, err
	}
	prevSize := stat.Size()

	buf := new(bytes.Buffer)
	if prevSize == 0 {
		res.created = true
		if err = binary.Write(buf, binary.LittleEndian, newSegmentHeader(id, recordSize, codec)); err != nil {
			return res, err
		}
	} else if _, err = readSegmentHeader(fp, id, recordSize, codec); err != nil {
		return res, err
	}
	if res.entries, err = encodeEntries(buf, pages, recordSize, codec); err != nil {
		return res, err
	}

	wrote, err := fp.WriteAt(buf.Bytes(), prevSize)
	if err == nil && wrote != buf.Len() {
		err = fmt.Errorf("expected to write %d, but wrote only %d", buf.Len(), wrote)
	}
	if err == nil {
		err = fp.Sync()
	}
	if err != nil {
		// only a fully synced write counts
		return res, multierr.Append(err, fp.Truncate(prevSize))
	}
	res.bytes = int64(wrote)
	return res, nil
}

func readSegmentHeader(r io.ReaderAt, id SegmentID, recordSize int, codec Codec) (segmentHeader, error) {
	var hp segmentHeader
	if err := binary.Read(io.NewSectionReader(r, 0, segmentHeaderSize), binary.LittleEndian, &hp); err != nil {
		return hp, fmt.Errorf("failed to read segment header: %w", err)
	}
	if hp != newSegmentHeader(id, recordSize, codec) {
		return hp, fmt.Errorf("%w: %s", errHeaderMismatch, id)
	}
	return hp, nil
}

// readSegment decodes every page of the segment into pages obtained from provider.
func readSegment(fsys FileSystem, path string, id SegmentID, recordSize int, codec Codec, provider buffer.Provider) (pages []*buffer.Page, err error) {
	fp, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, fp.Close())
		if err != nil {
			buffer.ReleasePages(provider, pages)
			pages = nil
		}
	}()
	stat, err := fp.Stat()
	if err != nil {
		return nil, err
	}
	if _, err = readSegmentHeader(fp, id, recordSize, codec); err != nil {
		return nil, err
	}

	pageSize := provider.PageSize()
	offset := segmentHeaderSize
	for offset < stat.Size() {
		var eh entryHeader
		if err = binary.Read(io.NewSectionReader(fp, offset, entryHeaderSize), binary.LittleEndian, &eh); err != nil {
			return pages, fmt.Errorf("failed to read entry header at offset %d: %w", offset, err)
		}
		offset += entryHeaderSize
		if int(eh.RawLength) > pageSize || int(eh.RawLength) != int(eh.NumRecords)*recordSize || eh.RawLength == 0 ||
			offset+int64(eh.StoredLength) > stat.Size() {
			return pages, fmt.Errorf("corrupted entry header at offset %d", offset-entryHeaderSize)
		}
		stored := make([]byte, eh.StoredLength)
		if _, err = fp.ReadAt(stored, offset); err != nil {
			return pages, fmt.Errorf("failed to read entry at offset %d: %w", offset, err)
		}
		offset += int64(eh.StoredLength)
		if calculateChecksum(stored) != eh.Checksum {
			return pages, fmt.Errorf("%w at offset %d", errChecksumMismatch, offset-int64(eh.StoredLength))
		}

		page := &buffer.Page{Data: provider.GetPage(), NumRecords: int(eh.NumRecords)}
		pages = append(pages, page)
		raw := page.Data[:eh.RawLength]
		if eh.Compressed == 0 {
			copy(raw, stored)
			continue
		}
		if err = codec.decompress(stored, raw); err != nil {
			return pages, fmt.Errorf("failed to decompress entry: %w", err)
		}
	}
	return pages, nil
}
