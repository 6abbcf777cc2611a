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
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/windowstore/pkg/buffer"
	"github.com/numaproj/windowstore/pkg/shared/logging"
	"github.com/numaproj/windowstore/pkg/slice"
	"github.com/numaproj/windowstore/pkg/storeerr"
)

const (
	operationWrite  = "write"
	operationRead   = "read"
	operationDelete = "delete"
)

type managerOptions struct {
	fsys  FileSystem
	codec Codec
	name  string
}

// Option set options for the Manager.
type Option func(*managerOptions)

// WithFileSystem sets the file system the segments are stored on.
func WithFileSystem(fsys FileSystem) Option {
	return func(o *managerOptions) {
		o.fsys = fsys
	}
}

// WithCodec sets the codec of newly written pages.
func WithCodec(c Codec) Option {
	return func(o *managerOptions) {
		o.codec = c
	}
}

// WithName sets the store label of the file metrics.
func WithName(name string) Option {
	return func(o *managerOptions) {
		o.name = name
	}
}

// Manager owns the segment files of one store. Files live in a directory of their own
// below the spill directory, which is removed on Close. Operations on the same segment
// must not run concurrently.
type Manager struct {
	dir   string
	fsys  FileSystem
	codec Codec
	name  string
	lock  sync.Mutex
	// sizes holds the on-disk size of every segment with state
	sizes map[SegmentID]int64
	log   *zap.SugaredLogger
}

// NewManager creates a fresh directory below spillDir for the segments.
func NewManager(ctx context.Context, spillDir string, inputOpts ...Option) (*Manager, error) {
	opts := &managerOptions{fsys: Default, codec: CodecNone, name: "default"}
	for _, o := range inputOpts {
		o(opts)
	}
	if spillDir == "" {
		spillDir = os.TempDir()
	}
	dir := filepath.Join(spillDir, "windowstore-"+uuid.NewString())
	if err := opts.fsys.MkdirAll(dir, 0755); err != nil {
		return nil, storeerr.Wrap(storeerr.IO, err, "failed to create spill directory")
	}
	return &Manager{
		dir:   dir,
		fsys:  opts.fsys,
		codec: opts.codec,
		name:  opts.name,
		sizes: make(map[SegmentID]int64),
		log:   logging.FromContext(ctx).With("spillDir", dir),
	}, nil
}

// Dir returns the directory holding the segments.
func (m *Manager) Dir() string {
	return m.dir
}

// IsHealthy reports whether the segment directory is still usable.
func (m *Manager) IsHealthy(_ context.Context) error {
	info, err := m.fsys.Stat(m.dir)
	if err != nil {
		return storeerr.Wrap(storeerr.IO, err, "segment directory is not accessible")
	}
	if !info.IsDir() {
		return storeerr.Newf(storeerr.IO, "%s is not a directory", m.dir)
	}
	return nil
}

// Codec returns the codec pages are written with.
func (m *Manager) Codec() Codec {
	return m.codec
}

func (m *Manager) path(id SegmentID) string {
	return filepath.Join(m.dir, id.String()+".seg")
}

func (m *Manager) recordError(kind string) {
	fileErrors.WithLabelValues(m.name, kind).Inc()
}

// Write appends the pages to the segment of id and returns the bytes written.
func (m *Manager) Write(id SegmentID, recordSize int, pages []*buffer.Page) (int64, error) {
	start := time.Now()
	res, err := appendSegment(m.fsys, m.path(id), id, recordSize, m.codec, pages)
	if err != nil {
		m.recordError(operationWrite)
		return 0, storeerr.Wrap(storeerr.IO, err, "failed to write segment "+id.String())
	}
	fileOperationTime.WithLabelValues(m.name, operationWrite).Observe(float64(time.Since(start).Microseconds()))
	entriesCount.WithLabelValues(m.name).Add(float64(res.entries))
	entriesBytesCount.WithLabelValues(m.name).Add(float64(res.bytes))

	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.sizes[id]; !ok {
		activeFilesCount.WithLabelValues(m.name).Inc()
	}
	m.sizes[id] += res.bytes
	return res.bytes, nil
}

// Read returns the pages of the segment of id and deletes it. A segment without
// state returns no pages.
func (m *Manager) Read(id SegmentID, recordSize int, provider buffer.Provider) ([]*buffer.Page, error) {
	if m.SizeOnDisk(id) == 0 {
		return nil, nil
	}
	start := time.Now()
	pages, err := readSegment(m.fsys, m.path(id), id, recordSize, m.codec, provider)
	if err != nil {
		m.recordError(operationRead)
		return nil, storeerr.Wrap(storeerr.IO, err, "failed to read segment "+id.String())
	}
	fileOperationTime.WithLabelValues(m.name, operationRead).Observe(float64(time.Since(start).Microseconds()))
	if err := m.Delete(id); err != nil {
		// the state is back in memory, a leftover file is removed with the directory
		m.log.Warnw("Failed to delete a segment after reading it back", zap.String("segment", id.String()), zap.Error(err))
	}
	return pages, nil
}

// SizeOnDisk returns the bytes stored for the segment of id.
func (m *Manager) SizeOnDisk(id SegmentID) int64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.sizes[id]
}

// Delete removes the segment of id. Deleting a missing segment is not an error.
func (m *Manager) Delete(id SegmentID) error {
	start := time.Now()
	m.lock.Lock()
	_, tracked := m.sizes[id]
	delete(m.sizes, id)
	m.lock.Unlock()

	err := m.fsys.Remove(m.path(id))
	if tracked {
		activeFilesCount.WithLabelValues(m.name).Dec()
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		m.recordError(operationDelete)
		return storeerr.Wrap(storeerr.IO, err, "failed to delete segment "+id.String())
	}
	fileOperationTime.WithLabelValues(m.name, operationDelete).Observe(float64(time.Since(start).Microseconds()))
	return nil
}

// DeleteSlice removes the segments of every worker and build side of a slice.
func (m *Manager) DeleteSlice(sliceStart, sliceEnd int64, numWorkers int) error {
	var err error
	for w := 0; w < numWorkers; w++ {
		for _, side := range slice.BuildSides {
			err = multierr.Append(err, m.Delete(SegmentID{SliceStart: sliceStart, SliceEnd: sliceEnd, ThreadID: w, Side: side}))
		}
	}
	return err
}

// NumSegments returns the number of segments holding state.
func (m *Manager) NumSegments() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.sizes)
}

// Close removes the directory and every segment in it.
func (m *Manager) Close() error {
	m.lock.Lock()
	n := len(m.sizes)
	clear(m.sizes)
	m.lock.Unlock()
	activeFilesCount.WithLabelValues(m.name).Sub(float64(n))
	if err := m.fsys.RemoveAll(m.dir); err != nil {
		return storeerr.Wrap(storeerr.IO, err, "failed to remove spill directory")
	}
	return nil
}
