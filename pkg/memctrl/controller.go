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

// Package memctrl moves slice state between memory and files and projects how long
// doing so takes, using linear cost models calibrated against the spill directory.
package memctrl

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/numaproj/windowstore/pkg/buffer"
	"github.com/numaproj/windowstore/pkg/shared/ewma"
	"github.com/numaproj/windowstore/pkg/shared/logging"
	"github.com/numaproj/windowstore/pkg/slice"
	"github.com/numaproj/windowstore/pkg/slicestore"
	"github.com/numaproj/windowstore/pkg/slicestore/fs"
	"github.com/numaproj/windowstore/pkg/storeerr"
)

const (
	operationWrite = "write"
	operationRead  = "read"

	calibrationRecordSize = 8
	throughputSpan        = 20
)

// MemoryController owns the slice files of a store and the cost models of reading
// and writing them.
type MemoryController struct {
	info    slicestore.SliceStoreInfo
	files   *fs.Manager
	limiter *rate.Limiter
	opts    *options

	lock       sync.RWMutex
	write      costModel
	read       costModel
	calibrated bool

	// observed bytes per millisecond of slice file operations
	writeThroughput *ewma.SimpleEWMA
	readThroughput  *ewma.SimpleEWMA

	log *zap.SugaredLogger
}

// NewMemoryController validates info and creates the spill directory of the store.
func NewMemoryController(ctx context.Context, info slicestore.SliceStoreInfo, inputOpts ...Option) (*MemoryController, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	codec, err := fs.ParseCodec(info.FileCodec)
	if err != nil {
		return nil, err
	}
	opts := &options{
		name:        "default",
		fsys:        fs.Default,
		repetitions: defaultCalibrationRepetitions,
	}
	for _, o := range inputOpts {
		o(opts)
	}
	if opts.provider == nil {
		opts.provider = buffer.NewProvider()
	}
	files, err := fs.NewManager(ctx, info.SpillDirectory, fs.WithFileSystem(opts.fsys), fs.WithCodec(codec), fs.WithName(opts.name))
	if err != nil {
		return nil, err
	}
	mc := &MemoryController{
		info:            info,
		files:           files,
		opts:            opts,
		writeThroughput: ewma.NewSimpleEWMA(throughputSpan),
		readThroughput:  ewma.NewSimpleEWMA(throughputSpan),
		log:             logging.FromContext(ctx).With("store", opts.name),
	}
	if info.IOBytesPerSecond > 0 {
		mc.limiter = rate.NewLimiter(rate.Limit(info.IOBytesPerSecond), int(info.IOBytesPerSecond))
	}
	return mc, nil
}

// Info returns the configuration of the controller.
func (mc *MemoryController) Info() slicestore.SliceStoreInfo {
	return mc.info
}

// Files returns the file manager of the controller.
func (mc *MemoryController) Files() *fs.Manager {
	return mc.files
}

// MeasureReadAndWriteExecTimes times writing and reading payloads of the given sizes
// and fits the write and read cost models. At least two distinct sizes are required.
func (mc *MemoryController) MeasureReadAndWriteExecTimes(ctx context.Context, sizes []int64) error {
	distinct, err := distinctSizes(sizes)
	if err != nil {
		return err
	}
	if distinct < 2 {
		return storeerr.Newf(storeerr.Configuration, "calibration needs at least two distinct sizes, got %v", sizes)
	}

	reps := mc.opts.repetitions
	measured := make([]int64, len(sizes)*reps)
	writeMs := make([]float64, len(measured))
	readMs := make([]float64, len(measured))
	g, gctx := errgroup.WithContext(ctx)
	// measure under the same concurrency the executor uses
	g.SetLimit(mc.info.MaxConcurrentIO)
	for i := range measured {
		size := sizes[i/reps]
		g.Go(func() error {
			var err error
			measured[i], writeMs[i], readMs[i], err = mc.measure(gctx, i, size)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to calibrate the cost models: %w", err)
	}

	write, err := fitCostModel(measured, writeMs)
	if err != nil {
		return err
	}
	read, err := fitCostModel(measured, readMs)
	if err != nil {
		return err
	}
	mc.lock.Lock()
	mc.write, mc.read, mc.calibrated = write, read, true
	mc.lock.Unlock()

	costModelSlope.WithLabelValues(mc.opts.name, operationWrite).Set(write.slope)
	costModelIntercept.WithLabelValues(mc.opts.name, operationWrite).Set(write.intercept)
	costModelSlope.WithLabelValues(mc.opts.name, operationRead).Set(read.slope)
	costModelIntercept.WithLabelValues(mc.opts.name, operationRead).Set(read.intercept)
	mc.log.Infow("Calibrated slice file cost models",
		zap.Int64s("sizes", sizes),
		zap.Float64("writeSlope", write.slope), zap.Float64("writeIntercept", write.intercept),
		zap.Float64("readSlope", read.slope), zap.Float64("readIntercept", read.intercept))
	return nil
}

// measure writes and reads back a payload of at least size bytes. It returns the
// payload size and the write and read times in milliseconds.
func (mc *MemoryController) measure(ctx context.Context, i int, size int64) (int64, float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, 0, err
	}
	provider := mc.opts.provider
	pageSize := int64(provider.PageSize())
	numPages := (size + pageSize - 1) / pageSize
	pages := make([]*buffer.Page, 0, numPages)
	defer func() {
		buffer.ReleasePages(provider, pages)
	}()
	for p := int64(0); p < numPages; p++ {
		page := &buffer.Page{Data: provider.GetPage(), NumRecords: int(pageSize) / calibrationRecordSize}
		pages = append(pages, page)
		if _, err := rand.Read(page.Data); err != nil {
			return 0, 0, 0, err
		}
	}

	// real slices never start before zero
	id := fs.SegmentID{SliceStart: -1, SliceEnd: 0, ThreadID: i}
	start := time.Now()
	if _, err := mc.files.Write(id, calibrationRecordSize, pages); err != nil {
		return 0, 0, 0, err
	}
	writeMs := float64(time.Since(start).Microseconds()) / 1000
	start = time.Now()
	read, err := mc.files.Read(id, calibrationRecordSize, provider)
	if err != nil {
		return 0, 0, 0, multierr.Append(err, mc.files.Delete(id))
	}
	readMs := float64(time.Since(start).Microseconds()) / 1000
	buffer.ReleasePages(provider, read)
	return numPages * pageSize, writeMs, readMs, nil
}

// Calibrated reports whether the cost models have been fitted.
func (mc *MemoryController) Calibrated() bool {
	mc.lock.RLock()
	defer mc.lock.RUnlock()
	return mc.calibrated
}

// WriteCost returns the projected milliseconds of writing size bytes. It is zero
// until the controller is calibrated.
func (mc *MemoryController) WriteCost(size int64) int64 {
	mc.lock.RLock()
	defer mc.lock.RUnlock()
	return mc.write.cost(size)
}

// ReadCost returns the projected milliseconds of reading size bytes back.
func (mc *MemoryController) ReadCost(size int64) int64 {
	mc.lock.RLock()
	defer mc.lock.RUnlock()
	return mc.read.cost(size)
}

// ObservedWriteThroughput returns the smoothed bytes per millisecond of slice writes.
func (mc *MemoryController) ObservedWriteThroughput() float64 {
	return mc.writeThroughput.Get()
}

// ObservedReadThroughput returns the smoothed bytes per millisecond of slice reads.
func (mc *MemoryController) ObservedReadThroughput() float64 {
	return mc.readThroughput.Get()
}

func (mc *MemoryController) observe(operation string, e *ewma.SimpleEWMA, bytes int64, elapsed time.Duration) {
	ms := float64(elapsed.Microseconds()) / 1000
	if bytes <= 0 || ms <= 0 {
		return
	}
	e.Add(float64(bytes) / ms)
	observedThroughput.WithLabelValues(mc.opts.name, operation).Set(e.Get())
}

func (mc *MemoryController) throttle(ctx context.Context, n int64) error {
	if mc.limiter == nil || n <= 0 {
		return nil
	}
	start := time.Now()
	burst := int64(mc.limiter.Burst())
	for n > 0 {
		chunk := min(n, burst)
		if err := mc.limiter.WaitN(ctx, int(chunk)); err != nil {
			return err
		}
		n -= chunk
	}
	throttledTime.WithLabelValues(mc.opts.name).Observe(float64(time.Since(start).Microseconds()))
	return nil
}

func segmentID(s *slice.Slice, workerThreadID int, side slice.BuildSide) fs.SegmentID {
	return fs.SegmentID{
		SliceStart: s.StartTime(),
		SliceEnd:   s.EndTime(),
		ThreadID:   workerThreadID % s.NumWorkerThreads(),
		Side:       side,
	}
}

// WriteSlice appends the in-memory state of (workerThreadID, side) of s to its file and
// releases the written pages. It returns the bytes written. Combined, dropped and
// triggered slices are skipped. On failure the records stay in memory.
func (mc *MemoryController) WriteSlice(ctx context.Context, s *slice.Slice, workerThreadID int, side slice.BuildSide) (int64, error) {
	var written int64
	_, err := s.WithSpillableBuffer(workerThreadID, side, func(v *buffer.PagedVector) error {
		if v.NumRecords() == 0 {
			return nil
		}
		if err := mc.throttle(ctx, v.SizeInBytes()); err != nil {
			return err
		}
		start := time.Now()
		n, err := mc.files.Write(segmentID(s, workerThreadID, side), v.Layout().RecordSize(), v.Pages())
		if err != nil {
			return err
		}
		mc.observe(operationWrite, mc.writeThroughput, n, time.Since(start))
		v.Release()
		s.SetSpilled(workerThreadID, side, true)
		written = n
		return nil
	})
	sliceBytes.WithLabelValues(mc.opts.name, operationWrite).Add(float64(written))
	return written, err
}

// ReadSlice reads the file state of (workerThreadID, side) of s back in front of its
// in-memory records and deletes the file. It returns the bytes read.
func (mc *MemoryController) ReadSlice(ctx context.Context, s *slice.Slice, workerThreadID int, side slice.BuildSide) (int64, error) {
	var read int64
	_, err := s.WithThreadBuffer(workerThreadID, side, func(v *buffer.PagedVector) error {
		if !s.IsSpilled(workerThreadID, side) {
			return nil
		}
		id := segmentID(s, workerThreadID, side)
		size := mc.files.SizeOnDisk(id)
		if err := mc.throttle(ctx, size); err != nil {
			return err
		}
		start := time.Now()
		pages, err := mc.files.Read(id, v.Layout().RecordSize(), s.Provider())
		if err != nil {
			return err
		}
		mc.observe(operationRead, mc.readThroughput, size, time.Since(start))
		v.PrependPages(pages)
		s.SetSpilled(workerThreadID, side, false)
		read = size
		return nil
	})
	sliceBytes.WithLabelValues(mc.opts.name, operationRead).Add(float64(read))
	return read, err
}

// ReadSliceFully reads back the file state of every worker and side of s.
func (mc *MemoryController) ReadSliceFully(ctx context.Context, s *slice.Slice) error {
	var err error
	for w := 0; w < s.NumWorkerThreads(); w++ {
		for _, side := range slice.BuildSides {
			if _, rErr := mc.ReadSlice(ctx, s, w, side); rErr != nil {
				err = multierr.Append(err, rErr)
			}
		}
	}
	return err
}

// StateSizeOnDisk returns the file bytes of (workerThreadID, side) of s.
func (mc *MemoryController) StateSizeOnDisk(s *slice.Slice, workerThreadID int, side slice.BuildSide) int64 {
	return mc.files.SizeOnDisk(segmentID(s, workerThreadID, side))
}

// DeleteSlice removes every file of s.
func (mc *MemoryController) DeleteSlice(s *slice.Slice) error {
	return mc.files.DeleteSlice(s.StartTime(), s.EndTime(), s.NumWorkerThreads())
}

// Close removes the spill directory of the store.
func (mc *MemoryController) Close() error {
	return mc.files.Close()
}
