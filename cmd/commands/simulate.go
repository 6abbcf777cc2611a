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

package commands

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/windowstore"
	"github.com/numaproj/windowstore/pkg/buffer"
	"github.com/numaproj/windowstore/pkg/metrics"
	"github.com/numaproj/windowstore/pkg/shared/config"
	"github.com/numaproj/windowstore/pkg/shared/logging"
	"github.com/numaproj/windowstore/pkg/slice"
	"github.com/numaproj/windowstore/pkg/slicecache"
	"github.com/numaproj/windowstore/pkg/slicestore"
	"github.com/numaproj/windowstore/pkg/slicestore/filebacked"
	"github.com/numaproj/windowstore/pkg/watermark/processor"
)

const eventRecordSize = 8

type simulateOptions struct {
	configFile  string
	spillDir    string
	events      int
	batchSize   int
	step        int64
	disorder    int64
	seed        int64
	metricsPort int
	output      string
}

type simulationSummary struct {
	Ingested        int64         `json:"ingested"`
	Late            int64         `json:"late"`
	TriggeredWindow int64         `json:"windows"`
	EmittedRecords  int64         `json:"emittedRecords"`
	WriteThroughput float64       `json:"writeBytesPerMs"`
	ReadThroughput  float64       `json:"readBytesPerMs"`
	Duration        time.Duration `json:"durationNs"`
}

func (s simulationSummary) print(out io.Writer, format string) error {
	if format == "json" {
		return json.NewEncoder(out).Encode(s)
	}
	fmt.Fprintf(out, "ingested:          %d\n", s.Ingested)
	fmt.Fprintf(out, "late:              %d\n", s.Late)
	fmt.Fprintf(out, "windows:           %d\n", s.TriggeredWindow)
	fmt.Fprintf(out, "emitted records:   %d\n", s.EmittedRecords)
	fmt.Fprintf(out, "write throughput:  %.2f bytes/ms\n", s.WriteThroughput)
	fmt.Fprintf(out, "read throughput:   %.2f bytes/ms\n", s.ReadThroughput)
	fmt.Fprintf(out, "duration:          %s\n", s.Duration)
	return nil
}

func NewSimulateCommand() *cobra.Command {
	var opts simulateOptions

	command := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a file-backed slice store with synthetic out-of-order streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newCommandLogger("simulate")
			ctx := logging.WithLogger(context.Background(), logger)
			if opts.output != "text" && opts.output != "json" {
				return fmt.Errorf("unsupported output format %q", opts.output)
			}
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			if opts.spillDir != "" {
				cfg.Store.SpillDirectory = opts.spillDir
			}
			v := windowstore.GetVersion()
			metrics.BuildInfo.WithLabelValues("simulate", v.Version, v.Platform).Set(1)
			logger.Infow("Starting simulation", zap.String("version", v.String()), zap.String("config", cfg.String()))

			summary, err := runSimulation(ctx, *cfg, opts)
			if err != nil {
				return err
			}
			return summary.print(cmd.OutOrStdout(), opts.output)
		},
	}
	command.Flags().StringVar(&opts.configFile, "config", "", "Path of the YAML configuration file")
	command.Flags().StringVar(&opts.spillDir, "spill-dir", "", "Directory slice files are written to")
	command.Flags().IntVar(&opts.events, "events", 100000, "Number of events per worker")
	command.Flags().IntVar(&opts.batchSize, "batch-size", 1000, "Events ingested between two watermark updates")
	command.Flags().Int64Var(&opts.step, "step", 1, "Milliseconds between consecutive events")
	command.Flags().Int64Var(&opts.disorder, "disorder", 500, "Maximum lateness of an event in milliseconds")
	command.Flags().Int64Var(&opts.seed, "seed", 1, "Seed of the traces, worker w uses seed+w")
	command.Flags().StringVarP(&opts.output, "output", "o", "text", "Summary format, text or json")
	command.Flags().IntVar(&opts.metricsPort, "metrics-port", 0, "Port of the metrics server, 0 disables it")
	return command
}

// runSimulation feeds one synthetic stream per worker into a file-backed store. Each
// worker is its own watermark origin. After every batch a worker updates the store,
// triggers and combines the windows the watermark has passed, then collects garbage.
func runSimulation(ctx context.Context, cfg config.Config, opts simulateOptions) (summary simulationSummary, err error) {
	log := logging.FromContext(ctx)
	if opts.batchSize <= 0 {
		opts.batchSize = 1
	}
	policy, err := slicecache.ParsePolicy(cfg.Cache.Policy)
	if err != nil {
		return summary, err
	}
	workers := cfg.WorkerThreads
	origins := make([]uint64, workers)
	for w := range origins {
		origins[w] = uint64(w)
	}
	provider := buffer.NewProvider(buffer.WithPageSize(cfg.PageSize))
	wm := processor.NewMultiOriginProcessor(ctx, origins)
	store, err := filebacked.NewFileBackedTimeBasedSliceStore(ctx, cfg.WindowSize, cfg.WindowSlide, origins, provider, cfg.Store,
		filebacked.WithName("simulate"), filebacked.WithWatermarkProcessor(wm))
	if err != nil {
		return summary, err
	}
	defer func() {
		err = multierr.Append(err, store.DeleteState(context.WithoutCancel(ctx)))
	}()
	if err = store.SetWorkerThreads(workers); err != nil {
		return summary, err
	}
	if opts.metricsPort > 0 {
		msOpts := append(metrics.NewMetricsOptions(ctx, []metrics.HealthChecker{store}), metrics.WithPort(opts.metricsPort))
		shutdown, err := metrics.NewMetricsServer(msOpts...).Start(ctx)
		if err != nil {
			return summary, err
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Warnw("Failed to stop the metrics server", zap.Error(err))
			}
		}()
	}
	createFn := func(start, end int64) (*slice.Slice, error) {
		return slice.New(start, end, workers, buffer.FixedSizeLayout(eventRecordSize), provider)
	}

	var (
		ingested = atomic.NewInt64(0)
		late     = atomic.NewInt64(0)
		windows  = atomic.NewInt64(0)
		emitted  = atomic.NewInt64(0)
	)
	emit := func(ctx context.Context, triggered []slicestore.WindowSlices) error {
		for _, ws := range triggered {
			var n int64
			for _, sl := range ws.Slices {
				if err := store.Combine(ctx, sl); err != nil {
					return err
				}
				for _, side := range slice.BuildSides {
					n += int64(sl.Combined(side).NumRecords())
				}
			}
			windows.Inc()
			emitted.Add(n)
		}
		return nil
	}

	start := time.Now()
	g, gCtx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			cache, err := slicecache.New[*slice.Slice](policy, cfg.Cache.Capacity, slicecache.WithName(fmt.Sprintf("simulate-%d", w)))
			if err != nil {
				return err
			}
			onMiss := func(ts int64) (*slice.Slice, error) {
				slices, err := store.GetSlicesOrCreate(gCtx, ts, w, slice.Left, createFn)
				if err != nil {
					return nil, err
				}
				return slices[0], nil
			}
			trace := syntheticTrace(opts.events, opts.step, opts.disorder, opts.seed+int64(w))
			rec := make([]byte, eventRecordSize)
			var (
				seq   uint64
				maxTs int64
			)
			for i, ts := range trace {
				sl, err := cache.GetFromCache(ts, onMiss)
				if err != nil {
					return err
				}
				binary.LittleEndian.PutUint64(rec, uint64(ts))
				if err := sl.Append(w, slice.Left, rec); err != nil {
					late.Inc()
				} else {
					ingested.Inc()
				}
				maxTs = max(maxTs, ts)
				if (i+1)%opts.batchSize != 0 && i != len(trace)-1 {
					continue
				}

				seq++
				f := store.UpdateSlices(gCtx, filebacked.UpdateSlicesMetaData{
					WorkerThreadID: w,
					Side:           slice.Left,
					WatermarkTs:    maxTs - opts.disorder,
					SeqNumber:      seq,
					OriginID:       uint64(w),
				})
				if err := f.Wait(gCtx); err != nil {
					log.Warnw("Slice update failed", zap.Int("worker", w), zap.Error(err))
				}
				// the next batch has to mark its slices as altered again
				cache.Clear()
				current := wm.GetCurrentWatermark()
				if err := emit(gCtx, store.TriggerableWindowSlices(current)); err != nil {
					return err
				}
				if err := store.GarbageCollectSlicesAndWindows(gCtx, current); err != nil {
					return err
				}
			}
			log.Infow("Worker finished", zap.Int("worker", w), zap.String("cache", cache.Stats().String()))
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return summary, err
	}
	if err = store.Drain(ctx); err != nil {
		return summary, err
	}
	if err = emit(ctx, store.AllNonTriggeredSlices()); err != nil {
		return summary, err
	}

	mc := store.MemoryController()
	summary = simulationSummary{
		Ingested:        ingested.Load(),
		Late:            late.Load(),
		TriggeredWindow: windows.Load(),
		EmittedRecords:  emitted.Load(),
		WriteThroughput: mc.ObservedWriteThroughput(),
		ReadThroughput:  mc.ObservedReadThroughput(),
		Duration:        time.Since(start),
	}
	log.Infow("Simulation finished", zap.Int64("ingested", summary.Ingested), zap.Int64("late", summary.Late),
		zap.Int64("windows", summary.TriggeredWindow))
	return summary, nil
}
