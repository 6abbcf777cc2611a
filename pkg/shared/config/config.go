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

// Package config loads the configuration of a windowed slice store from YAML and the
// environment.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/numaproj/windowstore/pkg/buffer"
	"github.com/numaproj/windowstore/pkg/slicecache"
	"github.com/numaproj/windowstore/pkg/slicestore"
	"github.com/numaproj/windowstore/pkg/storeerr"
	"github.com/numaproj/windowstore/pkg/window"
)

// EnvPrefix prefixes the environment variables overriding configuration keys, e.g.
// WINDOWSTORE_STORE_UPPERMEMORYBOUND.
const EnvPrefix = "WINDOWSTORE"

const (
	DefaultWindowSize    int64 = 1000
	DefaultWindowSlide   int64 = 1000
	DefaultWorkerThreads       = 4
	DefaultCachePolicy         = "LRU"
	DefaultCacheCapacity       = 8
)

// CacheConfig configures the slice cache in front of the store.
type CacheConfig struct {
	Policy   string `mapstructure:"policy" json:"policy"`
	Capacity int    `mapstructure:"capacity" json:"capacity"`
}

// Config is the configuration of a windowed slice store.
type Config struct {
	WindowSize    int64                     `mapstructure:"windowSize" json:"windowSize"`
	WindowSlide   int64                     `mapstructure:"windowSlide" json:"windowSlide"`
	Origins       []uint64                  `mapstructure:"origins" json:"origins"`
	WorkerThreads int                       `mapstructure:"workerThreads" json:"workerThreads"`
	PageSize      int                       `mapstructure:"pageSize" json:"pageSize"`
	Store         slicestore.SliceStoreInfo `mapstructure:"store" json:"store"`
	Cache         CacheConfig               `mapstructure:"cache" json:"cache"`
}

// Default returns the default configuration with a single origin.
func Default() Config {
	return Config{
		WindowSize:    DefaultWindowSize,
		WindowSlide:   DefaultWindowSlide,
		Origins:       []uint64{0},
		WorkerThreads: DefaultWorkerThreads,
		PageSize:      buffer.DefaultPageSize,
		Store:         slicestore.DefaultSliceStoreInfo(),
		Cache: CacheConfig{
			Policy:   DefaultCachePolicy,
			Capacity: DefaultCacheCapacity,
		},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// defaults make every key known to viper, so the environment can override it
	d := Default()
	v.SetDefault("windowSize", d.WindowSize)
	v.SetDefault("windowSlide", d.WindowSlide)
	v.SetDefault("origins", d.Origins)
	v.SetDefault("workerThreads", d.WorkerThreads)
	v.SetDefault("pageSize", d.PageSize)
	v.SetDefault("cache.policy", d.Cache.Policy)
	v.SetDefault("cache.capacity", d.Cache.Capacity)
	s := d.Store
	v.SetDefault("store.lowerMemoryBound", s.LowerMemoryBound)
	v.SetDefault("store.upperMemoryBound", s.UpperMemoryBound)
	v.SetDefault("store.withPrediction", s.WithPrediction)
	v.SetDefault("store.predictor", s.Predictor)
	v.SetDefault("store.minReadStateSize", s.MinReadStateSize)
	v.SetDefault("store.minWriteStateSize", s.MinWriteStateSize)
	v.SetDefault("store.fileOperationTimeDeltaMs", s.FileOperationTimeDeltaMs)
	v.SetDefault("store.spillDirectory", s.SpillDirectory)
	v.SetDefault("store.fileCodec", s.FileCodec)
	v.SetDefault("store.calibrationSizes", s.CalibrationSizes)
	v.SetDefault("store.maxConcurrentIO", s.MaxConcurrentIO)
	v.SetDefault("store.ioBytesPerSecond", s.IOBytesPerSecond)
	v.SetDefault("store.maxGapsForPrediction", s.MaxGapsForPrediction)
	v.SetDefault("store.maxSamplesForPrediction", s.MaxSamplesForPrediction)
	v.SetDefault("store.maxPredictorUpdateInterval", s.MaxPredictorUpdateInterval)
	return v
}

// Load reads the YAML file at path, applies environment overrides and validates the
// result. An empty path loads the defaults and the environment only.
func Load(path string) (*Config, error) {
	if path == "" {
		return Parse(bytes.NewReader(nil))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.Configuration, err, "failed to open configuration file")
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads YAML from r, applies environment overrides and validates the result.
func Parse(r io.Reader) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, storeerr.Wrap(storeerr.Configuration, err, "failed to read configuration")
	}
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, storeerr.Wrap(storeerr.Configuration, err, "failed to unmarshal configuration")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration of every component.
func (c *Config) Validate() error {
	if _, err := window.NewSliceAssigner(c.WindowSize, c.WindowSlide); err != nil {
		return err
	}
	if len(c.Origins) == 0 {
		return storeerr.New(storeerr.Configuration, "at least one input origin is required")
	}
	if c.WorkerThreads <= 0 {
		return storeerr.Newf(storeerr.Configuration, "worker threads must be positive, got %d", c.WorkerThreads)
	}
	if c.PageSize <= 0 {
		return storeerr.Newf(storeerr.Configuration, "page size must be positive, got %d", c.PageSize)
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if _, err := slicecache.ParsePolicy(c.Cache.Policy); err != nil {
		return err
	}
	if c.Cache.Capacity <= 0 {
		return storeerr.Newf(storeerr.Configuration, "cache capacity must be positive, got %d", c.Cache.Capacity)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("window=%d/%d origins=%v workers=%d store=%+v cache=%s/%d",
		c.WindowSize, c.WindowSlide, c.Origins, c.WorkerThreads, c.Store, c.Cache.Policy, c.Cache.Capacity)
}
