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

package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/numaproj/windowstore/pkg/watermark/wmb"
)

type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() time.Time {
	c.now += 10
	return time.UnixMilli(c.now)
}

func TestMultiOriginProcessor_CombinedIsMinimum(t *testing.T) {
	p := NewMultiOriginProcessor(context.Background(), []uint64{1, 2})
	assert.Equal(t, wmb.InitialWatermark, p.UpdateWatermark(100, 1, 1))
	assert.Equal(t, int64(50), p.UpdateWatermark(50, 1, 2))
	assert.Equal(t, int64(100), p.UpdateWatermark(200, 2, 2))
	assert.Equal(t, int64(200), p.UpdateWatermark(300, 2, 1))
	assert.Equal(t, int64(200), p.GetCurrentWatermark())
	// unknown origins do not change anything
	assert.Equal(t, int64(200), p.UpdateWatermark(1000, 1, 99))
}

func TestMultiOriginProcessor_OutOfOrderSequences(t *testing.T) {
	p := NewMultiOriginProcessor(context.Background(), []uint64{7})
	assert.Equal(t, wmb.InitialWatermark, p.UpdateWatermark(300, 3, 7))
	assert.Equal(t, wmb.InitialWatermark, p.UpdateWatermark(200, 2, 7))
	// seq 1 closes the gap, the watermark jumps to the maximum of the prefix
	assert.Equal(t, int64(300), p.UpdateWatermark(100, 1, 7))
	// duplicates and stale sequence numbers are ignored
	assert.Equal(t, int64(300), p.UpdateWatermark(1000, 2, 7))
	// watermarks never regress
	assert.Equal(t, int64(300), p.UpdateWatermark(250, 4, 7))
}

func TestMultiOriginProcessor_IngestionTimes(t *testing.T) {
	clock := &fakeClock{}
	p := NewMultiOriginProcessor(context.Background(), []uint64{1}, WithClock(clock.Now), WithHistoryCapacity(4))
	for seq := uint64(1); seq <= 6; seq++ {
		p.UpdateWatermark(int64(seq)*100, seq, 1)
	}
	samples := p.GetIngestionTimesForWatermarks(1, 10, 10)
	// capacity keeps the latest 4 samples, oldest first
	assert.Len(t, samples, 4)
	assert.Equal(t, int64(300), samples[0].Watermark)
	assert.Equal(t, int64(600), samples[3].Watermark)
	assert.Equal(t, uint64(6), samples[3].SeqNumber)
	assert.Less(t, samples[0].IngestionTime, samples[3].IngestionTime)

	assert.Len(t, p.GetIngestionTimesForWatermarks(1, 10, 2), 2)
	assert.Nil(t, p.GetIngestionTimesForWatermarks(2, 10, 10))
}

func TestMultiOriginProcessor_IngestionTimesStopAtGaps(t *testing.T) {
	p := NewMultiOriginProcessor(context.Background(), []uint64{1})
	// the watermark only advances on seq 1, 2, 5 and 6; 3 and 4 carry old watermarks
	p.UpdateWatermark(100, 1, 1)
	p.UpdateWatermark(200, 2, 1)
	p.UpdateWatermark(150, 3, 1)
	p.UpdateWatermark(150, 4, 1)
	p.UpdateWatermark(500, 5, 1)
	p.UpdateWatermark(600, 6, 1)

	samples := p.GetIngestionTimesForWatermarks(1, 1, 10)
	assert.Len(t, samples, 2)
	assert.Equal(t, int64(500), samples[0].Watermark)

	samples = p.GetIngestionTimesForWatermarks(1, 2, 10)
	assert.Len(t, samples, 4)
}
