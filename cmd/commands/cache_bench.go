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
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/numaproj/windowstore/pkg/slicecache"
	"github.com/numaproj/windowstore/pkg/window"
)

func NewCacheBenchCommand() *cobra.Command {
	var (
		policies    []string
		capacity    int
		windowSize  int64
		windowSlide int64
		events      int
		step        int64
		disorder    int64
		seed        int64
	)

	command := &cobra.Command{
		Use:   "cache-bench",
		Short: "Compare slice cache policies with the optimal offline policy on a synthetic trace",
		RunE: func(cmd *cobra.Command, args []string) error {
			assigner, err := window.NewSliceAssigner(windowSize, windowSlide)
			if err != nil {
				return err
			}
			selected := make([]slicecache.Policy, 0, len(policies))
			for _, name := range policies {
				p, err := slicecache.ParsePolicy(name)
				if err != nil {
					return err
				}
				selected = append(selected, p)
			}
			if len(selected) == 0 {
				selected = slicecache.Policies[:]
			}

			trace := syntheticTrace(events, step, disorder, seed)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "POLICY\tCAPACITY\tHITS\tMISSES\tHIT RATE\tOPTIMAL HIT RATE")
			for _, p := range selected {
				res, err := slicecache.Simulate(p, capacity, assigner, trace, slicecache.WithName("cache-bench"))
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.4f\t%.4f\n", res.Policy, res.Capacity, res.Online.Hits, res.Online.Misses,
					res.Online.HitRate(), res.Optimal.HitRate())
			}
			return w.Flush()
		},
	}
	command.Flags().StringSliceVar(&policies, "policies", nil, "Policies to compare, all by default") // --policies=LRU,2Q
	command.Flags().IntVar(&capacity, "capacity", 4, "Number of cache entries")
	command.Flags().Int64Var(&windowSize, "window-size", 10000, "Window size in milliseconds")
	command.Flags().Int64Var(&windowSlide, "window-slide", 2000, "Window slide in milliseconds")
	command.Flags().IntVar(&events, "events", 100000, "Number of events in the trace")
	command.Flags().Int64Var(&step, "step", 1, "Milliseconds between consecutive events")
	command.Flags().Int64Var(&disorder, "disorder", 5000, "Maximum lateness of an event in milliseconds")
	command.Flags().Int64Var(&seed, "seed", 1, "Seed of the trace")
	return command
}
