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
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/windowstore/pkg/memctrl"
	"github.com/numaproj/windowstore/pkg/shared/config"
	"github.com/numaproj/windowstore/pkg/shared/logging"
)

func NewCalibrateCommand() *cobra.Command {
	var (
		configFile string
		sizes      []int64
		spillDir   string
	)

	command := &cobra.Command{
		Use:   "calibrate",
		Short: "Fit the slice file cost models against the spill directory",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			logger := newCommandLogger("calibrate")
			ctx := logging.WithLogger(context.Background(), logger)
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if len(sizes) > 0 {
				cfg.Store.CalibrationSizes = sizes
			}
			if spillDir != "" {
				cfg.Store.SpillDirectory = spillDir
			}
			mc, err := memctrl.NewMemoryController(ctx, cfg.Store, memctrl.WithName("calibrate"))
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, mc.Close())
			}()
			if err = mc.MeasureReadAndWriteExecTimes(ctx, cfg.Store.CalibrationSizes); err != nil {
				logger.Errorw("Failed to calibrate", zap.Error(err))
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SIZE\tWRITE MS\tREAD MS")
			for _, size := range cfg.Store.CalibrationSizes {
				fmt.Fprintf(w, "%d\t%d\t%d\n", size, mc.WriteCost(size), mc.ReadCost(size))
			}
			return w.Flush()
		},
	}
	command.Flags().StringVar(&configFile, "config", "", "Path of the YAML configuration file")
	command.Flags().Int64SliceVar(&sizes, "sizes", nil, "Payload sizes in bytes to time, overrides the configuration") // --sizes=4096,65536
	command.Flags().StringVar(&spillDir, "spill-dir", "", "Directory the calibration files are written to")
	return command
}
