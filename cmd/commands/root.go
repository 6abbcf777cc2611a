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
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/numaproj/windowstore/pkg/shared/logging"
)

const CLIName = "windowstore"

var rootCmd = &cobra.Command{
	Use:   CLIName,
	Short: "Windowed slice store tooling",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.HelpFunc()(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(NewCalibrateCommand())
	rootCmd.AddCommand(NewCacheBenchCommand())
	rootCmd.AddCommand(NewSimulateCommand())
}

// newCommandLogger logs to stderr, stdout carries the results of a command.
func newCommandLogger(name string) *zap.SugaredLogger {
	return logging.NewLogger(logging.WithOutputPaths("stderr")).Named(name)
}

// Execute runs the root command and exits with a non-zero code on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
