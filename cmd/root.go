// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd is the cobra+viper CLI surface over the encrypted file system
// core: it owns flag/config binding and a handful of subcommands
// (mkfs/fsck/stat/ls/mkdir/write/cat) that exercise internal/kvstore,
// internal/inode, internal/blockengine, and internal/fd without pulling in
// any concrete POSIX call surface, which spec.md §1 keeps external to this
// module.
package cmd

import (
	"fmt"
	"os"

	"github.com/cryptofs/cryptofs/cfg"
	"github.com/cryptofs/cryptofs/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error

	// Cfg is the parsed configuration shared by every subcommand, bound from
	// flags, a YAML config file, or both (flags win).
	Cfg cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "cryptofs",
	Short: "An encrypted, KV-backed POSIX-style file system core",
	Long: `cryptofs drives the data and control plane of an encrypted file
system whose files, directories, symlinks, and character devices exist only
as records in an embedded ordered key/value store, with every stored value
sealed under AES-256-GCM.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if cmd.Name() == "mkfs" {
			return nil
		}
		return cfg.ValidateConfig(&Cfg)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to the YAML config file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(mkfsCmd)
	rootCmd.AddCommand(fsckCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(catCmd)
}

func initConfig() {
	Cfg.Logging = cfg.GetDefaultLoggingConfig()
	fs := cfg.GetDefaultFileSystemConfig()
	Cfg.FileSystem.BlockSize = fs.BlockSize
	Cfg.FileSystem.Umask = fs.Umask
	Cfg.Crypto.KeyBits = cfg.DefaultKeyBits
	Cfg.Workers.NormalWorkers = cfg.DefaultWorkerCount()
	Cfg.Workers.PriorityWorkers = 2

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			configFileErr = fmt.Errorf("reading config file: %w", err)
			return
		}
	}

	decodeHook := viper.DecodeHook(cfg.DecodeHook())
	if err := viper.Unmarshal(&Cfg, decodeHook); err != nil {
		unmarshalErr = fmt.Errorf("unmarshalling config: %w", err)
		return
	}

	if err := logger.InitLogFile(Cfg.Logging); err != nil {
		configFileErr = fmt.Errorf("initializing log file: %w", err)
		return
	}
	logger.SetLogFormat(Cfg.Logging.Format)
}
