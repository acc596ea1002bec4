// Copyright 2024 Google Inc. All Rights Reserved.
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

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the top-level configuration for a cryptofs instance, bound from
// flags, a YAML config file, or both (flags win).
type Config struct {
	Crypto CryptoConfig `yaml:"crypto"`

	FileSystem FileSystemConfig `yaml:"file-system"`

	Logging LoggingConfig `yaml:"logging"`

	Workers WorkerConfig `yaml:"workers"`
}

// CryptoConfig selects how the AES-256-GCM key used to seal every stored
// value is obtained. Key and PassphraseFile are mutually exclusive.
type CryptoConfig struct {
	// Key is a hex-encoded AES key. Takes precedence over PassphraseFile if
	// both are set.
	Key string `yaml:"key"`

	// PassphraseFile points at a file containing the passphrase to derive a
	// key from via PBKDF2.
	PassphraseFile ResolvedPath `yaml:"passphrase-file"`

	// KeyBits is the derived/decoded key size in bits: 128, 192, or 256.
	KeyBits int `yaml:"key-bits"`
}

// FileSystemConfig configures the embedded KV store and inode defaults.
type FileSystemConfig struct {
	// DBPath is the location of the bbolt database file.
	DBPath ResolvedPath `yaml:"db-path"`

	// BlockSize is the plaintext block size in bytes. Must be > 0.
	BlockSize int `yaml:"block-size"`

	// Umask is applied to the requested mode on inode creation.
	Umask Octal `yaml:"umask"`

	// Uid/Gid are the default owner assigned to newly created inodes when the
	// caller does not supply one.
	Uid uint32 `yaml:"uid"`
	Gid uint32 `yaml:"gid"`
}

// WorkerConfig sizes the crypto offload pool.
type WorkerConfig struct {
	PriorityWorkers uint32 `yaml:"priority-workers"`
	NormalWorkers   uint32 `yaml:"normal-workers"`
}

// LoggingConfig controls internal/logger's output.
type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`

	// Format is either "text" or "json".
	Format string `yaml:"format"`

	// FilePath, when non-empty, also writes logs to a rotated file.
	FilePath ResolvedPath `yaml:"file-path"`

	LogRotate LogRotateConfig `yaml:"log-rotate"`
}

// LogRotateConfig mirrors lumberjack's rotation knobs.
type LogRotateConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("db-path", "", "", "Path to the encrypted bbolt database file.")
	if err = viper.BindPFlag("file-system.db-path", flagSet.Lookup("db-path")); err != nil {
		return err
	}

	flagSet.IntP("block-size", "", 4096, "Plaintext block size in bytes.")
	if err = viper.BindPFlag("file-system.block-size", flagSet.Lookup("block-size")); err != nil {
		return err
	}

	flagSet.IntP("umask", "", 0022, "Default permission mask applied on inode creation, in octal.")
	if err = viper.BindPFlag("file-system.umask", flagSet.Lookup("umask")); err != nil {
		return err
	}

	flagSet.StringP("key", "", "", "Hex-encoded AES key. Mutually exclusive with --passphrase-file.")
	if err = viper.BindPFlag("crypto.key", flagSet.Lookup("key")); err != nil {
		return err
	}

	flagSet.StringP("passphrase-file", "", "", "Path to a file containing the passphrase to derive the AES key from.")
	if err = viper.BindPFlag("crypto.passphrase-file", flagSet.Lookup("passphrase-file")); err != nil {
		return err
	}

	flagSet.IntP("key-bits", "", 256, "Key size in bits: 128, 192, or 256.")
	if err = viper.BindPFlag("crypto.key-bits", flagSet.Lookup("key-bits")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "INFO", "Logging severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Logging format: text or json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Optional file to also write rotated logs to.")
	if err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.Uint32P("priority-workers", "", 2, "Number of priority crypto workers.")
	if err = viper.BindPFlag("workers.priority-workers", flagSet.Lookup("priority-workers")); err != nil {
		return err
	}

	flagSet.Uint32P("normal-workers", "", 4, "Number of normal crypto workers.")
	if err = viper.BindPFlag("workers.normal-workers", flagSet.Lookup("normal-workers")); err != nil {
		return err
	}

	return nil
}
