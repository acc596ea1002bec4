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

import "fmt"

func isValidLogRotateConfig(config *LogRotateConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be atleast 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (to retain all backup files) or a positive value")
	}
	return nil
}

func isValidCryptoConfig(c *CryptoConfig) error {
	if c.Key != "" && c.PassphraseFile != "" {
		return fmt.Errorf("key and passphrase-file are mutually exclusive")
	}
	if c.Key == "" && c.PassphraseFile == "" {
		return fmt.Errorf("one of key or passphrase-file is required")
	}
	if !KeySize(c.KeyBits / 8).IsValid() {
		return fmt.Errorf("key-bits must be one of 128, 192, 256, got %d", c.KeyBits)
	}
	return nil
}

func isValidFileSystemConfig(c *FileSystemConfig) error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("block-size must be greater than 0")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db-path is required")
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	var err error

	if err = isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}

	if err = isValidCryptoConfig(&config.Crypto); err != nil {
		return fmt.Errorf("error parsing crypto config: %w", err)
	}

	if err = isValidFileSystemConfig(&config.FileSystem); err != nil {
		return fmt.Errorf("error parsing file-system config: %w", err)
	}

	return nil
}
