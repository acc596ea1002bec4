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

package cmd

import (
	"context"
	"fmt"

	"github.com/cryptofs/cryptofs/internal/inode"
	"github.com/cryptofs/cryptofs/internal/kvstore"
	"github.com/spf13/cobra"
)

var mkfsCmd = &cobra.Command{
	Use:   "mkfs",
	Short: "Initialize a new encrypted database and establish its root directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateMkfsConfig(); err != nil {
			return err
		}

		ctx := context.Background()
		f, err := openFS(ctx, &Cfg, true /* create */)
		if err != nil {
			return err
		}
		defer f.Close()

		var root inode.Index
		err = f.manager.Transact(ctx, nil, func(ctx context.Context, tran *kvstore.Transaction) error {
			var err error
			root, err = f.manager.CreateDirectory(tran, inode.NoParent, 0o755, Cfg.FileSystem.Uid, Cfg.FileSystem.Gid)
			return err
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "initialized %s, root=%s\n", Cfg.FileSystem.DBPath, root)
		return nil
	},
}

func validateMkfsConfig() error {
	if Cfg.FileSystem.DBPath == "" {
		return fmt.Errorf("db-path is required")
	}
	if Cfg.FileSystem.BlockSize <= 0 {
		return fmt.Errorf("block-size must be greater than 0")
	}
	if Cfg.Crypto.Key == "" && Cfg.Crypto.PassphraseFile == "" {
		return fmt.Errorf("one of --key or --passphrase-file is required")
	}
	return nil
}
