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

	cryptofs "github.com/cryptofs/cryptofs"
	"github.com/cryptofs/cryptofs/internal/inode"
	"github.com/cryptofs/cryptofs/internal/kvstore"
	"github.com/spf13/cobra"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir PATH",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parentPath, name, err := splitParent(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		f, err := openFS(ctx, &Cfg, false)
		if err != nil {
			return err
		}
		defer f.Close()

		var child inode.Index
		err = f.manager.Transact(ctx, nil, func(ctx context.Context, tran *kvstore.Transaction) error {
			parent, err := f.resolve(tran, parentPath)
			if err != nil {
				return err
			}
			parentRec, err := f.manager.Get(tran, parent)
			if err != nil {
				return err
			}
			if parentRec.Type != inode.TypeDirectory {
				return cryptofs.New(cryptofs.TypeMismatch, "%q is not a directory", parentPath)
			}

			child, err = f.manager.CreateDirectory(tran, parent, 0o755, Cfg.FileSystem.Uid, Cfg.FileSystem.Gid)
			if err != nil {
				return err
			}
			return f.manager.DirSetEntry(tran, parent, name, child)
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", args[0], child)
		return nil
	},
}
