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
	"os"

	"github.com/cryptofs/cryptofs/internal/fd"
	"github.com/cryptofs/cryptofs/internal/inode"
	"github.com/cryptofs/cryptofs/internal/kvstore"
	"github.com/spf13/cobra"
)

const catBufSize = 64 * 1024

var catCmd = &cobra.Command{
	Use:   "cat PATH",
	Short: "Stream a file's contents to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		f, err := openFS(ctx, &Cfg, false)
		if err != nil {
			return err
		}
		defer f.Close()

		var ino inode.Index
		err = f.manager.Transact(ctx, nil, func(ctx context.Context, tran *kvstore.Transaction) error {
			var resolveErr error
			ino, resolveErr = f.resolve(tran, args[0])
			return resolveErr
		})
		if err != nil {
			return err
		}

		desc := fd.New(f.manager, f.engine, ino, os.O_RDONLY)
		out := cmd.OutOrStdout()
		buf := make([]byte, catBufSize)
		for {
			n, readErr := desc.Read(ctx, buf, nil)
			if n > 0 {
				if _, writeErr := out.Write(buf[:n]); writeErr != nil {
					return writeErr
				}
			}
			if readErr != nil {
				return readErr
			}
			if n == 0 {
				return nil
			}
		}
	},
}
