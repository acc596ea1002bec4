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

var statCmd = &cobra.Command{
	Use:   "stat PATH",
	Short: "Print an inode's type and stat record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		f, err := openFS(ctx, &Cfg, false)
		if err != nil {
			return err
		}
		defer f.Close()

		var rec *inode.Record
		var s *inode.Stat
		err = f.manager.Transact(ctx, nil, func(ctx context.Context, tran *kvstore.Transaction) error {
			ino, err := f.resolve(tran, args[0])
			if err != nil {
				return err
			}
			rec, err = f.manager.Get(tran, ino)
			if err != nil {
				return err
			}
			s, err = inode.StatGet(tran, ino)
			return err
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "inode:     %s\n", rec.Index)
		fmt.Fprintf(out, "type:      %s\n", rec.Type)
		fmt.Fprintf(out, "mode:      %o\n", s.Mode)
		fmt.Fprintf(out, "nlink:     %d\n", s.Nlink)
		fmt.Fprintf(out, "uid/gid:   %d/%d\n", s.Uid, s.Gid)
		fmt.Fprintf(out, "size:      %d\n", s.Size)
		fmt.Fprintf(out, "blocks:    %d\n", s.Blocks)
		fmt.Fprintf(out, "blksize:   %d\n", s.Blksize)
		fmt.Fprintf(out, "atime:     %s\n", s.Atime)
		fmt.Fprintf(out, "mtime:     %s\n", s.Mtime)
		fmt.Fprintf(out, "ctime:     %s\n", s.Ctime)
		fmt.Fprintf(out, "birthtime: %s\n", s.Birthtime)
		return nil
	},
}
