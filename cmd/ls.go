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
	"sort"

	cryptofs "github.com/cryptofs/cryptofs"
	"github.com/cryptofs/cryptofs/internal/inode"
	"github.com/cryptofs/cryptofs/internal/kvstore"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [PATH]",
	Short: "List a directory's entries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		ctx := context.Background()
		f, err := openFS(ctx, &Cfg, false)
		if err != nil {
			return err
		}
		defer f.Close()

		type entry struct {
			name string
			ino  inode.Index
			typ  inode.Type
		}
		var entries []entry

		err = f.manager.Transact(ctx, nil, func(ctx context.Context, tran *kvstore.Transaction) error {
			ino, err := f.resolve(tran, path)
			if err != nil {
				return err
			}
			rec, err := f.manager.Get(tran, ino)
			if err != nil {
				return err
			}
			if rec.Type != inode.TypeDirectory {
				return cryptofs.New(cryptofs.TypeMismatch, "%q is not a directory", path)
			}

			return f.manager.DirEntries(tran, ino, func(name string, child inode.Index) error {
				childRec, err := f.manager.Get(tran, child)
				if err != nil {
					return err
				}
				entries = append(entries, entry{name: name, ino: child, typ: childRec.Type})
				return nil
			})
		})
		if err != nil {
			return err
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
		out := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintf(out, "%-8s %-6s %s\n", e.ino, e.typ, e.name)
		}
		return nil
	},
}
