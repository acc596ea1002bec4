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
	"io"
	"os"

	cryptofs "github.com/cryptofs/cryptofs"
	"github.com/cryptofs/cryptofs/internal/fd"
	"github.com/cryptofs/cryptofs/internal/inode"
	"github.com/cryptofs/cryptofs/internal/kvstore"
	"github.com/spf13/cobra"
)

var (
	writeAppend bool
	writeAt     int64
)

var writeCmd = &cobra.Command{
	Use:   "write PATH",
	Short: "Write stdin to a file, creating it if it does not exist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}

		ctx := context.Background()
		f, err := openFS(ctx, &Cfg, false)
		if err != nil {
			return err
		}
		defer f.Close()

		var ino inode.Index
		err = f.manager.Transact(ctx, nil, func(ctx context.Context, tran *kvstore.Transaction) error {
			existing, found, lookupErr := f.resolveExisting(tran, args[0])
			if lookupErr != nil {
				return lookupErr
			}
			if found {
				rec, getErr := f.manager.Get(tran, existing)
				if getErr != nil {
					return getErr
				}
				if rec.Type != inode.TypeFile {
					return cryptofs.New(cryptofs.TypeMismatch, "%q is not a file", args[0])
				}
				ino = existing
				return nil
			}

			parentPath, name, splitErr := splitParent(args[0])
			if splitErr != nil {
				return splitErr
			}
			parent, resolveErr := f.resolve(tran, parentPath)
			if resolveErr != nil {
				return resolveErr
			}

			var createErr error
			ino, createErr = f.manager.CreateFile(tran, 0o644, Cfg.FileSystem.Uid, Cfg.FileSystem.Gid)
			if createErr != nil {
				return createErr
			}
			return f.manager.DirSetEntry(tran, parent, name, ino)
		})
		if err != nil {
			return err
		}

		desc := fd.New(f.manager, f.engine, ino, os.O_RDWR)
		var position *int64
		if writeAppend {
			position = nil
		} else {
			position = &writeAt
		}
		extraFlags := 0
		if writeAppend {
			extraFlags = os.O_APPEND
		}
		n, err := desc.Write(ctx, data, position, extraFlags)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s (%s)\n", n, args[0], ino)
		return nil
	},
}

func init() {
	writeCmd.Flags().BoolVar(&writeAppend, "append", false, "Append to the end of the file instead of writing at --at.")
	writeCmd.Flags().Int64Var(&writeAt, "at", 0, "Byte position to write at (ignored with --append).")
}

// resolveExisting is resolve but reports a missing entry as (0, false, nil)
// instead of a NotFound error, distinguishing "doesn't exist yet" from a
// genuine structural problem partway down the path.
func (f *fs) resolveExisting(tran *kvstore.Transaction, path string) (inode.Index, bool, error) {
	ino, err := f.resolve(tran, path)
	if err != nil {
		if cryptofs.Is(err, cryptofs.NotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return ino, true, nil
}
