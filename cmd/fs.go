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
	"encoding/hex"
	"os"
	"strings"

	cryptofs "github.com/cryptofs/cryptofs"
	"github.com/cryptofs/cryptofs/cfg"
	"github.com/cryptofs/cryptofs/clock"
	"github.com/cryptofs/cryptofs/internal/blockengine"
	"github.com/cryptofs/cryptofs/internal/envelope"
	"github.com/cryptofs/cryptofs/internal/inode"
	"github.com/cryptofs/cryptofs/internal/kvstore"
	"github.com/cryptofs/cryptofs/internal/workerpool"
)

// fs bundles the layers a subcommand needs to talk to an open database:
// the store, the inode manager built on it, and the block engine built on
// that. Every subcommand (besides mkfs) opens one of these, does its work,
// and tears it down.
type fs struct {
	store   *kvstore.Store
	workers *workerpool.StaticWorkerPool
	manager *inode.Manager
	engine  *blockengine.Engine
}

// saltSuffix is appended to FileSystemConfig.DBPath to name the file that
// persists a passphrase-derived key's salt across invocations, since the
// salt is not itself secret but must be stable for DeriveKey to reproduce
// the same key on every open.
const saltSuffix = ".salt"

func resolveKey(c *cfg.CryptoConfig, dbPath string, generateSalt bool) ([]byte, error) {
	if c.Key != "" {
		key, err := hex.DecodeString(c.Key)
		if err != nil {
			return nil, cryptofs.Wrap(cryptofs.KeyDerivationInvalid, err, "decode hex key")
		}
		return key, nil
	}

	passphrase, err := os.ReadFile(string(c.PassphraseFile))
	if err != nil {
		return nil, cryptofs.Wrap(cryptofs.Transport, err, "read passphrase file")
	}
	passphrase = []byte(strings.TrimRight(string(passphrase), "\r\n"))

	saltPath := dbPath + saltSuffix
	var salt []byte
	if generateSalt {
		salt = nil
	} else {
		salt, err = os.ReadFile(saltPath)
		if err != nil {
			return nil, cryptofs.Wrap(cryptofs.Transport, err, "read salt file %s", saltPath)
		}
	}

	key, usedSalt, err := envelope.DeriveKey(passphrase, salt, c.KeyBits)
	if err != nil {
		return nil, err
	}
	if generateSalt {
		if err := os.WriteFile(saltPath, usedSalt, 0o600); err != nil {
			return nil, cryptofs.Wrap(cryptofs.Transport, err, "write salt file %s", saltPath)
		}
	}
	return key, nil
}

// openFS opens the bbolt database named by the config, wires up the worker
// pool (if configured with non-zero workers), the inode manager, and the
// block engine, and starts the manager - running the GC sweep spec.md §4.4
// requires on every start. create controls whether a missing salt file is
// an error (false, the common case) or is generated fresh (true, mkfs).
func openFS(ctx context.Context, c *cfg.Config, create bool) (*fs, error) {
	key, err := resolveKey(&c.Crypto, string(c.FileSystem.DBPath), create)
	if err != nil {
		return nil, err
	}

	var workers *workerpool.StaticWorkerPool
	if c.Workers.NormalWorkers > 0 || c.Workers.PriorityWorkers > 0 {
		workers, err = workerpool.NewStaticWorkerPool(c.Workers.PriorityWorkers, c.Workers.NormalWorkers)
		if err != nil {
			return nil, err
		}
	}

	store, err := kvstore.Open(string(c.FileSystem.DBPath), key, envelope.NewPool(workers))
	if err != nil {
		return nil, err
	}

	manager := inode.NewManager(store, clock.RealClock{}, int64(c.FileSystem.BlockSize), uint32(c.FileSystem.Umask), c.FileSystem.Uid, c.FileSystem.Gid)
	if err := manager.Start(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	engine := blockengine.New(manager, clock.RealClock{}, int64(c.FileSystem.BlockSize))

	return &fs{store: store, workers: workers, manager: manager, engine: engine}, nil
}

func (f *fs) Close() error {
	err := f.manager.Stop()
	if closeErr := f.store.Close(); err == nil {
		err = closeErr
	}
	if f.workers != nil {
		f.workers.Stop()
	}
	return err
}

// resolve walks path's "/"-separated components starting from the
// filesystem root, failing with NotFound the first time a component has no
// entry in its parent directory. An empty path resolves to the root.
func (f *fs) resolve(tran *kvstore.Transaction, path string) (inode.Index, error) {
	root, found, err := f.manager.GetRoot(tran)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, cryptofs.New(cryptofs.NotFound, "no root established; run mkfs first")
	}

	cur := root
	for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
		if name == "" {
			continue
		}
		rec, err := f.manager.Get(tran, cur)
		if err != nil {
			return 0, err
		}
		if rec.Type != inode.TypeDirectory {
			return 0, cryptofs.New(cryptofs.TypeMismatch, "%q is not a directory", name)
		}
		child, found, err := f.manager.DirGetEntry(tran, cur, name)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, cryptofs.New(cryptofs.NotFound, "no such entry %q in path %q", name, path)
		}
		cur = child
	}
	return cur, nil
}

// splitParent splits path into its parent directory path and final
// component. The root itself cannot be split and is rejected.
func splitParent(path string) (parent, name string, err error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", "", cryptofs.New(cryptofs.InvalidArgument, "path must not be the root")
	}
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "", trimmed, nil
	}
	return trimmed[:idx], trimmed[idx+1:], nil
}
