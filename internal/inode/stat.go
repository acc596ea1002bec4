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

package inode

import (
	"encoding/json"
	"time"

	cryptofs "github.com/cryptofs/cryptofs"
	"github.com/cryptofs/cryptofs/internal/kvstore"
)

// Prop names one stat field. Each is persisted as its own key in an inode's
// stat domain, matching spec.md §4.4 ("stat.<ino>: one record per stat
// field").
type Prop string

const (
	PropDev       Prop = "dev"
	PropIno       Prop = "ino"
	PropMode      Prop = "mode"
	PropNlink     Prop = "nlink"
	PropUid       Prop = "uid"
	PropGid       Prop = "gid"
	PropRdev      Prop = "rdev"
	PropSize      Prop = "size"
	PropAtime     Prop = "atime"
	PropMtime     Prop = "mtime"
	PropCtime     Prop = "ctime"
	PropBirthtime Prop = "birthtime"
	PropBlksize   Prop = "blksize"
	PropBlocks    Prop = "blocks"
)

var allProps = []Prop{
	PropDev, PropIno, PropMode, PropNlink, PropUid, PropGid, PropRdev,
	PropSize, PropAtime, PropMtime, PropCtime, PropBirthtime, PropBlksize, PropBlocks,
}

// Stat is the common metadata every inode type carries, per spec.md §3.
type Stat struct {
	Dev       uint64
	Ino       Index
	Mode      uint32
	Nlink     uint32
	Uid       uint32
	Gid       uint32
	Rdev      uint64
	Size      int64
	Atime     time.Time
	Mtime     time.Time
	Ctime     time.Time
	Birthtime time.Time
	Blksize   int32
	Blocks    int64
}

// timestamps are stored as Unix milliseconds, per spec.md §4.4.
func timeToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func propValue(prop Prop, s *Stat) interface{} {
	switch prop {
	case PropDev:
		return s.Dev
	case PropIno:
		return uint64(s.Ino)
	case PropMode:
		return s.Mode
	case PropNlink:
		return s.Nlink
	case PropUid:
		return s.Uid
	case PropGid:
		return s.Gid
	case PropRdev:
		return s.Rdev
	case PropSize:
		return s.Size
	case PropAtime:
		return timeToMillis(s.Atime)
	case PropMtime:
		return timeToMillis(s.Mtime)
	case PropCtime:
		return timeToMillis(s.Ctime)
	case PropBirthtime:
		return timeToMillis(s.Birthtime)
	case PropBlksize:
		return s.Blksize
	case PropBlocks:
		return s.Blocks
	default:
		return nil
	}
}

func setPropValue(prop Prop, s *Stat, raw json.RawMessage) error {
	switch prop {
	case PropDev:
		return json.Unmarshal(raw, &s.Dev)
	case PropIno:
		var v uint64
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		s.Ino = Index(v)
		return nil
	case PropMode:
		return json.Unmarshal(raw, &s.Mode)
	case PropNlink:
		return json.Unmarshal(raw, &s.Nlink)
	case PropUid:
		return json.Unmarshal(raw, &s.Uid)
	case PropGid:
		return json.Unmarshal(raw, &s.Gid)
	case PropRdev:
		return json.Unmarshal(raw, &s.Rdev)
	case PropSize:
		return json.Unmarshal(raw, &s.Size)
	case PropAtime:
		var ms int64
		if err := json.Unmarshal(raw, &ms); err != nil {
			return err
		}
		s.Atime = millisToTime(ms)
		return nil
	case PropMtime:
		var ms int64
		if err := json.Unmarshal(raw, &ms); err != nil {
			return err
		}
		s.Mtime = millisToTime(ms)
		return nil
	case PropCtime:
		var ms int64
		if err := json.Unmarshal(raw, &ms); err != nil {
			return err
		}
		s.Ctime = millisToTime(ms)
		return nil
	case PropBirthtime:
		var ms int64
		if err := json.Unmarshal(raw, &ms); err != nil {
			return err
		}
		s.Birthtime = millisToTime(ms)
		return nil
	case PropBlksize:
		return json.Unmarshal(raw, &s.Blksize)
	case PropBlocks:
		return json.Unmarshal(raw, &s.Blocks)
	default:
		return nil
	}
}

// StatSetProp writes a single stat field for ino.
func StatSetProp(tran *kvstore.Transaction, ino Index, prop Prop, s *Stat) error {
	encoded, err := json.Marshal(propValue(prop, s))
	if err != nil {
		return cryptofs.Wrap(cryptofs.Transport, err, "encode stat prop %s", prop)
	}
	return tran.Put(statPath(ino), []byte(prop), encoded)
}

// StatUnsetProp removes a single stat field for ino.
func StatUnsetProp(tran *kvstore.Transaction, ino Index, prop Prop) {
	tran.Del(statPath(ino), []byte(prop))
}

// StatGetProp reads a single stat field for ino into s.
func StatGetProp(tran *kvstore.Transaction, ino Index, prop Prop, s *Stat) (bool, error) {
	encoded, found, err := tran.Get(statPath(ino), []byte(prop))
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := setPropValue(prop, s, encoded); err != nil {
		return false, cryptofs.Wrap(cryptofs.Transport, err, "decode stat prop %s", prop)
	}
	return true, nil
}

// StatGet reads every stat field for ino.
func StatGet(tran *kvstore.Transaction, ino Index) (*Stat, error) {
	s := &Stat{}
	any := false
	for _, prop := range allProps {
		found, err := StatGetProp(tran, ino, prop, s)
		if err != nil {
			return nil, err
		}
		any = any || found
	}
	if !any {
		return nil, cryptofs.New(cryptofs.NotFound, "stat for inode %s", ino)
	}
	return s, nil
}

// statPutAll writes every field of s for ino, used on inode creation.
func statPutAll(tran *kvstore.Transaction, ino Index, s *Stat) error {
	for _, prop := range allProps {
		if err := StatSetProp(tran, ino, prop, s); err != nil {
			return err
		}
	}
	return nil
}

// statDeleteAll removes every stat field for ino, used on destroy.
func statDeleteAll(tran *kvstore.Transaction, ino Index) {
	for _, prop := range allProps {
		StatUnsetProp(tran, ino, prop)
	}
}
