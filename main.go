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

// Command cryptofs is the host-facing CLI driving the encrypted,
// KV-backed file system core: mkfs/fsck against a bbolt database, and a
// handful of path-based operations (stat, ls, mkdir, write, cat) that stand
// in for the POSIX call surface spec.md §1 keeps external to this module.
package main

import "github.com/cryptofs/cryptofs/cmd"

func main() {
	cmd.Execute()
}
