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

package cfg

import "runtime"

// DefaultWorkerCount sizes the normal-lane crypto worker pool when the
// config doesn't pin one down explicitly.
func DefaultWorkerCount() uint32 {
	return uint32(max(4, runtime.NumCPU()))
}

// HasExplicitKey reports whether the config supplies a raw key rather than a
// passphrase to derive one from.
func HasExplicitKey(config *Config) bool {
	return config.Crypto.Key != ""
}
