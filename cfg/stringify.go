// Copyright 2024 Google Inc. All Rights Reserved.
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

import "fmt"

func (o Octal) String() string {
	return fmt.Sprintf("%04o", int(o))
}

// String renders the config for startup logging, redacting any secret
// material so it is safe to log at INFO.
func (c Config) String() string {
	key := "(unset)"
	if c.Crypto.Key != "" {
		key = "(redacted)"
	}
	passphrase := "(unset)"
	if c.Crypto.PassphraseFile != "" {
		passphrase = string(c.Crypto.PassphraseFile)
	}

	return fmt.Sprintf(
		"db-path=%s block-size=%d umask=%s crypto-key=%s passphrase-file=%s key-bits=%d workers=%d/%d severity=%s",
		c.FileSystem.DBPath,
		c.FileSystem.BlockSize,
		c.FileSystem.Umask.String(),
		key,
		passphrase,
		c.Crypto.KeyBits,
		c.Workers.PriorityWorkers,
		c.Workers.NormalWorkers,
		c.Logging.Severity,
	)
}
