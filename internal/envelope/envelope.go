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

// Package envelope is the crypto boundary every value written to the store
// passes through: AES-256-GCM sealing/opening and PBKDF2 key derivation.
// Every ciphertext this package produces is self-describing - the IV travels
// inline - so Open never needs out-of-band state to invert Seal.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"strconv"

	"github.com/cryptofs/cryptofs/cfg"
	"golang.org/x/crypto/pbkdf2"
)

const (
	ivSize  = 16
	tagSize = 16

	// PBKDF2 parameters are part of the on-disk contract (spec.md §6); never
	// change these without a migration story.
	pbkdf2Iterations = cfg.PBKDF2Iterations
	saltSize         = cfg.PBKDF2SaltBytes
)

// Seal encrypts plaintext under key, returning IV(16) || TAG(16) ||
// CIPHERTEXT. key must be 16, 24, or 32 bytes (AES-128/192/256).
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	// Seal appends ciphertext||tag after the nonce we hand it as dst, so we
	// pre-size dst to iv and let Seal append in place.
	out := gcm.Seal(iv, iv, plaintext, nil)
	return rearrangeSealOutput(out), nil
}

// rearrangeSealOutput reorders crypto/cipher's IV||CIPHERTEXT||TAG output
// into this package's on-disk IV||TAG||CIPHERTEXT layout.
func rearrangeSealOutput(ivCiphertextTag []byte) []byte {
	iv := ivCiphertextTag[:ivSize]
	ciphertextTag := ivCiphertextTag[ivSize:]
	ciphertext := ciphertextTag[:len(ciphertextTag)-tagSize]
	tag := ciphertextTag[len(ciphertextTag)-tagSize:]

	out := make([]byte, 0, len(ivCiphertextTag))
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out
}

// Open decrypts ciphertext produced by Seal under key. It returns (nil,
// false) rather than an error if the input is too short or the
// authentication tag fails to verify - that outcome is a normal return
// value for this function, not a fault condition - callers that want a
// typed error should wrap this as cryptofs.AEADFailed.
func Open(key, sealed []byte) ([]byte, bool) {
	if len(sealed) < ivSize+tagSize {
		return nil, false
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, false
	}

	iv := sealed[:ivSize]
	tag := sealed[ivSize : ivSize+tagSize]
	ciphertext := sealed[ivSize+tagSize:]

	ciphertextTag := make([]byte, 0, len(ciphertext)+tagSize)
	ciphertextTag = append(ciphertextTag, ciphertext...)
	ciphertextTag = append(ciphertextTag, tag...)

	plaintext, err := gcm.Open(nil, iv, ciphertextTag, nil)
	if err != nil {
		return nil, false
	}
	return plaintext, true
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivSize)
}

// DeriveKey runs PBKDF2-HMAC-SHA-512 over password with the given salt (or a
// freshly generated 16-byte salt if none is supplied), producing a key of
// bits/8 bytes. bits must be 128, 192, or 256.
func DeriveKey(password []byte, salt []byte, bits int) (key []byte, usedSalt []byte, err error) {
	size := cfg.KeySize(bits / 8)
	if !size.IsValid() {
		return nil, nil, &keyDerivationError{bits: bits}
	}

	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	}

	key = pbkdf2.Key(password, salt, pbkdf2Iterations, bits/8, sha512.New)
	return key, salt, nil
}

// GenerateKey returns a fresh random AES key of the given size in bits (128,
// 192, or 256).
func GenerateKey(bits int) ([]byte, error) {
	size := cfg.KeySize(bits / 8)
	if !size.IsValid() {
		return nil, &keyDerivationError{bits: bits}
	}
	key := make([]byte, bits/8)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

type keyDerivationError struct {
	bits int
}

func (e *keyDerivationError) Error() string {
	return "envelope: unsupported key size in bits (want 128, 192, or 256): " + strconv.Itoa(e.bits)
}
