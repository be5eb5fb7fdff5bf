// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keywrap.
//
// go-keywrap is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package symmetric implements the 32-byte XSalsa20-Poly1305 key used as a
// keystore master key and as a password-derived or file-backed user key.
//
// Key bytes live in a secret.Buffer for the whole life of the key. Every
// nonce the key encrypts with is recorded, so a caller-supplied nonce can
// never be used twice with the same key inside one process.
package symmetric

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/jeremyhahn/go-keywrap/internal/encoding"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/aead"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/digest"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/key"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/nonce"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keywrap/pkg/secret"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

const (
	// KeySize is the key width in bytes.
	KeySize = 32

	// Overhead is the authenticator length added to every ciphertext.
	Overhead = secretbox.Overhead

	// serializedMax bounds the msgpack form: fixmap, "key", array16
	// header and 32 elements of at most two bytes.
	serializedMax = 1 + 4 + 3 + 2*KeySize

	fieldKey = "key"
)

// errDecrypt is shared by every authentication failure so a wrong key and
// tampered ciphertext look the same.
var errDecrypt = types.Crypto("decryption failed")

// Key is a symmetric key. It implements key.Key.
type Key struct {
	buf    *secret.Buffer
	digest digest.Digest
	nonces *aead.NonceTracker
}

var _ key.Key = (*Key)(nil)

// Random samples a new key from the process random source.
func Random() (*Key, error) {
	buf, err := secret.WithLen(KeySize)
	if err != nil {
		return nil, err
	}
	if err := rand.FillSecret(buf); err != nil {
		_ = buf.Close()
		return nil, err
	}
	return newKey(buf), nil
}

// FromBytes copies raw key material into a new key and zeroes b.
func FromBytes(b []byte) (*Key, error) {
	if len(b) != KeySize {
		secret.Zero(b)
		return nil, types.InvalidArgumentf("key: want %d bytes, got %d", KeySize, len(b))
	}
	buf, err := secret.NewFromBytes(b)
	if err != nil {
		return nil, err
	}
	return newKey(buf), nil
}

// FromSecret takes ownership of buf, which must hold exactly KeySize bytes.
func FromSecret(buf *secret.Buffer) (*Key, error) {
	if buf.Len() != KeySize {
		return nil, types.InvalidArgumentf("key: want %d bytes, got %d", KeySize, buf.Len())
	}
	return newKey(buf), nil
}

// Deserialize reads a key from its msgpack form {"key": [32 bytes]}. A bare
// 32-byte sequence is accepted as well.
func Deserialize(data []byte) (*Key, error) {
	k := &Key{}
	if err := encoding.Unmarshal(data, k); err != nil {
		return nil, err
	}
	return k, nil
}

func newKey(buf *secret.Buffer) *Key {
	return &Key{
		buf:    buf,
		digest: digest.Of(buf.UnsafeBytes()),
		nonces: aead.NewNonceTracker(true),
	}
}

// Digest returns the SHA-512 of the raw key bytes.
func (k *Key) Digest() digest.Digest {
	return k.digest
}

// Encrypt seals plaintext with XSalsa20-Poly1305. A nil n selects a fresh
// random nonce; a supplied n is returned unchanged and must not have been
// supplied to this key before. Only supplied nonces are tracked.
func (k *Key) Encrypt(plaintext []byte, n *nonce.Nonce) (*nonce.Nonce, []byte, error) {
	kb, err := k.material()
	if err != nil {
		return nil, nil, err
	}

	if n == nil {
		if n, err = nonce.New(); err != nil {
			return nil, nil, err
		}
	} else if err := k.nonces.CheckAndRecord(n); err != nil {
		return nil, nil, err
	}

	return n, secretbox.Seal(nil, plaintext, n.Array(), kb), nil
}

// Decrypt opens ciphertext into a new secret buffer.
func (k *Key) Decrypt(n *nonce.Nonce, ciphertext []byte) (*secret.Buffer, error) {
	kb, err := k.material()
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, types.InvalidArgument("key: nonce required")
	}
	if len(ciphertext) < Overhead {
		return nil, errDecrypt
	}

	out, err := secret.WithLen(len(ciphertext) - Overhead)
	if err != nil {
		return nil, err
	}
	// Open appends into the locked region without reallocating because
	// the capacity is exact.
	dst := out.UnsafeBytes()[:0]
	if _, ok := secretbox.Open(dst, ciphertext, n.Array(), kb); !ok {
		_ = out.Close()
		return nil, errDecrypt
	}
	return out, nil
}

// Serialize writes the msgpack form of the key into locked memory.
func (k *Key) Serialize() (*secret.Buffer, error) {
	if _, err := k.material(); err != nil {
		return nil, err
	}

	out, err := secret.WithLen(serializedMax)
	if err != nil {
		return nil, err
	}
	w := &lockedWriter{buf: out.UnsafeBytes()}
	if err := encoding.Write(w, k); err != nil {
		_ = out.Close()
		return nil, err
	}
	if err := out.Resize(w.n); err != nil {
		_ = out.Close()
		return nil, err
	}
	return out, nil
}

// Clone returns an independent copy in new locked memory. The copy shares
// this key's nonce history.
func (k *Key) Clone() (*Key, error) {
	buf, err := k.buf.TryClone()
	if err != nil {
		return nil, err
	}
	return &Key{buf: buf, digest: k.digest, nonces: k.nonces}, nil
}

// Equal reports whether both keys hold the same material.
func (k *Key) Equal(other *Key) bool {
	return other != nil && k.digest.Equal(other.digest)
}

// UnsafeBytes exposes the raw key material. See secret.Buffer.UnsafeBytes.
func (k *Key) UnsafeBytes() []byte {
	return k.buf.UnsafeBytes()
}

// Close zeroes and releases the key material. The key is unusable after.
// The nonce history is dropped too; clones keep their own reference to it.
func (k *Key) Close() error {
	if k.buf == nil {
		return nil
	}
	k.nonces = aead.NewNonceTracker(true)
	return k.buf.Close()
}

// EncodeMsgpack writes {"key": [32 bytes]}.
func (k *Key) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString(fieldKey); err != nil {
		return err
	}
	return encoding.EncodeByteSeq(enc, k.buf.UnsafeBytes())
}

// DecodeMsgpack reads a key straight into locked memory.
func (k *Key) DecodeMsgpack(dec *msgpack.Decoder) error {
	buf, err := secret.WithLen(KeySize)
	if err != nil {
		return err
	}
	if err := decodeKeyField(dec, buf.UnsafeBytes()); err != nil {
		_ = buf.Close()
		return err
	}
	*k = *newKey(buf)
	return nil
}

func decodeKeyField(dec *msgpack.Decoder, dst []byte) error {
	present, err := encoding.DecodeNilOr(dec)
	if err != nil {
		return types.Decode("key", err)
	}
	if !present {
		return types.Decode("key: unexpected nil", nil)
	}

	c, err := dec.PeekCode()
	if err != nil {
		return types.Decode("key", err)
	}
	if !isMap(c) {
		return encoding.DecodeFixed(dec, dst, "key")
	}

	n, err := encoding.DecodeMapHeader(dec, "key")
	if err != nil {
		return err
	}
	found := false
	for range n {
		name, err := dec.DecodeString()
		if err != nil {
			return types.Decode("key: field name", err)
		}
		if name != fieldKey {
			if err := dec.Skip(); err != nil {
				return types.Decode("key: "+name, err)
			}
			continue
		}
		if err := encoding.DecodeFixed(dec, dst, "key"); err != nil {
			return err
		}
		found = true
	}
	if !found {
		return types.Decode(`key: missing field "key"`, nil)
	}
	return nil
}

func isMap(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}

// material returns the key bytes in the array form secretbox expects.
func (k *Key) material() (*[KeySize]byte, error) {
	if k.buf == nil {
		return nil, types.Precondition("key: not initialized")
	}
	b := k.buf.UnsafeBytes()
	if len(b) != KeySize {
		return nil, types.Precondition("key: closed")
	}
	return (*[KeySize]byte)(b), nil
}

// lockedWriter writes into a fixed locked region and never grows it.
type lockedWriter struct {
	buf []byte
	n   int
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	if len(p) > len(w.buf)-w.n {
		return 0, io.ErrShortBuffer
	}
	w.n += copy(w.buf[w.n:], p)
	return len(p), nil
}

func (w *lockedWriter) WriteByte(c byte) error {
	if w.n >= len(w.buf) {
		return io.ErrShortBuffer
	}
	w.buf[w.n] = c
	w.n++
	return nil
}
