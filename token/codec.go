// SPDX-License-Identifier: LGPL-3.0-or-later

package token

import (
	"fmt"
	"time"

	"github.com/laphilosophia/sigil/context"
	"github.com/laphilosophia/sigil/cryptocore"
	"github.com/laphilosophia/sigil/encoding"
)

// GenerateRegular builds, signs, and base64url-encodes a regular token.
//
// kid is accepted as a plain int, not a uint8, and is truncated with
// kid&0xff when written to the wire. Keyring construction and rotation
// reject an out-of-range kid with an error; the codec deliberately
// truncates instead of failing so that encoding stays infallible for any
// already-valid key material a caller hands it.
func GenerateRegular(provider cryptocore.Provider, key []byte, kid int, ctx *[context.Size]byte, now time.Time) (string, error) {
	nonce, err := provider.Random(NonceSize)
	if err != nil {
		return "", fmt.Errorf("token: generate regular: %w", err)
	}

	var c [context.Size]byte
	if ctx != nil {
		c = *ctx
	} else {
		c = context.Empty()
	}

	buf := make([]byte, RegularSize)
	buf[regKidOff] = byte(kid & 0xff)
	copy(buf[regNonceOff:regNonceOff+NonceSize], nonce)
	encoding.PutUint64BE(buf, regTSOff, uint64(nowMillis(now)))
	copy(buf[regCtxOff:regCtxOff+context.Size], c[:])

	mac := provider.Sign(key, buf[:regMACOff])
	copy(buf[regMACOff:RegularSize], mac)

	return encoding.EncodeToString(buf), nil
}

// ParseRegular decodes and slices a regular token at fixed offsets. It
// never reads a length field from the token itself: any base64 error or a
// decoded length other than exactly RegularSize is rejected.
func ParseRegular(tok string) (*Regular, bool) {
	raw, err := encoding.DecodeString(tok)
	if err != nil || len(raw) != RegularSize {
		return nil, false
	}
	r := &Regular{Kid: raw[regKidOff]}
	copy(r.Nonce[:], raw[regNonceOff:regNonceOff+NonceSize])
	r.Timestamp = int64(encoding.Uint64BE(raw, regTSOff))
	copy(r.Context[:], raw[regCtxOff:regCtxOff+context.Size])
	copy(r.MAC[:], raw[regMACOff:RegularSize])
	return r, true
}

// SerializeRegular deterministically reconstructs the wire encoding of an
// already-parsed (or hand-built, for test fixtures) Regular token without
// recomputing its MAC.
func SerializeRegular(r *Regular) string {
	buf := make([]byte, RegularSize)
	buf[regKidOff] = r.Kid
	copy(buf[regNonceOff:regNonceOff+NonceSize], r.Nonce[:])
	encoding.PutUint64BE(buf, regTSOff, uint64(r.Timestamp))
	copy(buf[regCtxOff:regCtxOff+context.Size], r.Context[:])
	copy(buf[regMACOff:RegularSize], r.MAC[:])
	return encoding.EncodeToString(buf)
}

// regularPayload returns the bytes the MAC is computed over: everything
// but the MAC itself. Called on a zero-value Regular{} when the token
// failed to parse, which is exactly the "dummy payload" step 4 of the
// Deterministic Failure Model requires.
func regularPayload(r *Regular) []byte {
	buf := make([]byte, regMACOff)
	buf[regKidOff] = r.Kid
	copy(buf[regNonceOff:regNonceOff+NonceSize], r.Nonce[:])
	encoding.PutUint64BE(buf, regTSOff, uint64(r.Timestamp))
	copy(buf[regCtxOff:regCtxOff+context.Size], r.Context[:])
	return buf
}

// GenerateOneShot builds, signs, and base64url-encodes a one-shot token
// bound to action. The action string is never stored verbatim: only its
// SHA-256 digest travels on the wire.
func GenerateOneShot(provider cryptocore.Provider, key []byte, action string, ctx *[context.Size]byte, now time.Time) (string, error) {
	nonce, err := provider.Random(NonceSize)
	if err != nil {
		return "", fmt.Errorf("token: generate one-shot: %w", err)
	}

	var c [context.Size]byte
	if ctx != nil {
		c = *ctx
	} else {
		c = context.Empty()
	}
	actionHash := provider.SHA256([]byte(action))

	buf := make([]byte, OneShotSize)
	copy(buf[osNonceOff:osNonceOff+NonceSize], nonce)
	encoding.PutUint64BE(buf, osTSOff, uint64(nowMillis(now)))
	copy(buf[osActionOff:osActionOff+context.Size], actionHash[:])
	copy(buf[osCtxOff:osCtxOff+context.Size], c[:])

	mac := provider.Sign(key, buf[:osMACOff])
	copy(buf[osMACOff:OneShotSize], mac)

	return encoding.EncodeToString(buf), nil
}

// ParseOneShot decodes and slices a one-shot token at fixed offsets,
// requiring an exact decoded length of OneShotSize.
func ParseOneShot(tok string) (*OneShot, bool) {
	raw, err := encoding.DecodeString(tok)
	if err != nil || len(raw) != OneShotSize {
		return nil, false
	}
	o := &OneShot{}
	copy(o.Nonce[:], raw[osNonceOff:osNonceOff+NonceSize])
	o.Timestamp = int64(encoding.Uint64BE(raw, osTSOff))
	copy(o.Action[:], raw[osActionOff:osActionOff+context.Size])
	copy(o.Context[:], raw[osCtxOff:osCtxOff+context.Size])
	copy(o.MAC[:], raw[osMACOff:OneShotSize])
	return o, true
}

// SerializeOneShot deterministically reconstructs the wire encoding of an
// already-built OneShot value.
func SerializeOneShot(o *OneShot) string {
	buf := make([]byte, OneShotSize)
	copy(buf[osNonceOff:osNonceOff+NonceSize], o.Nonce[:])
	encoding.PutUint64BE(buf, osTSOff, uint64(o.Timestamp))
	copy(buf[osActionOff:osActionOff+context.Size], o.Action[:])
	copy(buf[osCtxOff:osCtxOff+context.Size], o.Context[:])
	copy(buf[osMACOff:OneShotSize], o.MAC[:])
	return encoding.EncodeToString(buf)
}

func oneShotPayload(o *OneShot) []byte {
	buf := make([]byte, osMACOff)
	copy(buf[osNonceOff:osNonceOff+NonceSize], o.Nonce[:])
	encoding.PutUint64BE(buf, osTSOff, uint64(o.Timestamp))
	copy(buf[osActionOff:osActionOff+context.Size], o.Action[:])
	copy(buf[osCtxOff:osCtxOff+context.Size], o.Context[:])
	return buf
}
