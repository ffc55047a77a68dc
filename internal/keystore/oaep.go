package keystore

import (
	"crypto"
	"crypto/rsa"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
)

// encryptOAEP is EME-OAEP encryption (RFC 8017, 7.1.1) with an empty label
// and an MGF1 hash that differs from the label hash. crypto/rsa only
// encrypts with a single hash; it decrypts either combination.
func encryptOAEP(h, mgf crypto.Hash, random io.Reader, pub *rsa.PublicKey, msg []byte) ([]byte, error) {
	k := pub.Size()
	hLen := h.Size()
	if len(msg) > k-2*hLen-2 {
		return nil, rsa.ErrMessageTooLong
	}

	em := make([]byte, k)
	seed := em[1 : 1+hLen]
	db := em[1+hLen:]

	copy(db, h.New().Sum(nil))
	db[len(db)-len(msg)-1] = 0x01
	copy(db[len(db)-len(msg):], msg)

	if _, err := io.ReadFull(random, seed); err != nil {
		return nil, fmt.Errorf("failed to read OAEP seed: %w", err)
	}

	mgf1XOR(db, mgf, seed)
	mgf1XOR(seed, mgf, db)

	m := new(big.Int).SetBytes(em)
	c := m.Exp(m, big.NewInt(int64(pub.E)), pub.N)
	return c.FillBytes(make([]byte, k)), nil
}

// mgf1XOR XORs out with MGF1(seed) of the same length.
func mgf1XOR(out []byte, h crypto.Hash, seed []byte) {
	var counter [4]byte
	d := h.New()
	for done, i := 0, uint32(0); done < len(out); i++ {
		binary.BigEndian.PutUint32(counter[:], i)
		d.Reset()
		d.Write(seed)
		d.Write(counter[:])
		for _, b := range d.Sum(nil) {
			if done == len(out) {
				break
			}
			out[done] ^= b
			done++
		}
	}
}
