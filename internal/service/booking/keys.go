package booking

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	DefaultKeyBytes = 24
	// 96 bits.
	minKeyBytes = 12
)

// KeyGenerator draws opaque URL-safe tokens from an injected random source.
type KeyGenerator struct {
	rand io.Reader
	size int
}

func NewKeyGenerator(r io.Reader, size int) *KeyGenerator {
	if r == nil {
		r = rand.Reader
	}
	if size <= 0 {
		size = DefaultKeyBytes
	}
	if size < minKeyBytes {
		size = minKeyBytes
	}
	return &KeyGenerator{rand: r, size: size}
}

func (g *KeyGenerator) Generate() (string, error) {
	buf := make([]byte, g.size)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("read random key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateKeyPair makes two independent draws. Distinctness is not checked here.
func (g *KeyGenerator) GenerateKeyPair() (string, string, error) {
	public, err := g.Generate()
	if err != nil {
		return "", "", err
	}
	private, err := g.Generate()
	if err != nil {
		return "", "", err
	}
	return public, private, nil
}
