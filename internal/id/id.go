package id

import (
	"context"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
)

const (
	defaultLength = 8

	// Alphabet is the URL-safe character set ids are drawn from.
	Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_-"
)

// Generator produces short, URL-safe identifiers. Uniqueness is probabilistic;
// the store still enforces it.
type Generator struct {
	length int
}

// New returns a Generator with the provided length. If length <= 0, a sane default is used.
func New(length int) *Generator {
	if length <= 0 {
		length = defaultLength
	}
	return &Generator{length: length}
}

// Generate returns a new identifier.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	out, err := gonanoid.Generate(Alphabet, g.length)
	if err != nil {
		return "", errors.Wrap(err, "generate id")
	}
	return out, nil
}

// Len reports the length of generated identifiers.
func (g *Generator) Len() int {
	return g.length
}
