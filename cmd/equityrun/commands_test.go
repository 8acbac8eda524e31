package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateCutsOnRuneBoundaries(t *testing.T) {
	assert.Equal(t, "Ericsson", truncate("Ericsson", 10))
	assert.Equal(t, "Atlas Co…", truncate("Atlas Copco AB", 9))
	// company names carry multi-byte runes; a byte cut could split one
	assert.Equal(t, "Törebod…", truncate("Töreboda Bruk", 8))
}
