//go:build mage

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{name: "empty", content: "", want: 0},
		{name: "trailing newline", content: "package x\n\nfunc f() {}\n", want: 3},
		{name: "no trailing newline", content: "package x\nvar y int", want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "f.go")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			n, err := countLines(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}

	_, err := countLines(filepath.Join(t.TempDir(), "missing.go"))
	assert.Error(t, err)
}
