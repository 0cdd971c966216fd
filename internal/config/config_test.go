package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"govm/internal/vm"
)

func TestLoadMissingPathIsNotAnError(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)
	require.Nil(t, f.HeapWords)
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "govm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("heap_words: 2048\nmax_heap_words: 65536\nquantum: 8\ndebug: true\n"), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2048, *f.HeapWords)
	require.Equal(t, 65536, *f.MaxHeapWords)
	require.Equal(t, 8, *f.Quantum)
	require.True(t, *f.Debug)
}

func TestApplyLayersOverDefaults(t *testing.T) {
	base := vm.DefaultConfig()
	quantum := 99
	f := File{Quantum: &quantum}
	merged := Apply(base, f)
	require.Equal(t, 99, merged.Quantum)
	require.Equal(t, base.HeapWords, merged.HeapWords)
}

func TestApplyLayersMaxHeapWords(t *testing.T) {
	base := vm.DefaultConfig()
	require.Zero(t, base.MaxHeapWords)
	maxWords := 1 << 20
	merged := Apply(base, File{MaxHeapWords: &maxWords})
	require.Equal(t, maxWords, merged.MaxHeapWords)
}
