package stopwords

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeparators(t *testing.T) {
	words, err := Parse(strings.NewReader("什么、如何、怎么\nthe, of\n\n  哪些  "))
	require.NoError(t, err)
	assert.Equal(t, []string{"什么", "如何", "怎么", "the", "of", "哪些"}, words)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.txt")
	require.NoError(t, os.WriteFile(path, []byte("报名、The"), 0o644))

	set := Load(path)
	assert.True(t, set.Contains("报名"))
	assert.True(t, set.Contains("the"))
	assert.False(t, set.Contains("什么"))
	assert.Equal(t, 2, set.Len())
}

func TestLoadFailsOpen(t *testing.T) {
	missing := Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Equal(t, 0, missing.Len())
	assert.False(t, missing.Contains("什么"))

	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n \n"), 0o644))
	empty := Load(path)
	assert.Equal(t, 0, empty.Len())
}

func TestDefaultAndNil(t *testing.T) {
	set := Load("")
	assert.True(t, set.Contains("什么"))
	assert.True(t, set.Contains("the"))

	var none *Set
	assert.False(t, none.Contains("什么"))
	assert.Equal(t, 0, none.Len())
}
