package web

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	fsys := Static()
	for _, name := range []string{"index.html", "app.js", "style.css"} {
		info, err := fs.Stat(fsys, name)
		require.NoError(t, err, name)
		assert.False(t, info.IsDir())
	}
}
