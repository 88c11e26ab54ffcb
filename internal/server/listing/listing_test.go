package listing

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/dmitrijs2005/smugglebox/internal/cryptox"
	"github.com/dmitrijs2005/smugglebox/internal/server/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keyRe = regexp.MustCompile(`atob\("([A-Za-z0-9+/=]+)"\)`)

func setup(t *testing.T) (*sandbox.Sandbox, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	sb, err := sandbox.New(root, filepath.Join(root, "server"))
	require.NoError(t, err)
	return sb, root
}

func render(t *testing.T, r *Renderer, sb *sandbox.Sandbox, raw string) string {
	t.Helper()
	dir, err := sb.Resolve(raw)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, dir))
	return buf.String()
}

func TestRender_EmptyRootObfuscated(t *testing.T) {
	sb, _ := setup(t)
	key, err := cryptox.GenerateKey()
	require.NoError(t, err)

	out := render(t, New(sb, key, true), sb, "/")

	assert.NotContains(t, out, "<li>")
	assert.Contains(t, out, "<script>")

	m := keyRe.FindStringSubmatch(out)
	require.Len(t, m, 2, "no key in page:\n%s", out)
	raw, err := base64.StdEncoding.DecodeString(m[1])
	require.NoError(t, err)
	assert.Len(t, raw, cryptox.KeySize)
	assert.Equal(t, key.Bytes(), raw)
}

func TestRender_PlainModeHasNoScript(t *testing.T) {
	sb, _ := setup(t)
	key, err := cryptox.GenerateKey()
	require.NoError(t, err)

	out := render(t, New(sb, key, false), sb, "/")

	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, key.Base64())
	assert.Contains(t, out, `enctype="multipart/form-data"`)
	assert.Contains(t, out, `name="file"`)
}

func TestRender_FiltersAndOrdersEntries(t *testing.T) {
	sb, root := setup(t)
	for _, name := range []string{"b.txt", "a.txt", ".secret", "up.bin.partial", "server"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(root, "docs"), 0o700))

	out := render(t, New(sb, cryptox.Key{}, false), sb, "/")

	assert.NotContains(t, out, ".secret")
	assert.NotContains(t, out, "up.bin.partial")
	assert.NotContains(t, out, `>server<`)
	assert.NotContains(t, out, ".. (up)")

	ia := strings.Index(out, ">a.txt<")
	ib := strings.Index(out, ">b.txt<")
	id := strings.Index(out, ">docs<")
	require.True(t, ia >= 0 && ib >= 0 && id >= 0, out)
	assert.Less(t, ia, ib)
	assert.Less(t, ib, id)
	assert.Contains(t, out, `[ D ] <a href="/docs">docs</a>`)
	assert.Contains(t, out, `[ F ] <a href="/a.txt">a.txt</a>`)
}

func TestRender_SubdirHasUpLinkAndEscapedHrefs(t *testing.T) {
	sb, root := setup(t)
	sub := filepath.Join(root, "my docs")
	require.NoError(t, os.Mkdir(sub, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "<x>.txt"), []byte("x"), 0o600))

	out := render(t, New(sb, cryptox.Key{}, false), sb, "/my docs")

	assert.Contains(t, out, `<a href="/">.. (up)</a>`)
	assert.Contains(t, out, `href="/my%20docs/%3Cx%3E.txt"`)
	assert.Contains(t, out, "&lt;x&gt;.txt")
}

func TestEntries_MissingDirectory(t *testing.T) {
	sb, root := setup(t)
	r := New(sb, cryptox.Key{}, false)

	_, err := r.Entries(sandbox.Path{Abs: filepath.Join(root, "nope"), Rel: "nope"})
	require.Error(t, err)
}
