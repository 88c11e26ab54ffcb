// Package listing renders the browsing page: the upload form followed by the
// visible entries of one directory.
package listing

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/smugglebox/internal/cryptox"
	"github.com/dmitrijs2005/smugglebox/internal/server/sandbox"
)

// Entry is one visible line of a listing.
type Entry struct {
	Label string
	Href  string
	Name  string
}

type page struct {
	Smuggling bool
	Key       template.JS
	Up        string
	Entries   []Entry
}

var pageTmpl = template.Must(template.New("listing").Parse(`<html><body><h2>Upload File</h2>
{{- if .Smuggling}}
<form id="uploadForm">
    <input type="file" id="fileInput" />
    <input type="submit" value="Upload"/>
</form>
<script>
const xorKey = atob({{.Key}});
document.getElementById('uploadForm').onsubmit = async function(e) {
    e.preventDefault();
    const file = document.getElementById('fileInput').files[0];
    if (!file) return;
    const reader = new FileReader();
    reader.onload = function() {
        const data = new Uint8Array(reader.result);
        const masked = new Uint8Array(data.length);
        for (let i = 0; i < data.length; i++) {
            masked[i] = data[i] ^ xorKey.charCodeAt(i % xorKey.length);
        }
        const form = new FormData();
        form.append('file', new Blob([masked]), file.name);
        fetch('/', { method: 'POST', body: form }).then(() => window.location.reload());
    };
    reader.readAsArrayBuffer(file);
};
</script>
{{- else}}
<form enctype="multipart/form-data" method="post" action="/">
    <input name="file" type="file"/>
    <input type="submit" value="Upload"/>
</form>
{{- end}}
<ul>
{{- if .Up}}
<li>[ D ] <a href="{{.Up}}">.. (up)</a></li>
{{- end}}
{{- range .Entries}}
<li>{{.Label}} <a href="{{.Href}}">{{.Name}}</a></li>
{{- end}}
</ul></body></html>
`))

// Renderer produces directory listings. The smuggling flag is fixed at
// construction and selects which upload form is embedded.
type Renderer struct {
	sandbox   *sandbox.Sandbox
	key       cryptox.Key
	smuggling bool
}

// New returns a Renderer.
func New(sb *sandbox.Sandbox, key cryptox.Key, smuggling bool) *Renderer {
	return &Renderer{sandbox: sb, key: key, smuggling: smuggling}
}

// Entries returns the visible entries of dir in lexical order.
func (r *Renderer) Entries(dir sandbox.Path) ([]Entry, error) {
	des, err := os.ReadDir(dir.Abs)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir.Rel, err)
	}

	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if !r.sandbox.Visible(name, filepath.Join(dir.Abs, name)) {
			continue
		}

		label := "[ F ]"
		if isDir(de, filepath.Join(dir.Abs, name)) {
			label = "[ D ]"
		}

		entries = append(entries, Entry{
			Label: label,
			Href:  href(path.Join(dir.Rel, name)),
			Name:  name,
		})
	}

	return entries, nil
}

// Render writes the listing page for dir to w.
func (r *Renderer) Render(w io.Writer, dir sandbox.Path) error {
	entries, err := r.Entries(dir)
	if err != nil {
		return err
	}

	p := page{Smuggling: r.smuggling, Entries: entries}
	if r.smuggling {
		p.Key = template.JS(strconv.Quote(r.key.Base64()))
	}
	if !dir.IsRoot() {
		p.Up = href(path.Dir(dir.Rel))
	}

	// Render into a buffer so a template failure never leaves half a page.
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, p); err != nil {
		return fmt.Errorf("render listing: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// isDir follows symlinks, so a link to a directory is listed as one.
func isDir(de os.DirEntry, abs string) bool {
	if de.Type()&os.ModeSymlink == 0 {
		return de.IsDir()
	}
	fi, err := os.Stat(abs)
	return err == nil && fi.IsDir()
}

func href(rel string) string {
	if rel == "." || rel == "" {
		return "/"
	}
	segs := strings.Split(rel, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(segs, "/")
}
