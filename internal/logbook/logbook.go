// Package logbook persists classified outcomes to per-category log
// files and collects rendered winning snippets into an HTML preview
// page. Files are created lazily so a clean run leaves no empty logs.
package logbook

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/bidprobe/bidprobe/internal/classifier"
)

const lockFileName = ".bidprobe.lock"

var snippetHeader = template.Must(template.New("header").Parse(
	`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>bidprobe snippets {{.Stamp}}</title>
<style>
body { font-family: sans-serif; background: #f4f4f4; }
.snippet { background: #fff; margin: 1em; padding: 1em; border: 1px solid #ccc; }
.snippet h3 { margin-top: 0; font-size: 0.9em; color: #555; }
iframe { border: 1px dashed #999; }
</style>
</head>
<body>
<h1>Rendered bid snippets ({{.Stamp}})</h1>
`))

var snippetEntry = template.Must(template.New("entry").Parse(
	`<div class="snippet">
<h3>{{.Title}}</h3>
<iframe src="data:text/html;charset=utf-8;base64,{{.Data}}" width="{{.Width}}" height="{{.Height}}"></iframe>
</div>
`))

// Book owns the output directory for one run. All methods are safe for
// concurrent use.
type Book struct {
	dir   string
	stamp string
	lock  *flock.Flock

	mu       sync.Mutex
	files    map[classifier.Category]*os.File
	snippets *os.File
	written  map[classifier.Category]int
	rendered int
}

// Open prepares a Book rooted at dir, creating the directory when
// missing. The directory is guarded with an advisory lock so two
// concurrent runs cannot interleave output.
func Open(dir string) (*Book, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock output dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("output dir %s is in use by another run", dir)
	}
	return &Book{
		dir:     dir,
		stamp:   time.Now().Format("20060102-150405"),
		lock:    lock,
		files:   make(map[classifier.Category]*os.File),
		written: make(map[classifier.Category]int),
	}, nil
}

// Record appends one outcome to its category log file.
func (b *Book) Record(out *classifier.Outcome) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.categoryFile(out.Category)
	if err != nil {
		return err
	}
	if err := writeRecord(f, out); err != nil {
		return fmt.Errorf("write %s record: %w", out.Category, err)
	}
	b.written[out.Category]++
	return nil
}

// AddSnippet appends one rendered snippet to the HTML preview page.
// The markup is embedded as a base64 data URI so hostile snippets
// cannot escape their iframe into the preview document.
func (b *Book) AddSnippet(title, html string, width, height int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.snippets == nil {
		f, err := os.Create(filepath.Join(b.dir, "snippets-"+b.stamp+".html"))
		if err != nil {
			return fmt.Errorf("create snippet page: %w", err)
		}
		if err := snippetHeader.Execute(f, struct{ Stamp string }{b.stamp}); err != nil {
			f.Close()
			return err
		}
		b.snippets = f
	}

	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	err := snippetEntry.Execute(b.snippets, struct {
		Title  string
		Data   string
		Width  int64
		Height int64
	}{
		Title:  title,
		Data:   base64.StdEncoding.EncodeToString([]byte(html)),
		Width:  width,
		Height: height,
	})
	if err != nil {
		return fmt.Errorf("write snippet: %w", err)
	}
	b.rendered++
	return nil
}

// Written reports how many records went to each category file.
func (b *Book) Written() map[classifier.Category]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := make(map[classifier.Category]int, len(b.written))
	for c, n := range b.written {
		counts[c] = n
	}
	return counts
}

// Rendered reports how many snippets went to the preview page.
func (b *Book) Rendered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rendered
}

// Close flushes and closes every open file and releases the directory
// lock. The Book must not be used afterwards.
func (b *Book) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for _, f := range b.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.files = make(map[classifier.Category]*os.File)

	if b.snippets != nil {
		if _, err := b.snippets.WriteString("</body>\n</html>\n"); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := b.snippets.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.snippets = nil
	}

	if err := b.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// categoryFile returns the log file for a category, creating it on
// first use. Callers must hold b.mu.
func (b *Book) categoryFile(c classifier.Category) (*os.File, error) {
	if f, ok := b.files[c]; ok {
		return f, nil
	}
	name := fmt.Sprintf("%s-%s.log", c, b.stamp)
	f, err := os.Create(filepath.Join(b.dir, name))
	if err != nil {
		return nil, fmt.Errorf("create %s log: %w", c, err)
	}
	b.files[c] = f
	return f, nil
}

func writeRecord(f *os.File, out *classifier.Outcome) error {
	id := ""
	if out.Request != nil {
		id = out.Request.ID
	}
	if _, err := fmt.Fprintf(f, "=== %s category=%s status=%d\n", id, out.Category, out.StatusCode); err != nil {
		return err
	}
	if out.TransportErr != nil {
		if _, err := fmt.Fprintf(f, "transport error: %v\n", out.TransportErr); err != nil {
			return err
		}
	}
	if out.Request != nil && len(out.Request.Payload) > 0 {
		if _, err := fmt.Fprintf(f, "--- request\n%s\n", out.Request.Payload); err != nil {
			return err
		}
	}
	if len(out.Payload) > 0 {
		if _, err := fmt.Fprintf(f, "--- response\n%s\n", out.Payload); err != nil {
			return err
		}
	}
	if len(out.Problems) > 0 {
		if _, err := fmt.Fprintln(f, "--- problems"); err != nil {
			return err
		}
		for _, p := range out.Problems {
			if _, err := fmt.Fprintf(f, "  - %s\n", p); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(f)
	return err
}
