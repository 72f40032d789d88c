package logbook

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bidprobe/bidprobe/internal/classifier"
	"github.com/bidprobe/bidprobe/internal/generator"
)

func outcome(id string, c classifier.Category, problems ...string) *classifier.Outcome {
	return &classifier.Outcome{
		Request:    &generator.Request{ID: id, Payload: []byte(`{"id":"` + id + `"}`)},
		StatusCode: 200,
		Payload:    []byte(`{"id":"` + id + `","seatbid":[]}`),
		Problems:   problems,
		Category:   c,
	}
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		if e.Name() == lockFileName {
			continue
		}
		names = append(names, e.Name())
	}
	return names
}

func TestRecordCreatesCategoryFilesLazily(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := b.Record(outcome("r1", classifier.CategoryGood)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := b.Record(outcome("r2", classifier.CategoryProblematic, "bid 0: price is zero")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	names := listFiles(t, dir)
	if len(names) != 2 {
		t.Fatalf("expected exactly two files (no empty logs), got %v", names)
	}
	var haveGood, haveProblematic bool
	for _, n := range names {
		if strings.HasPrefix(n, "good-") {
			haveGood = true
		}
		if strings.HasPrefix(n, "problematic-") {
			haveProblematic = true
		}
	}
	if !haveGood || !haveProblematic {
		t.Fatalf("expected good and problematic logs, got %v", names)
	}
}

func TestRecordContent(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	out := outcome("r1", classifier.CategoryProblematic, "bid 0: markup (adm) is empty")
	if err := b.Record(out); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	names := listFiles(t, dir)
	data, err := os.ReadFile(filepath.Join(dir, names[0]))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	for _, want := range []string{"=== r1", "--- request", "--- response", "--- problems", "markup (adm) is empty"} {
		if !strings.Contains(text, want) {
			t.Fatalf("log missing %q:\n%s", want, text)
		}
	}
}

func TestSnippetPageEmbedsMarkupAsDataURI(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	markup := `<h1>hello ad</h1>`
	if err := b.AddSnippet("r1 $1.25", markup, 300, 250); err != nil {
		t.Fatalf("AddSnippet: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var page string
	for _, n := range listFiles(t, dir) {
		if strings.HasPrefix(n, "snippets-") && strings.HasSuffix(n, ".html") {
			data, err := os.ReadFile(filepath.Join(dir, n))
			if err != nil {
				t.Fatalf("read page: %v", err)
			}
			page = string(data)
		}
	}
	if page == "" {
		t.Fatal("snippet page was not written")
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(markup))
	if !strings.Contains(page, encoded) {
		t.Fatal("snippet markup not embedded as base64 data URI")
	}
	if !strings.Contains(page, `width="300"`) || !strings.Contains(page, `height="250"`) {
		t.Fatal("iframe dimensions not applied")
	}
	if !strings.Contains(page, "</html>") {
		t.Fatal("page footer missing after Close")
	}
}

func TestNoFilesWithoutRecords(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if names := listFiles(t, dir); len(names) != 0 {
		t.Fatalf("expected no output files, got %v", names)
	}
}

func TestWrittenCounts(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	for i := 0; i < 3; i++ {
		if err := b.Record(outcome("r", classifier.CategoryGood)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := b.Record(outcome("r", classifier.CategoryError)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	counts := b.Written()
	if counts[classifier.CategoryGood] != 3 || counts[classifier.CategoryError] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestSecondOpenOnLockedDirFails(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	if _, err := Open(dir); err == nil {
		t.Fatal("expected second Open on a locked dir to fail")
	}
}
