package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/siherrmann/docrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRunner is a test double for CommandRunner.
type mockRunner struct {
	output []byte
	err    error
	name   string
	args   []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.name = name
	m.args = args
	return m.output, m.err
}

func writeTestPDF(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestLoad(t *testing.T) {
	l := NewPDFLoader()
	ctx := context.Background()

	t.Run("Valid PDF file", func(t *testing.T) {
		path := writeTestPDF(t, "contract.pdf", []byte("%PDF-1.4 fake content"))

		doc, err := l.Load(ctx, path)
		require.NoError(t, err, "Expected Load to not return an error")

		assert.Len(t, doc.Fingerprint, 64, "Expected a hex sha256 fingerprint")
		assert.Equal(t, path, doc.Source)
		assert.Equal(t, int64(21), doc.SizeBytes)
		assert.Equal(t, "contract.pdf", doc.Metadata.Source())
		sizeKB, ok := doc.Metadata.FileSizeKB()
		require.True(t, ok, "Expected file_size_kb metadata to be set")
		assert.InDelta(t, 21.0/1024.0, sizeKB, 0.001)
		assert.NotEmpty(t, doc.Metadata[model.MetadataKeyIngestionDate])
	})

	t.Run("Identical content yields identical fingerprints", func(t *testing.T) {
		first := writeTestPDF(t, "a.pdf", []byte("%PDF-1.4 same bytes"))
		second := writeTestPDF(t, "b.pdf", []byte("%PDF-1.4 same bytes"))

		docA, err := l.Load(ctx, first)
		require.NoError(t, err)
		docB, err := l.Load(ctx, second)
		require.NoError(t, err)

		assert.Equal(t, docA.Fingerprint, docB.Fingerprint)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := l.Load(ctx, filepath.Join(t.TempDir(), "missing.pdf"))
		assert.Error(t, err)
	})

	t.Run("Directory", func(t *testing.T) {
		_, err := l.Load(ctx, t.TempDir())
		assert.ErrorIs(t, err, model.ErrInvalidFormat)
	})

	t.Run("Non-PDF extension", func(t *testing.T) {
		path := writeTestPDF(t, "notes.txt", []byte("plain text"))
		_, err := l.Load(ctx, path)
		assert.ErrorIs(t, err, model.ErrInvalidFormat)
	})

	t.Run("Uppercase extension is accepted", func(t *testing.T) {
		path := writeTestPDF(t, "REPORT.PDF", []byte("%PDF-1.4"))
		_, err := l.Load(ctx, path)
		assert.NoError(t, err)
	})
}

func TestListPDFs(t *testing.T) {
	l := NewPDFLoader()
	ctx := context.Background()

	t.Run("Lists only PDF files, sorted", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"b.pdf", "a.pdf", "REPORT.PDF", "notes.txt"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4"), 0644))
		}
		require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.pdf"), 0755))

		paths, err := l.List(ctx, dir)
		require.NoError(t, err, "Expected List to not return an error")

		assert.Equal(t, []string{
			filepath.Join(dir, "REPORT.PDF"),
			filepath.Join(dir, "a.pdf"),
			filepath.Join(dir, "b.pdf"),
		}, paths, "Expected PDFs only, directories and other files skipped")
	})

	t.Run("Empty directory", func(t *testing.T) {
		paths, err := l.List(ctx, t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, paths)
	})

	t.Run("Missing directory", func(t *testing.T) {
		_, err := l.List(ctx, filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
	})
}

func TestExtract(t *testing.T) {
	ctx := context.Background()

	t.Run("Extracts and cleans text", func(t *testing.T) {
		// pdftotext terminates every page with a form feed, the last one too.
		runner := &mockRunner{output: []byte("Title   of  the document\n\n\n\nFirst  clause.\fSecond   page text.\f")}
		l := NewPDFLoaderWithRunner(runner)

		path := writeTestPDF(t, "contract.pdf", []byte("%PDF-1.4"))
		doc, err := l.Load(ctx, path)
		require.NoError(t, err)

		text, err := l.Extract(ctx, doc)
		require.NoError(t, err, "Expected Extract to not return an error")

		assert.Equal(t, "pdftotext", runner.name)
		assert.Contains(t, runner.args, doc.Source)
		assert.Equal(t, "Title of the document\n\nFirst clause.\n\nSecond page text.", text)
		pages, ok := doc.Metadata.TotalPages()
		require.True(t, ok, "Expected total_pages metadata to be set")
		assert.Equal(t, 2, pages)
	})

	t.Run("Page count ignores the trailing form feed", func(t *testing.T) {
		runner := &mockRunner{output: []byte("first page\fsecond page\fthird page\f")}
		l := NewPDFLoaderWithRunner(runner)

		path := writeTestPDF(t, "contract.pdf", []byte("%PDF-1.4"))
		doc, err := l.Load(ctx, path)
		require.NoError(t, err)

		_, err = l.Extract(ctx, doc)
		require.NoError(t, err)

		pages, ok := doc.Metadata.TotalPages()
		require.True(t, ok)
		assert.Equal(t, 3, pages, "Expected three pages, not one per form feed plus one")
	})

	t.Run("Empty extraction result", func(t *testing.T) {
		runner := &mockRunner{output: []byte("  \n\n \f \n")}
		l := NewPDFLoaderWithRunner(runner)

		path := writeTestPDF(t, "empty.pdf", []byte("%PDF-1.4"))
		doc, err := l.Load(ctx, path)
		require.NoError(t, err)

		_, err = l.Extract(ctx, doc)
		assert.ErrorIs(t, err, model.ErrEmptyText)
	})

	t.Run("pdftotext failure", func(t *testing.T) {
		runner := &mockRunner{err: fmt.Errorf("exit status 1")}
		l := NewPDFLoaderWithRunner(runner)

		path := writeTestPDF(t, "broken.pdf", []byte("%PDF-1.4"))
		doc, err := l.Load(ctx, path)
		require.NoError(t, err)

		_, err = l.Extract(ctx, doc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pdftotext failed")
	})

	t.Run("pdftotext not installed", func(t *testing.T) {
		runner := &mockRunner{err: ErrPDFToolNotFound}
		l := NewPDFLoaderWithRunner(runner)

		path := writeTestPDF(t, "contract.pdf", []byte("%PDF-1.4"))
		doc, err := l.Load(ctx, path)
		require.NoError(t, err)

		_, err = l.Extract(ctx, doc)
		assert.ErrorIs(t, err, ErrPDFToolNotFound)
	})
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "collapses space runs",
			input:    "too   many    spaces",
			expected: "too many spaces",
		},
		{
			name:     "collapses tabs",
			input:    "tabbed\t\ttext",
			expected: "tabbed text",
		},
		{
			name:     "preserves paragraph breaks",
			input:    "first paragraph\n\nsecond paragraph",
			expected: "first paragraph\n\nsecond paragraph",
		},
		{
			name:     "collapses blank line runs",
			input:    "first\n\n\n\n\nsecond",
			expected: "first\n\nsecond",
		},
		{
			name:     "trims line and outer whitespace",
			input:    "  line one  \n  line two  \n",
			expected: "line one\nline two",
		},
		{
			name:     "empty input",
			input:    "   \n\n  ",
			expected: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, CleanText(tc.input))
		})
	}
}
