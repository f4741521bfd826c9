package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/siherrmann/docrag/helper"
	"github.com/siherrmann/docrag/model"
)

// CommandRunner executes an external command and returns its stdout. Kept as
// an interface so tests can substitute the pdftotext binary.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	return exec.CommandContext(ctx, name, args...).Output()
}

// ErrPDFToolNotFound is returned when text extraction is attempted without
// pdftotext in PATH (install poppler-utils, on macOS brew install poppler).
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

// PDFLoader loads PDF files and extracts their text through pdftotext.
type PDFLoader struct {
	runner CommandRunner
}

// NewPDFLoader creates a PDF loader using the pdftotext binary from PATH.
func NewPDFLoader() *PDFLoader {
	return &PDFLoader{runner: execRunner{}}
}

// NewPDFLoaderWithRunner creates a PDF loader with a custom command runner.
func NewPDFLoaderWithRunner(runner CommandRunner) *PDFLoader {
	return &PDFLoader{runner: runner}
}

// List returns the paths of all PDF files directly in dir, sorted by name.
// Subdirectories and files with other extensions are skipped.
func (l *PDFLoader) List(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, helper.NewError("read directory", err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".pdf" {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	return paths, nil
}

// Load validates the path, reads the file and builds a fingerprinted
// document. Only regular files with a .pdf extension are accepted.
func (l *PDFLoader) Load(ctx context.Context, path string) (*model.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, helper.NewError("stat file", err)
	}
	if info.IsDir() {
		return nil, helper.NewError("file validation", fmt.Errorf("%w: %s is a directory", model.ErrInvalidFormat, path))
	}
	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		return nil, helper.NewError("file validation", fmt.Errorf("%w: %s is not a .pdf file", model.ErrInvalidFormat, path))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, helper.NewError("read file", err)
	}

	doc := model.NewDocument(path, content)
	doc.Metadata[model.MetadataKeyFileSizeKB] = float64(info.Size()) / 1024.0
	doc.Metadata[model.MetadataKeyIngestionDate] = doc.IngestedAt.Format("2006-01-02T15:04:05Z07:00")

	return doc, nil
}

// Extract converts the document's source file to plain text via pdftotext and
// normalizes the result. The page count lands in the document metadata.
func (l *PDFLoader) Extract(ctx context.Context, doc *model.Document) (string, error) {
	// "-" sends the text to stdout; pages are separated by form feeds.
	out, err := l.runner.Run(ctx, "pdftotext", "-layout", doc.Source, "-")
	if err != nil {
		if errors.Is(err, ErrPDFToolNotFound) {
			return "", helper.NewError("locate pdftotext", ErrPDFToolNotFound)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", helper.NewError("run pdftotext", fmt.Errorf("pdftotext failed: %s", strings.TrimSpace(string(exitErr.Stderr))))
		}
		return "", helper.NewError("run pdftotext", fmt.Errorf("pdftotext failed: %w", err))
	}

	text := string(out)
	doc.Metadata[model.MetadataKeyTotalPages] = countPages(text)

	text = CleanText(strings.ReplaceAll(text, "\f", "\n\n"))
	if text == "" {
		return "", helper.NewError("extract text", model.ErrEmptyText)
	}

	return text, nil
}

// countPages counts the non-empty form-feed-separated segments of pdftotext
// output. pdftotext terminates every page with a form feed, the last one
// included, so counting separators would report one page too many.
func countPages(text string) int {
	pages := 0
	for _, segment := range strings.Split(text, "\f") {
		if strings.TrimSpace(segment) != "" {
			pages++
		}
	}
	return pages
}

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes whitespace while keeping paragraph breaks: runs of
// spaces and tabs collapse to one space, runs of blank lines collapse to one
// blank line.
func CleanText(text string) string {
	text = spaceRuns.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = newlineRuns.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
