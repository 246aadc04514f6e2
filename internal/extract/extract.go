// Package extract turns files on disk into raw text for chunking.
// Plain text and markdown are handled natively; binary formats (PDF,
// DOCX) are delegated to external converter commands configured by the
// user. Any extraction failure is terminal for the file's current
// fingerprint: the coordinator will not retry until the file changes.
package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// DefaultMaxFileSize is the largest file extract will read (50MB).
// Oversized files fail extraction rather than exhausting memory.
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

// Metadata describes the extracted document.
type Metadata struct {
	// Ext is the lowercase file extension including the dot (".md").
	Ext string
	// Name is the base file name.
	Name string
}

// Extractor converts a file into raw text.
type Extractor interface {
	// Extract reads the file and returns its text content.
	// Fails with ERR_203_UNSUPPORTED_FORMAT or ERR_204_CORRUPT_FILE.
	Extract(path string) (string, Metadata, error)

	// Extensions returns the file extensions this extractor handles.
	Extensions() []string
}

// Registry routes files to extractors by extension.
type Registry struct {
	byExt       map[string]Extractor
	maxFileSize int64
}

// NewRegistry creates a registry with the given extractors. Later
// registrations win on extension conflicts.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{
		byExt:       make(map[string]Extractor),
		maxFileSize: DefaultMaxFileSize,
	}
	for _, e := range extractors {
		for _, ext := range e.Extensions() {
			r.byExt[strings.ToLower(ext)] = e
		}
	}
	return r
}

// Supported reports whether files with this extension can be extracted.
func (r *Registry) Supported(ext string) bool {
	_, ok := r.byExt[strings.ToLower(ext)]
	return ok
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	return exts
}

// Extract routes the file to the matching extractor.
func (r *Registry) Extract(path string) (string, Metadata, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return "", Metadata{}, qerrors.New(qerrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("no extractor registered for %q", ext), nil)
	}

	if info, err := os.Stat(path); err == nil && info.Size() > r.maxFileSize {
		return "", Metadata{}, qerrors.New(qerrors.ErrCodeFileTooLarge,
			fmt.Sprintf("%s is %d bytes, limit is %d", path, info.Size(), r.maxFileSize), nil)
	}

	return e.Extract(path)
}

// TextExtractor handles plain text files.
type TextExtractor struct{}

// NewTextExtractor creates a plain text extractor.
func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

// Extensions returns the extensions handled by TextExtractor.
func (e *TextExtractor) Extensions() []string { return []string{".txt", ".text", ".log"} }

// Extract reads the file as UTF-8 text.
func (e *TextExtractor) Extract(path string) (string, Metadata, error) {
	content, meta, err := readFile(path)
	if err != nil {
		return "", Metadata{}, err
	}
	if isBinaryContent(content) {
		return "", Metadata{}, qerrors.New(qerrors.ErrCodeCorruptFile,
			fmt.Sprintf("%s contains binary data", path), nil)
	}
	return string(content), meta, nil
}

// frontmatterPattern matches a leading YAML frontmatter block.
var frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)

// MarkdownExtractor handles markdown files, stripping YAML frontmatter
// so metadata keys do not pollute the embedding.
type MarkdownExtractor struct{}

// NewMarkdownExtractor creates a markdown extractor.
func NewMarkdownExtractor() *MarkdownExtractor { return &MarkdownExtractor{} }

// Extensions returns the extensions handled by MarkdownExtractor.
func (e *MarkdownExtractor) Extensions() []string { return []string{".md", ".markdown", ".mdx"} }

// Extract reads the file and strips frontmatter.
func (e *MarkdownExtractor) Extract(path string) (string, Metadata, error) {
	content, meta, err := readFile(path)
	if err != nil {
		return "", Metadata{}, err
	}
	if isBinaryContent(content) {
		return "", Metadata{}, qerrors.New(qerrors.ErrCodeCorruptFile,
			fmt.Sprintf("%s contains binary data", path), nil)
	}

	text := string(content)
	if m := frontmatterPattern.FindString(text); m != "" {
		text = text[len(m):]
	}
	return text, meta, nil
}

// readFile reads the file and builds metadata, mapping OS errors onto
// the extraction taxonomy.
func readFile(path string) ([]byte, Metadata, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Metadata{}, qerrors.Wrap(qerrors.ErrCodeFileNotFound, err)
		}
		return nil, Metadata{}, qerrors.Wrap(qerrors.ErrCodeFilePermission, err)
	}
	return content, Metadata{
		Ext:  strings.ToLower(filepath.Ext(path)),
		Name: filepath.Base(path),
	}, nil
}

// isBinaryContent checks the first 512 bytes for null bytes.
func isBinaryContent(content []byte) bool {
	checkLen := 512
	if len(content) < checkLen {
		checkLen = len(content)
	}
	return bytes.IndexByte(content[:checkLen], 0) >= 0
}
