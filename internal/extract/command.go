package extract

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// commandTimeout bounds external converter runtime.
const commandTimeout = 60 * time.Second

// CommandExtractor delegates a binary format to an external converter
// command, e.g. pdftotext for PDF or pandoc for DOCX. The file path
// replaces a "{}" argument, or is appended when no placeholder is
// given; the command must print plain text to stdout. Binary-format
// parsing itself lives outside quarry; this adapter is only the seam.
type CommandExtractor struct {
	exts    []string
	command string
	args    []string
}

// NewCommandExtractor creates an extractor for the given extensions
// backed by the given command. An empty command means the format is
// declared but unavailable; extraction then fails as unsupported.
func NewCommandExtractor(exts []string, command string, args ...string) *CommandExtractor {
	return &CommandExtractor{exts: exts, command: command, args: args}
}

// Extensions returns the extensions this converter claims.
func (e *CommandExtractor) Extensions() []string { return e.exts }

// Extract runs the converter and captures stdout.
func (e *CommandExtractor) Extract(path string) (string, Metadata, error) {
	meta := Metadata{
		Ext:  strings.ToLower(filepath.Ext(path)),
		Name: filepath.Base(path),
	}

	if e.command == "" {
		return "", Metadata{}, qerrors.New(qerrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("no converter configured for %q", meta.Ext), nil)
	}
	if _, err := exec.LookPath(e.command); err != nil {
		return "", Metadata{}, qerrors.New(qerrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("converter %q for %q not installed", e.command, meta.Ext), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	args := make([]string, 0, len(e.args)+1)
	placed := false
	for _, a := range e.args {
		if a == "{}" {
			args = append(args, path)
			placed = true
			continue
		}
		args = append(args, a)
	}
	if !placed {
		args = append(args, path)
	}
	out, err := exec.CommandContext(ctx, e.command, args...).Output()
	if err != nil {
		// A converter that rejects the file means the file is bad for
		// this fingerprint; there is no point retrying.
		return "", Metadata{}, qerrors.New(qerrors.ErrCodeCorruptFile,
			fmt.Sprintf("%s failed on %s: %v", e.command, path, err), err)
	}

	return string(out), meta, nil
}
