package note

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-kurata/intake/pkg/model"
	"github.com/m-kurata/intake/pkg/utils/logging"
)

const defaultNotesDir = "notes"

// SaveService writes note files under a fixed base directory. Filenames
// are validated against directory traversal and normalized to carry a
// .txt extension.
type SaveService struct {
	dir string
}

// NewSaveService creates a save service rooted at dir. An empty dir
// defaults to "notes" under the working directory.
func NewSaveService(dir string) *SaveService {
	if dir == "" {
		dir = defaultNotesDir
	}
	return &SaveService{dir: dir}
}

// Dir returns the base directory notes are written to.
func (x *SaveService) Dir() string {
	return x.dir
}

// Save writes text to filename under the base directory. The write is
// atomic: content lands in a temp file that is fsynced and renamed over
// the target, so a crash never leaves a partial note. Saving the same
// filename twice overwrites the previous content.
func (x *SaveService) Save(ctx context.Context, filename, text string) (*model.SaveResult, error) {
	name, err := x.normalize(filename)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return nil, saveFailure(err, "failed to create notes directory", goerr.V("dir", x.dir))
	}

	target := filepath.Join(x.dir, name)
	if err := atomicWrite(target, []byte(text)); err != nil {
		return nil, err
	}

	logging.From(ctx).Info("note saved",
		"path", target,
		"bytes", len(text),
	)

	return &model.SaveResult{
		Path:         target,
		Filename:     name,
		BytesWritten: len(text),
		Saved:        true,
	}, nil
}

// normalize validates the filename and enforces the .txt extension. Any
// name that is not a plain basename (absolute, traversal, nested) is
// rejected rather than silently rewritten.
func (x *SaveService) normalize(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return "", goerr.Wrap(model.ErrInvalidFilename, "filename is empty")
	}
	if filepath.IsAbs(name) {
		return "", goerr.Wrap(model.ErrInvalidFilename, "absolute paths are not allowed",
			goerr.V("filename", filename))
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", goerr.Wrap(model.ErrInvalidFilename, "filename must not contain path separators",
			goerr.V("filename", filename))
	}
	if !strings.EqualFold(filepath.Ext(cleaned), ".txt") {
		cleaned += ".txt"
	}
	return cleaned, nil
}

// atomicWrite writes content via temp file, fsync and rename.
func atomicWrite(target string, content []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".intake-note-*")
	if err != nil {
		return saveFailure(err, "failed to create temp file", goerr.V("dir", dir))
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return saveFailure(err, "failed to write note content", goerr.V("path", target))
	}
	if err := tmp.Sync(); err != nil {
		return saveFailure(err, "failed to sync note content", goerr.V("path", target))
	}
	if err := tmp.Close(); err != nil {
		return saveFailure(err, "failed to close temp file", goerr.V("path", target))
	}
	if err := os.Rename(tmpName, target); err != nil {
		return saveFailure(err, "failed to move note into place", goerr.V("path", target))
	}
	success = true
	return nil
}

// saveFailure wraps an OS-level error so the cause stays inspectable
// while errors.Is still matches model.ErrSaveFailed.
func saveFailure(err error, msg string, options ...goerr.Option) error {
	return goerr.Wrap(errors.Join(model.ErrSaveFailed, err), msg, options...)
}
