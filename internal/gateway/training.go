package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ErrInvalidReceipt rejects training submissions missing the required
// company/date/total fields.
var ErrInvalidReceipt = errors.New("invalid receipt send")

// ErrUnknownUpload rejects training submissions naming an upload ID the
// ledger has no record of.
var ErrUnknownUpload = errors.New("unknown upload id")

// TrainingSet appends corrected receipt examples to the training corpus
// as paired <index>.png / <index>.json files. Index assignment and the
// paired writes run under a mutex so concurrent submissions can never
// compute the same index.
type TrainingSet struct {
	dir string
	db  DB
	tmp Storage
	mu  sync.Mutex
}

// NewTrainingSet creates a TrainingSet rooted at dir
func NewTrainingSet(dir string, db DB, tmp Storage) (*TrainingSet, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating training directory: %w", err)
	}
	return &TrainingSet{
		dir: dir,
		db:  db,
		tmp: tmp,
	}, nil
}

// Record appends one training example, copying its source image from the
// pending-upload area, and returns the assigned index. The example fields
// are persisted verbatim.
func (t *TrainingSet) Record(example TrainingExample, uploadID string) (int, error) {
	if example.Company == "" || example.Date == "" || example.Total == "" {
		return 0, ErrInvalidReceipt
	}

	source, err := t.sourceImage(uploadID)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	index, err := t.nextIndex()
	if err != nil {
		return 0, err
	}

	imagePath := filepath.Join(t.dir, strconv.Itoa(index)+".png")
	if err := copyFile(source, imagePath); err != nil {
		return 0, fmt.Errorf("copying training image: %w", err)
	}

	if err := t.writeSidecar(index, example); err != nil {
		// Don't leave an image without its sidecar under a committed index
		os.Remove(imagePath)
		return 0, err
	}

	slog.Info("Recorded training example", "index", index, "company", example.Company)
	return index, nil
}

// sourceImage locates the image a training submission corrects. An
// explicit upload ID resolves through the ledger to the exact file; with
// no ID the most recently modified pending upload is used, which is racy
// under concurrent uploads and kept only for wire compatibility.
func (t *TrainingSet) sourceImage(uploadID string) (string, error) {
	if uploadID != "" {
		record, err := t.db.GetUpload(uploadID)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrUnknownUpload, uploadID)
		}
		return record.TmpPath, nil
	}

	slog.Warn("Training submission without upload id, falling back to most recent pending upload")
	path, err := t.tmp.Latest()
	if err != nil {
		return "", fmt.Errorf("locating pending upload: %w", err)
	}
	return path, nil
}

// nextIndex scans the corpus for the highest integer filename stem and
// returns the successor, or 0 for an empty corpus. A file whose stem is
// not an integer fails the request rather than guessing an index.
// Callers must hold mu.
func (t *TrainingSet) nextIndex() (int, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return 0, fmt.Errorf("reading training directory: %w", err)
	}

	next := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			// In-flight sidecar temp files are not part of the corpus
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		n, err := strconv.Atoi(stem)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("training file %q has a non-numeric index", name)
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next, nil
}

// writeSidecar persists the example JSON through a temp-file-then-rename
// so a torn write never leaves a half sidecar beside a committed image
func (t *TrainingSet) writeSidecar(index int, example TrainingExample) error {
	data, err := json.Marshal(example)
	if err != nil {
		return fmt.Errorf("marshaling training example: %w", err)
	}

	tmp, err := os.CreateTemp(t.dir, ".sidecar-*")
	if err != nil {
		return fmt.Errorf("creating sidecar temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing sidecar: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(t.dir, strconv.Itoa(index)+".json")); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("committing sidecar: %w", err)
	}
	return nil
}

// copyFile copies src to dst, truncating dst if it exists
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
