// Package jsonfile persists the knowledge corpus as a single JSON array of
// {text, source} objects, rewritten atomically on every append.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
)

const lockRetryDelay = 50 * time.Millisecond

type Store struct {
	path string
	lock *flock.Flock

	rename func(oldpath, newpath string) error
}

func New(path string) *Store {
	return &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		rename: os.Rename,
	}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the whole corpus. A missing file is ErrCorpusMissing and an
// unparseable one is ErrCorpusCorrupt.
func (s *Store) Load(_ context.Context) ([]domain.Document, error) {
	docs, err := s.read()
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Append re-reads the file, appends docs and atomically replaces it. The file
// lock keeps maintenance tools from interleaving their own writes.
func (s *Store) Append(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock corpus: %w", err)
	}
	if !locked {
		return domain.WrapError(domain.ErrTemporary, "lock corpus", fmt.Errorf("lock %s not acquired", s.lock.Path()))
	}
	defer func() {
		_ = s.lock.Unlock()
	}()

	current, err := s.read()
	if err != nil && !domain.IsKind(err, domain.ErrCorpusMissing) {
		return err
	}

	next := make([]domain.Document, 0, len(current)+len(docs))
	next = append(next, current...)
	next = append(next, docs...)
	return s.write(next)
}

// Create writes docs as a new corpus and fails if one already exists.
func (s *Store) Create(docs []domain.Document) error {
	if _, err := os.Stat(s.path); err == nil {
		return fmt.Errorf("corpus %s already exists", s.path)
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return s.write(docs)
}

func (s *Store) read() ([]domain.Document, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrCorpusMissing, "read corpus", err)
		}
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	var docs []domain.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, domain.WrapError(domain.ErrCorpusCorrupt, "decode corpus", err)
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

// write serializes docs to a sibling temp file and renames it over the
// corpus, so readers see either the old or the new array.
func (s *Store) write(docs []domain.Document) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(docs); err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create corpus dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := writeSynced(tmp, buf.Bytes()); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := s.rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace corpus: %w", err)
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp corpus: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write temp corpus: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync temp corpus: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp corpus: %w", err)
	}
	return nil
}
