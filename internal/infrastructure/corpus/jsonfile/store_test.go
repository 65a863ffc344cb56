package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
)

func newStore(t *testing.T, docs []domain.Document) *Store {
	t.Helper()
	store := New(filepath.Join(t.TempDir(), "knowledge.json"))
	if docs != nil {
		if err := store.Create(docs); err != nil {
			t.Fatalf("create corpus: %v", err)
		}
	}
	return store
}

func TestLoadMissingCorpus(t *testing.T) {
	store := newStore(t, nil)
	_, err := store.Load(context.Background())
	if !domain.IsKind(err, domain.ErrCorpusMissing) {
		t.Fatalf("expected ErrCorpusMissing, got %v", err)
	}
}

func TestLoadCorruptCorpus(t *testing.T) {
	store := newStore(t, nil)
	if err := os.WriteFile(store.Path(), []byte(`[{"text": "unterminated"`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := store.Load(context.Background())
	if !domain.IsKind(err, domain.ErrCorpusCorrupt) {
		t.Fatalf("expected ErrCorpusCorrupt, got %v", err)
	}
}

func TestAppendPreservesOrderAndLeavesNoTempFile(t *testing.T) {
	store := newStore(t, []domain.Document{{Text: "first", Source: "a"}})

	if err := store.Append(context.Background(), []domain.Document{
		{Text: "second <b>", Source: "b"},
		{Text: "third", Source: "c"},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	docs, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(docs) != 3 || docs[0].Text != "first" || docs[1].Text != "second <b>" || docs[2].Source != "c" {
		t.Fatalf("unexpected corpus %+v", docs)
	}
	if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected no temp file after a successful write, stat err=%v", err)
	}
}

func TestAppendCreatesMissingCorpus(t *testing.T) {
	store := newStore(t, nil)
	if err := store.Append(context.Background(), []domain.Document{{Text: "only", Source: "x"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	docs, err := store.Load(context.Background())
	if err != nil || len(docs) != 1 {
		t.Fatalf("expected one document, got %v err=%v", docs, err)
	}
}

func TestAppendRefusesToOverwriteCorruptCorpus(t *testing.T) {
	store := newStore(t, nil)
	if err := os.WriteFile(store.Path(), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := store.Append(context.Background(), []domain.Document{{Text: "x", Source: "y"}})
	if !domain.IsKind(err, domain.ErrCorpusCorrupt) {
		t.Fatalf("expected ErrCorpusCorrupt, got %v", err)
	}
	raw, _ := os.ReadFile(store.Path())
	if string(raw) != "not json" {
		t.Fatalf("corrupt corpus was overwritten: %q", raw)
	}
}

func TestInterruptedWriteKeepsPreviousCorpus(t *testing.T) {
	original := []domain.Document{{Text: "kept", Source: "a"}}
	store := newStore(t, original)
	store.rename = func(string, string) error {
		return errors.New("power loss")
	}

	if err := store.Append(context.Background(), []domain.Document{{Text: "lost", Source: "b"}}); err == nil {
		t.Fatalf("expected append to fail")
	}

	raw, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read corpus: %v", err)
	}
	var docs []domain.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		t.Fatalf("corpus must stay parseable: %v", err)
	}
	if len(docs) != 1 || docs[0] != original[0] {
		t.Fatalf("expected original corpus, got %+v", docs)
	}
	if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file cleaned up, stat err=%v", err)
	}
}

func TestStaleTempFileDoesNotAffectLoad(t *testing.T) {
	store := newStore(t, []domain.Document{{Text: "kept", Source: "a"}})
	if err := os.WriteFile(store.Path()+".tmp", []byte(`[{"text":"half`), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	docs, err := store.Load(context.Background())
	if err != nil || len(docs) != 1 {
		t.Fatalf("expected original corpus, got %v err=%v", docs, err)
	}
	if err := store.Append(context.Background(), []domain.Document{{Text: "next", Source: "b"}}); err != nil {
		t.Fatalf("append over stale temp file: %v", err)
	}
	docs, _ = store.Load(context.Background())
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
}
