// Package knowledge holds the in-memory index bundle: the ordered document
// store with its lexical indexes, published as immutable snapshots, and the
// semantic index that shares the store's positions.
package knowledge

import (
	"math"
	"strings"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/normalize"
)

// minDelta is the smallest number of appended documents kept outside the
// shared base lexicon before the two are merged.
const minDelta = 64

// Snapshot is an immutable view of the document store and its lexical
// indexes. Readers may hold one for as long as they like; writers publish a
// new snapshot instead of mutating an existing one.
//
// The lexical indexes are split into a base shared by every snapshot since
// the last merge and a delta holding the documents appended after it. An
// append clones only the delta; the delta is merged into a fresh base once it
// outgrows the square root of the store, which keeps the cost of one append
// at O(sqrt(n)) amortized instead of O(n).
type Snapshot struct {
	// docs may share its backing array with older snapshots. Appends only
	// write past every published length.
	docs     []domain.Document
	base     *lexicon
	delta    *lexicon
	baseLen  int
	keywords int
}

// lexicon maps sources, topics, words and content hashes to store positions.
type lexicon struct {
	bySource map[string]int
	byTopic  map[string]int
	keywords map[string][]int
	hashes   map[string]struct{}
}

func newLexicon(size int) *lexicon {
	return &lexicon{
		bySource: make(map[string]int, size),
		byTopic:  make(map[string]int, size),
		keywords: make(map[string][]int),
		hashes:   make(map[string]struct{}, size),
	}
}

// clone copies the maps. Posting slices stay shared and are copied on their
// first append.
func (l *lexicon) clone() *lexicon {
	return &lexicon{
		bySource: cloneMap(l.bySource),
		byTopic:  cloneMap(l.byTopic),
		keywords: cloneMap(l.keywords),
		hashes:   cloneMap(l.hashes),
	}
}

// Build indexes docs from scratch in store order.
func Build(docs []domain.Document) *Snapshot {
	s := &Snapshot{
		docs:  make([]domain.Document, 0, len(docs)),
		base:  newLexicon(0),
		delta: newLexicon(len(docs)),
	}
	for _, doc := range docs {
		s.add(doc, nil)
	}
	s.merge()
	return s
}

// extend returns a new snapshot with docs appended. s itself is left
// untouched for concurrent readers. Callers must extend the latest snapshot
// only.
func (s *Snapshot) extend(docs []domain.Document) *Snapshot {
	next := &Snapshot{
		docs:     s.docs,
		base:     s.base,
		delta:    s.delta.clone(),
		baseLen:  s.baseLen,
		keywords: s.keywords,
	}
	owned := make(map[string]struct{})
	for _, doc := range docs {
		next.add(doc, owned)
	}
	if len(next.docs)-next.baseLen > deltaLimit(len(next.docs)) {
		next.merge()
	}
	return next
}

// add indexes doc into the delta. Posting lists of words missing from owned
// are shared with an older snapshot and get copied before the append; a nil
// owned means every list belongs to s.
func (s *Snapshot) add(doc domain.Document, owned map[string]struct{}) {
	pos := len(s.docs)
	s.docs = append(s.docs, doc)
	d := s.delta
	d.hashes[domain.ContentHash(doc.Text)] = struct{}{}

	if key := strings.ToLower(strings.TrimSpace(doc.Source)); key != "" {
		d.bySource[key] = pos
	}
	if topic := normalize.TopicFromSource(doc.Source); topic != "" {
		d.byTopic[topic] = pos
	}
	for _, word := range normalize.IndexWords(doc.Text) {
		postings, ok := d.keywords[word]
		if !ok {
			if _, inBase := s.base.keywords[word]; !inBase {
				s.keywords++
			}
		}
		if owned != nil {
			if _, mine := owned[word]; !mine {
				postings = postings[:len(postings):len(postings)]
				owned[word] = struct{}{}
			}
		}
		d.keywords[word] = append(postings, pos)
	}
}

// merge folds the delta into a new base.
func (s *Snapshot) merge() {
	if s.baseLen == 0 {
		s.base = s.delta
	} else {
		merged := s.base.clone()
		for k, pos := range s.delta.bySource {
			merged.bySource[k] = pos
		}
		for k, pos := range s.delta.byTopic {
			merged.byTopic[k] = pos
		}
		for k := range s.delta.hashes {
			merged.hashes[k] = struct{}{}
		}
		for word, newer := range s.delta.keywords {
			older := merged.keywords[word]
			merged.keywords[word] = append(older[:len(older):len(older)], newer...)
		}
		s.base = merged
	}
	s.delta = newLexicon(0)
	s.baseLen = len(s.docs)
}

func deltaLimit(n int) int {
	return max(minDelta, int(math.Sqrt(float64(n))))
}

func (s *Snapshot) Len() int {
	return len(s.docs)
}

// Document returns the document stored at pos.
func (s *Snapshot) Document(pos int) (domain.Document, bool) {
	if pos < 0 || pos >= len(s.docs) {
		return domain.Document{}, false
	}
	return s.docs[pos], true
}

// BySource looks a document up by its lowercased source tag.
func (s *Snapshot) BySource(source string) (domain.Document, bool) {
	key := strings.ToLower(strings.TrimSpace(source))
	if pos, ok := s.delta.bySource[key]; ok {
		return s.docs[pos], true
	}
	if pos, ok := s.base.bySource[key]; ok {
		return s.docs[pos], true
	}
	return domain.Document{}, false
}

// ByTopic looks a document up by its normalized topic.
func (s *Snapshot) ByTopic(topic string) (domain.Document, bool) {
	if pos, ok := s.delta.byTopic[topic]; ok {
		return s.docs[pos], true
	}
	if pos, ok := s.base.byTopic[topic]; ok {
		return s.docs[pos], true
	}
	return domain.Document{}, false
}

// Postings returns the ascending positions whose text contains word. The
// slice must not be modified.
func (s *Snapshot) Postings(word string) []int {
	older, newer := s.base.keywords[word], s.delta.keywords[word]
	switch {
	case len(newer) == 0:
		return older
	case len(older) == 0:
		return newer
	}
	out := make([]int, 0, len(older)+len(newer))
	out = append(out, older...)
	return append(out, newer...)
}

func (s *Snapshot) KeywordCount() int {
	return s.keywords
}

// Seen reports whether a document with the given content hash is stored.
func (s *Snapshot) Seen(hash string) bool {
	if _, ok := s.delta.hashes[hash]; ok {
		return true
	}
	_, ok := s.base.hashes[hash]
	return ok
}

// Texts returns the texts at the given positions, skipping unknown ones.
func (s *Snapshot) Texts(positions []int) []string {
	out := make([]string, 0, len(positions))
	for _, pos := range positions {
		if doc, ok := s.Document(pos); ok {
			out = append(out, doc.Text)
		}
	}
	return out
}

// Documents returns the store in order. The slice must not be modified.
func (s *Snapshot) Documents() []domain.Document {
	return s.docs[:len(s.docs):len(s.docs)]
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
