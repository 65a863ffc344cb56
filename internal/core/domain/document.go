package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Document is one corpus entry. It is never mutated once stored.
type Document struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Valid reports whether the document carries both text and a source tag.
func (d Document) Valid() bool {
	return strings.TrimSpace(d.Text) != "" && strings.TrimSpace(d.Source) != ""
}

// ContentHash identifies a document by the SHA-256 of its trimmed text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// LiveHit is a hydrated document returned by a live provider together with
// the score and label the provider assigns to it.
type LiveHit struct {
	Document   Document
	Score      float64
	Method     Method
	Confidence Confidence
}

// Neighbor is one semantic index candidate.
type Neighbor struct {
	Position int
	Score    float64
}

// Interaction is one answered question, kept for offline analysis.
type Interaction struct {
	Question       string
	Method         Method
	Source         string
	Score          float64
	IsFallback     bool
	ResponseTimeMS int64
}
