package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestPointIDIsDeterministicPerChunk(t *testing.T) {
	if PointID("doc", 0) != PointID("doc", 0) {
		t.Fatalf("expected stable point id")
	}
	if PointID("doc", 0) == PointID("doc", 1) {
		t.Fatalf("expected distinct ids per chunk index")
	}
	if PointID("doc_1", 0) == PointID("doc", 10) {
		t.Fatalf("expected distinct ids for distinct keys")
	}
}

func TestCodePrefersCircuitOpenOverOuterKind(t *testing.T) {
	inner := WrapError(ErrCircuitOpen, "embed", errors.New("open"))
	outer := WrapError(ErrDocumentQA, "answer", inner)

	if got := Code(outer); got != "CIRCUIT_OPEN" {
		t.Fatalf("expected CIRCUIT_OPEN, got %s", got)
	}
	if !IsKind(outer, ErrDocumentQA) {
		t.Fatalf("expected outer kind to stay visible")
	}
}

func TestCodeDefaults(t *testing.T) {
	if Code(nil) != "" {
		t.Fatalf("expected empty code for nil")
	}
	if got := Code(fmt.Errorf("plain: %w", errors.New("x"))); got != "INTERNAL" {
		t.Fatalf("expected INTERNAL, got %s", got)
	}
	if got := Code(WrapError(ErrEmptyDocument, "chunk", errors.New("blank"))); got != "EMPTY_DOCUMENT" {
		t.Fatalf("expected EMPTY_DOCUMENT, got %s", got)
	}
}
