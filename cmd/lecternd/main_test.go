package main

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/lectern/internal/answer"
)

func TestUnavailableGenerator(t *testing.T) {
	g := unavailableGenerator{err: answer.ErrMissingAPIKey}

	_, err := g.Generate(context.Background(), "any prompt")
	if !errors.Is(err, answer.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
