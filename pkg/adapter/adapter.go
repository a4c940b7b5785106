// Package adapter wraps external language model providers behind a
// minimal chat-completion interface.
package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-kurata/intake/pkg/model"
)

// ChatModel is the chat-completion surface the generation layer needs
// from any provider: one system instruction, the role-tagged transcript,
// one text result.
type ChatModel interface {
	Complete(ctx context.Context, system string, turns []model.Turn) (string, error)
}

// ErrEmptyCompletion is returned when a provider answers with no usable
// completion text.
var ErrEmptyCompletion = goerr.New("empty completion from provider")
