// Package recap turns a day of scoring activity into a short narrative
// written by the Anthropic API.
//
// The recap is a garnish, not a feature the engine depends on: nothing
// imports this package except the CLI, and construction fails fast
// when no API key is configured rather than degrading other commands.
package recap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fairwaylabs/caddie/internal/store"
)

// ErrNoAPIKey is returned by New when neither the config nor the
// environment carries an Anthropic API key.
var ErrNoAPIKey = errors.New("anthropic API key not configured")

// ErrNoActivity is returned by Generate when the digest has nothing to
// recap.
var ErrNoActivity = errors.New("no scoring activity to recap")

const systemPrompt = `You write short recaps of golf trip match play for the group chat.
Summarize the day in under 120 words: who is up, who closed a match out, anything dramatic.
In match lines, A and B refer to the first and second listed team; always use the team names instead.
No preamble, no sign-off.`

// Config holds the recap generator's settings.
type Config struct {
	// APIKey authenticates against the Anthropic API. Empty falls back
	// to the ANTHROPIC_API_KEY environment variable.
	APIKey string

	// Model is the model name to use.
	Model string

	// MaxTokens caps the response length.
	MaxTokens int64

	// Logger receives progress output.
	Logger *log.Logger
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() *Config {
	return &Config{
		Model:     string(anthropic.ModelClaudeSonnet4_0),
		MaxTokens: 512,
		Logger:    log.New(os.Stderr, "[recap] ", log.LstdFlags),
	}
}

// messageCreator is the single Anthropic call the generator makes,
// narrowed so tests can stand in for the API.
type messageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Generator builds day digests and asks the API for their narrative.
type Generator struct {
	db     *store.DB
	config *Config
	msgs   messageCreator
}

// New creates a recap generator. Returns ErrNoAPIKey when no key is
// configured.
func New(db *store.DB, config *Config) (*Generator, error) {
	if db == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	key := config.APIKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}

	client := anthropic.NewClient(option.WithAPIKey(key))
	return &Generator{db: db, config: config, msgs: &client.Messages}, nil
}

// Generate digests a trip's day and returns the model's narrative.
// An empty date covers the whole trip. Returns ErrNoActivity when
// there is nothing to tell.
func (g *Generator) Generate(ctx context.Context, tripID, date string) (string, error) {
	digest, err := BuildDigest(ctx, g.db, tripID, date)
	if err != nil {
		return "", err
	}
	if digest.Empty() {
		if date != "" {
			return "", fmt.Errorf("%w on %s", ErrNoActivity, date)
		}
		return "", ErrNoActivity
	}

	g.config.Logger.Printf("Recapping %s: %d matches, %d holes decided",
		digest.Trip.Name, len(digest.Matches), digest.Holes)

	msg, err := g.msgs.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.config.Model),
		MaxTokens: g.config.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(digest.PromptText())),
		},
	})
	if err != nil {
		return "", fmt.Errorf("recap request failed: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("recap response had no text")
	}
	return text, nil
}
