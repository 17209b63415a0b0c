package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/graphvec/internal/util"
	"github.com/OFFIS-RIT/graphvec/pkg/ai"
	"github.com/OFFIS-RIT/graphvec/pkg/logger"
)

const (
	DefaultMaxInputRunes = 400
	DefaultTimeout       = 2 * time.Minute
	DefaultMaxRetries    = 3
	DefaultMaxTokens     = 500
)

// LLMOracle asks a language model for entities and relations.
//
// A LLMOracle should be created using NewLLMOracle.
type LLMOracle struct {
	client     ai.GraphAIClient
	focus      []string
	maxInput   int
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	structured bool
	opts       []ai.GenerateOption
}

// NewLLMOracleParams configures a LLMOracle.
//
// Focus lists the entity categories named in the prompt. MaxInputRunes
// truncates the chunk text before it is sent. Structured asks the model for
// schema constrained output instead of free text JSON. Timeout applies to
// every single attempt.
type NewLLMOracleParams struct {
	Client ai.GraphAIClient

	Focus         []string
	MaxInputRunes int
	Structured    bool

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	Options []ai.GenerateOption
}

// NewLLMOracle creates an oracle backed by params.Client.
//
// Example:
//
//	oracle, err := extract.NewLLMOracle(extract.NewLLMOracleParams{
//		Client:     aiClient,
//		MaxRetries: 3,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewLLMOracle(params NewLLMOracleParams) (*LLMOracle, error) {
	if params.Client == nil {
		return nil, errors.New("ai client is nil")
	}
	if params.MaxInputRunes <= 0 {
		params.MaxInputRunes = DefaultMaxInputRunes
	}
	if params.Timeout <= 0 {
		params.Timeout = DefaultTimeout
	}
	if params.MaxRetries <= 0 {
		params.MaxRetries = DefaultMaxRetries
	}

	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(ai.ExtractSystemPrompt),
		ai.WithTemperature(0.1),
		ai.WithMaxTokens(DefaultMaxTokens),
	}
	opts = append(opts, params.Options...)

	return &LLMOracle{
		client:     params.Client,
		focus:      params.Focus,
		maxInput:   params.MaxInputRunes,
		timeout:    params.Timeout,
		maxRetries: params.MaxRetries,
		retryDelay: params.RetryDelay,
		structured: params.Structured,
		opts:       opts,
	}, nil
}

// Extract implements Oracle. Transport errors are retried, unparsable
// answers are not.
func (o *LLMOracle) Extract(ctx context.Context, text string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failure(fmt.Errorf("oracle panicked: %v", r))
		}
	}()

	prompt := ai.ExtractPrompt(util.TruncateRunes(text, o.maxInput), o.focus)

	res, err := util.RetryWithBackoff(ctx, o.maxRetries, o.retryDelay, func(ctx context.Context) (Outcome, error) {
		cCtx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		if o.structured {
			return o.extractStructured(cCtx, prompt)
		}
		return o.extractText(cCtx, prompt)
	})
	if err != nil {
		logger.Warn("[Extract] Extraction failed", "err", err)
		return Failure(err)
	}

	logger.Debug("[Extract] Extraction completed",
		"entities", len(res.Extraction.Entities),
		"relations", len(res.Extraction.Relations),
		"skipped", res.Skipped,
	)
	return res
}

func (o *LLMOracle) extractText(ctx context.Context, prompt string) (Outcome, error) {
	raw, err := o.client.GenerateCompletion(ctx, prompt, o.opts...)
	if err != nil {
		return Outcome{}, err
	}
	ex, skipped, err := Parse(raw)
	if err != nil {
		return Outcome{}, util.Permanent(err)
	}
	return Success(ex, skipped), nil
}

func (o *LLMOracle) extractStructured(ctx context.Context, prompt string) (Outcome, error) {
	var w wireExtraction
	err := o.client.GenerateCompletionWithFormat(
		ctx,
		"entity_extraction",
		"Entities and directed relations found in the text",
		prompt,
		&w,
		o.opts...,
	)
	if err != nil {
		return Outcome{}, err
	}
	ex, skipped := fromWire(w)
	return Success(ex, skipped), nil
}
