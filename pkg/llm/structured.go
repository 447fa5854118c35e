package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/trialworks/criteria-engine/pkg/retry"
)

// DefaultMaxCorrections is the number of corrective re-prompts attempted
// after the first schema-violating response.
const DefaultMaxCorrections = 2

// StructuredConfig tunes the structured generation protocol.
type StructuredConfig struct {
	// MaxCorrections is the number of additional attempts after a
	// schema-validation failure, each with a corrective re-prompt.
	MaxCorrections int
	// Backoff is the transient-error retry policy applied to every
	// individual generation call, independent of the correction counter.
	Backoff *retry.Config
}

// DefaultStructuredConfig returns the standard protocol settings.
func DefaultStructuredConfig() StructuredConfig {
	return StructuredConfig{
		MaxCorrections: DefaultMaxCorrections,
		Backoff:        retry.DefaultConfig(),
	}
}

// CorrectivePrompt rebuilds a user prompt after a schema-validation failure.
// It receives the original prompt and the validation error text and returns
// the next prompt to send.
type CorrectivePrompt func(originalPrompt, validationError string) string

// GenerateStructured runs the schema-validated generation protocol: call the
// generator, extract and decode JSON into T, and validate it. A response
// that parses but violates the schema triggers a corrective re-prompt
// embedding the violation text, up to cfg.MaxCorrections additional
// attempts. Transient API errors are retried with backoff inside each
// attempt and propagate unchanged when exhausted; only schema violations are
// wrapped as *SchemaValidationError.
//
// If *T implements Validate() error, it runs as part of schema validation.
func GenerateStructured[T any](
	ctx context.Context,
	gen Generator,
	cfg StructuredConfig,
	systemPrompt string,
	userPrompt string,
	corrective CorrectivePrompt,
	logger *zap.Logger,
) (T, error) {
	var zero T
	target := TypeName[T]()
	prompt := userPrompt

	var lastSchemaErr *SchemaValidationError

	for attempt := 0; attempt <= cfg.MaxCorrections; attempt++ {
		var response string
		err := retry.DoIfRetryable(ctx, cfg.Backoff, func() error {
			var genErr error
			response, genErr = gen.Generate(ctx, systemPrompt, prompt)
			return genErr
		})
		if err != nil {
			// Transient/API-level failure after backoff: propagate unchanged.
			return zero, err
		}

		result, parseErr := ParseJSONResponse[T](response)
		if parseErr == nil {
			if v, ok := any(&result).(interface{ Validate() error }); ok {
				parseErr = v.Validate()
			}
		}
		if parseErr == nil {
			return result, nil
		}

		lastSchemaErr = &SchemaValidationError{
			Target:  target,
			Message: parseErr.Error(),
			Cause:   parseErr,
		}

		if attempt < cfg.MaxCorrections {
			logger.Warn("schema validation failed, re-prompting with correction",
				zap.String("target", target),
				zap.Int("attempt", attempt+1),
				zap.Int("max_corrections", cfg.MaxCorrections),
				zap.String("violation", parseErr.Error()))
			prompt = corrective(userPrompt, parseErr.Error())
		}
	}

	logger.Error("schema validation retries exhausted",
		zap.String("target", target),
		zap.Int("attempts", cfg.MaxCorrections+1),
		zap.Error(lastSchemaErr))
	return zero, lastSchemaErr
}
