// Package invoker runs model calls under a timeout, retry, rate limit and circuit breaker policy.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/metrics"
	"github.com/mikey/llm-reply-drafter/internal/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxBackoff = 10 * time.Second

// Options tunes the call policy
type Options struct {
	Timeout        time.Duration
	MaxRetries     int
	Backoff        time.Duration
	MaxInputTokens int
	CharsPerToken  int
	RateLimit      float64
	RateBurst      int
}

// Invoker wraps one LLM client with the call policy. It is safe for concurrent use.
type Invoker struct {
	client   core.LLMClient
	provider string
	opts     Options
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	text     *utils.TextProcessor
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates an invoker for the client of a provider
func New(client core.LLMClient, provider string, opts Options, text *utils.TextProcessor, m *metrics.Metrics, logger *zap.Logger) *Invoker {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// only provider outages count against the breaker
		IsSuccessful: func(err error) bool {
			var pe *core.ProviderError
			if errors.As(err, &pe) {
				return !pe.Retryable()
			}
			return !errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Invoker{
		client:   client,
		provider: provider,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  breaker,
		text:     text,
		metrics:  m,
		logger:   logger,
	}
}

// Model returns the model name of the wrapped client
func (i *Invoker) Model() string {
	return i.client.Model()
}

// Invoke truncates the prompt to the input budget and runs the call. Transient failures are retried
// up to MaxRetries times; a JSON contract failure is retried at most once.
func (i *Invoker) Invoke(ctx context.Context, call core.ModelCall) error {
	prompt := i.text.ProcessText(call.Prompt, i.opts.MaxInputTokens, i.opts.CharsPerToken)
	if len(prompt) < len(call.Prompt) {
		i.logger.Info("Prompt truncated to model input budget",
			zap.String("stage", call.Stage),
			zap.Int("original_chars", len(call.Prompt)),
			zap.Int("truncated_chars", len(prompt)),
			zap.Int("estimated_tokens", utils.EstimateTokens(call.Prompt, i.opts.CharsPerToken)),
			zap.Int("max_input_tokens", i.opts.MaxInputTokens))
	}

	transient, contractRetried := 0, false
	for attempt := 0; ; attempt++ {
		err := i.attempt(ctx, call, prompt)
		if err == nil {
			i.metrics.ModelCallsTotal.WithLabelValues(call.Stage, "ok").Inc()
			return nil
		}
		i.metrics.ModelCallsTotal.WithLabelValues(call.Stage, outcome(err)).Inc()

		if ctx.Err() != nil || !core.Retryable(err) {
			return err
		}
		var ce *core.JSONContractError
		if errors.As(err, &ce) {
			if contractRetried {
				return err
			}
			contractRetried = true
		} else {
			if transient >= i.opts.MaxRetries {
				return err
			}
			transient++
		}

		i.metrics.ModelRetries.WithLabelValues(call.Stage).Inc()
		backoff := i.backoff(attempt)
		i.logger.Warn("Retrying model call",
			zap.String("stage", call.Stage),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		}
	}
}

type result struct {
	text string
	err  error
}

// attempt runs one bounded call. The deadline is enforced here even if the client ignores ctx.
func (i *Invoker) attempt(ctx context.Context, call core.ModelCall, prompt string) error {
	if err := i.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", call.Stage, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, i.opts.Timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		out, err := i.breaker.Execute(func() (interface{}, error) {
			return i.client.Generate(callCtx, prompt, call.Options)
		})
		text, _ := out.(string)
		done <- result{text: text, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = result{err: callCtx.Err()}
	}

	if res.err != nil {
		switch {
		case errors.Is(res.err, gobreaker.ErrOpenState), errors.Is(res.err, gobreaker.ErrTooManyRequests):
			return &core.ProviderError{Provider: i.provider, Kind: core.ProviderConnectionFailed, Err: res.err}
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return &core.TimeoutError{Stage: call.Stage, Timeout: i.opts.Timeout}
		}
		return fmt.Errorf("%s: %w", call.Stage, res.err)
	}

	if call.Parse == nil {
		return nil
	}
	return call.Parse(res.text)
}

func (i *Invoker) backoff(attempt int) time.Duration {
	if i.opts.Backoff <= 0 {
		return 0
	}
	d := i.opts.Backoff << attempt
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

func outcome(err error) string {
	var (
		pe *core.ProviderError
		te *core.TimeoutError
		ce *core.JSONContractError
	)
	switch {
	case errors.As(err, &te):
		return "timeout"
	case errors.As(err, &ce):
		return "contract"
	case errors.As(err, &pe):
		return string(pe.Kind)
	}
	return "error"
}
