package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
	"complaint_server/pkg/apperr"
	"complaint_server/pkg/logger"
	"complaint_server/pkg/metrics"
	"complaint_server/pkg/resilience"
	"complaint_server/pkg/retry"
)

// Client classifies messages through a TextCompleter with bounded retries.
type Client struct {
	completer out.TextCompleter
	breaker   *resilience.Breaker
	limiter   *rate.Limiter
	newTimer  func() backoff.Timer
	metrics   *metrics.Pipeline
	log       zerolog.Logger
}

var _ out.Classifier = (*Client)(nil)

type ClientOption func(*Client)

// WithBreaker wraps every attempt in a circuit breaker.
func WithBreaker(b *resilience.Breaker) ClientOption {
	return func(c *Client) { c.breaker = b }
}

// WithLimiter paces attempts.
func WithLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithTimer replaces the wall-clock backoff timer. The factory is called
// once per Classify call.
func WithTimer(factory func() backoff.Timer) ClientOption {
	return func(c *Client) { c.newTimer = factory }
}

func WithMetrics(m *metrics.Pipeline) ClientOption {
	return func(c *Client) { c.metrics = m }
}

func NewClassificationClient(completer out.TextCompleter, opts ...ClientOption) *Client {
	c := &Client{
		completer: completer,
		log:       logger.Component("classifier"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify sends one request per attempt. Transport and server errors are
// retried up to req.MaxRetries total attempts; the delay before attempt n is
// req.BackoffMultiplier^(n-2) seconds. When every attempt fails the result
// is unclassified and the error is CLASSIFICATION_UNAVAILABLE.
func (c *Client) Classify(ctx context.Context, req out.ClassifyRequest) (domain.ClassificationResult, error) {
	start := time.Now()
	user := userPrompt(req.Subject, req.Sender, req.Body)

	policy := retry.Policy{
		MaxAttempts:     req.MaxRetries,
		InitialInterval: time.Second,
		MaxInterval:     time.Hour,
		Multiplier:      req.BackoffMultiplier,
	}

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}

	var raw string
	attempts, err := retry.Do(ctx, policy, timer, func(attempt int) error {
		text, err := c.attempt(ctx, req.Timeout, user)
		if err != nil {
			c.metrics.ClassificationAttempt("error")
			if isPermanent(err) || errors.Is(err, resilience.ErrCircuitOpen) || ctx.Err() != nil {
				return retry.Permanent(err)
			}
			return err
		}
		c.metrics.ClassificationAttempt("ok")
		raw = text
		return nil
	}, func(err error, next time.Duration) {
		c.log.Warn().Err(err).Dur("retry_in", next).Msg("classification attempt failed")
	})

	if err != nil {
		c.metrics.ObserveClassification(string(domain.ClassificationUnavailable), time.Since(start))
		c.log.Error().Err(err).Int("attempts", attempts).Msg("classification unavailable")
		return domain.Unclassified(domain.ClassificationUnavailable), apperr.ClassificationUnavailable(attempts, err)
	}

	result := ParseResponse(raw)
	c.metrics.ObserveClassification(string(result.Status), time.Since(start))
	return result, nil
}

func (c *Client) attempt(ctx context.Context, timeout time.Duration, user string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var text string
	call := func() error {
		var err error
		text, err = c.completer.Complete(callCtx, systemPrompt, user)
		return err
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	return text, err
}
