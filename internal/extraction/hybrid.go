package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

// DefaultModelTimeout bounds a single model extraction call.
const DefaultModelTimeout = 10 * time.Second

// StructuredExtractor runs the pattern extractor and falls back to the
// model when the pattern result is not good enough.
type StructuredExtractor struct {
	pattern *PatternExtractor
	model   ModelExtractor
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a StructuredExtractor.
type Option func(*StructuredExtractor)

// WithModelTimeout overrides DefaultModelTimeout.
func WithModelTimeout(d time.Duration) Option {
	return func(s *StructuredExtractor) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *StructuredExtractor) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStructuredExtractor creates a StructuredExtractor. model may be nil,
// in which case any fallback is reported as a failed model extraction.
func NewStructuredExtractor(model ModelExtractor, opts ...Option) *StructuredExtractor {
	s := &StructuredExtractor{
		pattern: NewPatternExtractor(),
		model:   model,
		timeout: DefaultModelTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract implements Extractor. It never fails: model errors are returned
// as Found=false with Error set.
func (s *StructuredExtractor) Extract(ctx context.Context, text string) Result {
	start := time.Now()
	res := s.extract(ctx, text)
	observeExtraction(res, time.Since(start))
	return res
}

func (s *StructuredExtractor) extract(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Confidence: ticket.ConfidenceLow, Method: MethodNone}
	}

	res := s.pattern.ExtractText(text)
	if res.Found && res.Confidence.AtLeastMedium() {
		return res
	}

	s.logger.Debug("pattern extraction insufficient, asking model",
		zap.Bool("found", res.Found),
		zap.String("confidence", string(res.Confidence)),
	)

	if s.model == nil {
		return modelFailure(ErrNoModel)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.model.ExtractBooking(ctx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("model extraction timed out after %s: %w", s.timeout, err)
		}
		s.logger.Warn("model extraction failed", zap.Error(err))
		return modelFailure(err)
	}

	llmRes := result(out.Booking, MethodLLM)
	llmRes.Found = out.Found && llmRes.Found
	llmRes.MultipleBookings = out.MultipleBookings
	return llmRes
}

func modelFailure(err error) Result {
	return Result{
		Confidence: ticket.ConfidenceLow,
		Method:     MethodLLM,
		Error:      err.Error(),
	}
}

var _ Extractor = (*StructuredExtractor)(nil)
var _ Extractor = (*PatternExtractor)(nil)
