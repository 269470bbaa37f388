package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/classifier"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/extractor"
	"github.com/groupwatch/group-indexer/internal/fingerprint"
	"github.com/groupwatch/group-indexer/internal/logger"
	"github.com/groupwatch/group-indexer/internal/reconciler"
	"github.com/groupwatch/group-indexer/internal/sanitizer"
	"github.com/groupwatch/group-indexer/internal/store"
	"github.com/groupwatch/group-indexer/internal/types"
)

const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 50 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
)

// Config holds the retry settings of the pipeline
type Config struct {
	// MaxAttempts bounds the read-decide-write attempts per observation
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Result summarizes how one observation changed the stored state
type Result struct {
	GroupID        string                     `json:"group_id"`
	Action         reconciler.Action          `json:"action"`
	ContentVersion uint32                     `json:"content_version"`
	ContentChanged bool                       `json:"content_changed"`
	SeenCount      uint64                     `json:"seen_count"`
	Hints          domain.ClassificationHints `json:"classification_hints"`
	Tags           []string                   `json:"tags"`
	Attempts       int                        `json:"attempts"`
}

// Processor turns observations into stored group records
//
//go:generate mockgen -source=pipeline.go -destination=../mocks/pipeline.go -package=mocks -mock_names=Processor=MockProcessor
type Processor interface {
	// Process runs one observation through the pipeline.
	// Returns domain.ErrNoIdentifierFound when no group id can be found and
	// domain.ErrStorageUnavailable when the backend fails; nothing is persisted in either case.
	Process(ctx context.Context, obs domain.Observation) (*Result, error)
}

type pipeline struct {
	cfg        Config
	sanitizer  sanitizer.Sanitizer
	extractor  extractor.Extractor
	classifier classifier.Classifier
	gateway    store.Gateway
	clock      adapter.Clock
	locks      *keyedMutex
}

// New creates a pipeline writing through gateway. When gateway also implements
// store.Transactor the latest and history writes commit atomically.
func New(
	cfg Config,
	s sanitizer.Sanitizer,
	e extractor.Extractor,
	c classifier.Classifier,
	gateway store.Gateway,
	clock adapter.Clock,
) Processor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}

	return &pipeline{
		cfg:        cfg,
		sanitizer:  s,
		extractor:  e,
		classifier: c,
		gateway:    gateway,
		clock:      clock,
		locks:      newKeyedMutex(),
	}
}

// Process runs one observation through sanitize, extract, fingerprint, classify and reconcile
func (p *pipeline) Process(ctx context.Context, obs domain.Observation) (*Result, error) {
	content := p.sanitizer.Sanitize(obs.RawText)

	groupID, err := p.extractor.Extract(content, obs.EventGroupID)
	if err != nil {
		return nil, err
	}

	observedAt := obs.Timestamp
	if observedAt.IsZero() {
		observedAt = p.clock.Now()
	}

	candidate := reconciler.Candidate{
		GroupID:        groupID,
		Content:        content,
		ContentHash:    fingerprint.Compute(content),
		Classification: p.classifier.Classify(content),
		Source:         obs.Source,
		BatchID:        obs.BatchID,
		// Millisecond precision survives every backend
		ObservedAt: observedAt.UTC().Truncate(time.Millisecond),
	}

	unlock := p.locks.Lock(groupID)
	defer unlock()

	var (
		decision reconciler.Decision
		attempts int
	)
	operation := func() error {
		attempts++
		d, err := p.apply(ctx, candidate)
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		decision = d
		return nil
	}

	notifyOnError := func(err error, next time.Duration) {
		logger.DebugCtx(ctx, "Concurrent write detected, retrying",
			zap.Error(err),
			zap.String("group_id", groupID),
			zap.Int("attempt", attempts),
			zap.Duration("next_retry_in", next),
		)
	}

	if err := backoff.RetryNotify(operation, p.newBackOff(ctx), notifyOnError); err != nil {
		if isRetryable(err) {
			return nil, fmt.Errorf("failed to reconcile group %s after %d attempts: %w", groupID, attempts, err)
		}
		return nil, err
	}

	result := &Result{
		GroupID:        groupID,
		Action:         decision.Action,
		ContentVersion: decision.Record.ContentVersion,
		ContentChanged: decision.History != nil,
		SeenCount:      decision.Record.SeenCount,
		Hints:          decision.Record.ClassificationHints,
		Tags:           decision.Record.Tags,
		Attempts:       attempts,
	}

	logger.InfoCtx(ctx, "Processed group announcement",
		zap.String("group_id", groupID),
		zap.String("action", string(result.Action)),
		zap.Uint32("content_version", result.ContentVersion),
		zap.Bool("content_changed", result.ContentChanged),
		zap.String("group_type", string(result.Hints.GroupType)),
		zap.String("worldview", string(result.Hints.Worldview)),
		zap.Strings("tags", result.Tags),
		zap.String("source", obs.Source),
		zap.String("excerpt", types.Excerpt(content, 50)),
	)

	return result, nil
}

func (p *pipeline) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	b.MaxInterval = p.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5

	//nolint:gosec,G115
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.MaxAttempts-1)), ctx)
}

// apply performs one read-decide-write round
func (p *pipeline) apply(ctx context.Context, candidate reconciler.Candidate) (reconciler.Decision, error) {
	existing, err := p.gateway.GetLatest(ctx, candidate.GroupID)
	if err != nil {
		return reconciler.Decision{}, err
	}

	decision := reconciler.Reconcile(existing, candidate)

	write := func(gw store.Gateway) error {
		if err := gw.UpsertLatest(ctx, &decision.Record, decision.ExpectedSeenCount); err != nil {
			return err
		}
		if decision.History != nil {
			return gw.AppendHistory(ctx, decision.History)
		}
		return nil
	}

	if tx, ok := p.gateway.(store.Transactor); ok {
		err = tx.RunInTx(ctx, write)
	} else {
		err = write(p.gateway)
	}
	if err != nil {
		return reconciler.Decision{}, err
	}
	return decision, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrDuplicateVersion)
}
