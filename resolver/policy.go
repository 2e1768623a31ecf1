package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/byte4ever/imagepin/imageref"
	"github.com/byte4ever/imagepin/metrics"
	"github.com/byte4ever/imagepin/overrides"
)

// Policy decides what a single string becomes. It is the only place
// resolution errors are dropped.
type Policy struct {
	table       *overrides.Table
	resolver    TagResolver
	nameOptions []name.Option
	logger      *slog.Logger
	metrics     *metrics.Counters

	// failed remembers tags whose live lookup failed in this run.
	failed sync.Map
}

// NewPolicy returns a policy reading and filling table and falling back to
// resolver for tags the table lacks.
func NewPolicy(
	table *overrides.Table,
	resolver TagResolver,
	cfg Config,
) *Policy {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Policy{
		table:       table,
		resolver:    resolver,
		nameOptions: cfg.NameOptions,
		logger:      logger,
		metrics:     cfg.Metrics,
	}
}

// ResolveString returns the digest reference for s when s is a tag
// reference that resolves, and s unchanged otherwise.
func (p *Policy) ResolveString(ctx context.Context, s string) string {
	resolved, err := p.resolve(ctx, s)
	if err != nil {
		if !errors.Is(err, imageref.ErrNotTag) {
			p.logger.Debug(
				"leaving reference unresolved",
				"ref", s,
				"error", err,
			)
		}

		return s
	}

	return resolved
}

func (p *Policy) resolve(ctx context.Context, s string) (string, error) {
	tag, err := imageref.ParseTag(s, p.nameOptions...)
	if err != nil {
		return "", err
	}

	if digest, ok := p.table.Lookup(tag); ok {
		if p.table.ContainsAsOverride(tag) {
			p.metrics.RecordResolution(metrics.OutcomeOverride)
		} else {
			p.metrics.RecordResolution(metrics.OutcomeCached)
		}

		return digest, nil
	}

	if prev, ok := p.failed.Load(tag.String()); ok {
		err, _ := prev.(error)

		return "", err
	}

	if p.resolver == nil {
		return "", errNoResolver
	}

	ref, err := p.resolver.Resolve(ctx, tag)
	if err != nil {
		p.failed.Store(tag.String(), err)
		p.metrics.RecordResolution(metrics.OutcomeFailed)

		return "", err
	}

	digest := ref.String()

	// Concurrent lookups of one tag are last-write-wins.
	p.table.Insert(tag, digest)
	p.metrics.RecordResolution(metrics.OutcomeLive)

	p.logger.Debug("resolved", "tag", tag.String(), "digest", digest)

	return digest, nil
}
