package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/byte4ever/imagepin/metrics"
	"github.com/byte4ever/imagepin/overrides"
)

// documentDelimiter separates documents in both input and output.
const documentDelimiter = "---\n"

// DefaultParallelism is the number of concurrent live lookups.
const DefaultParallelism = 8

// Config holds the settings of one resolution run.
type Config struct {
	// Overrides is the run's tag table. A fresh, empty table is used when
	// nil.
	Overrides *overrides.Table

	// Resolver performs live lookups for tags missing from Overrides.
	Resolver TagResolver

	// Parallelism bounds concurrent live lookups. Values below 2 resolve
	// sequentially during the walk.
	Parallelism int

	// SkipKeys leaves mapping keys alone. By default keys are candidate
	// references like any other string.
	SkipKeys bool

	// NameOptions apply when parsing references, e.g. name.Insecure.
	NameOptions []name.Option

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics records resolution outcomes. May be nil.
	Metrics *metrics.Counters
}

// Driver resolves document streams. One Driver is one run: its table and
// failure memo are shared by every document it processes.
type Driver struct {
	cfg    Config
	policy *Policy
}

// NewDriver returns a driver for cfg.
func NewDriver(cfg Config) *Driver {
	if cfg.Overrides == nil {
		cfg.Overrides = overrides.New()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Driver{
		cfg:    cfg,
		policy: NewPolicy(cfg.Overrides, cfg.Resolver, cfg),
	}
}

// Process resolves every document of raw and rejoins them in order. Any
// unparseable document fails the whole call before anything is resolved.
func (d *Driver) Process(
	ctx context.Context,
	raw string,
) (string, error) {
	const errCtx = "processing documents"

	texts := splitDocuments(raw)
	trees := make([]*Node, len(texts))

	for idx, text := range texts {
		tree, err := parseDocument(text)
		if err != nil {
			return "", fmt.Errorf(
				"%s: document %d: %w: %w",
				errCtx, idx, ErrParseDocument, err,
			)
		}

		trees[idx] = tree
	}

	if d.cfg.Parallelism > 1 {
		d.prefetch(ctx, trees)
	}

	resolveFn := func(s string) string {
		return d.policy.ResolveString(ctx, s)
	}

	out := make([]string, len(texts))

	for idx, tree := range trees {
		if tree == nil {
			out[idx] = texts[idx]

			continue
		}

		resolved := Walk(*tree, resolveFn, !d.cfg.SkipKeys)

		buf, err := yaml.Marshal(resolved.Interface())
		if err != nil {
			return "", fmt.Errorf(
				"%s: document %d: marshaling: %w",
				errCtx, idx, err,
			)
		}

		out[idx] = string(buf)
	}

	return strings.Join(out, documentDelimiter), nil
}

// ResolveImages reads a multi-document YAML stream from in, resolves it
// with cfg and writes the result to out. Nothing is written when the input
// cannot be parsed.
func ResolveImages(
	ctx context.Context,
	in io.Reader,
	out io.Writer,
	cfg Config,
) error {
	const errCtx = "resolving images"

	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("%s: reading input: %w", errCtx, err)
	}

	resolved, err := NewDriver(cfg).Process(ctx, string(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if _, err := io.WriteString(out, resolved); err != nil {
		return fmt.Errorf("%s: writing output: %w", errCtx, err)
	}

	return nil
}

// splitDocuments splits raw on lines that are exactly "---". The number of
// parts is always one more than the number of delimiter lines.
func splitDocuments(raw string) []string {
	var (
		docs []string
		cur  strings.Builder
	)

	for _, line := range strings.SplitAfter(raw, "\n") {
		if line == documentDelimiter {
			docs = append(docs, cur.String())
			cur.Reset()

			continue
		}

		cur.WriteString(line)
	}

	return append(docs, cur.String())
}

// parseDocument decodes one document. Documents holding no value, such as
// empty or comment-only ones, yield a nil tree and are emitted verbatim. A
// chunk holding more than one document, e.g. behind a "--- " header the
// splitter does not cut on, is rejected.
func parseDocument(text string) (*Node, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	dec := yaml.NewDecoder(
		strings.NewReader(text), yaml.UseOrderedMap(),
	)

	var v interface{}

	err := dec.Decode(&v)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var extra interface{}
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, err
		}

		return nil, errMultipleDocuments
	}

	if v == nil {
		return nil, nil
	}

	tree := FromValue(v)

	return &tree, nil
}
