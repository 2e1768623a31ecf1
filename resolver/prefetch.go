package resolver

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/byte4ever/imagepin/imageref"
)

// prefetch resolves every distinct tag found in trees with at most
// Parallelism lookups in flight, so the walk that follows only reads the
// table. Outcomes land in the table or the policy's failure memo.
func (d *Driver) prefetch(ctx context.Context, trees []*Node) {
	candidates := d.candidates(trees)
	if len(candidates) == 0 {
		return
	}

	d.cfg.Logger.Debug(
		"prefetching tags",
		"count", len(candidates),
		"parallelism", d.cfg.Parallelism,
	)

	var g errgroup.Group

	g.SetLimit(d.cfg.Parallelism)

	for _, s := range candidates {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			d.policy.ResolveString(ctx, s)

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never fail
}

// candidates returns one string per distinct tag not yet in the table, in
// walk order.
func (d *Driver) candidates(trees []*Node) []string {
	seen := make(map[string]struct{})

	var out []string

	collect := func(s string) string {
		tag, err := imageref.ParseTag(s, d.cfg.NameOptions...)
		if err != nil {
			return s
		}

		key := tag.String()
		if _, ok := seen[key]; ok {
			return s
		}

		seen[key] = struct{}{}

		if _, ok := d.cfg.Overrides.Lookup(tag); !ok {
			out = append(out, s)
		}

		return s
	}

	for _, tree := range trees {
		if tree != nil {
			Walk(*tree, collect, !d.cfg.SkipKeys)
		}
	}

	return out
}
