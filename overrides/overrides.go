package overrides

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	gocache "github.com/patrickmn/go-cache"

	"github.com/byte4ever/imagepin/imageref"
)

// ErrMalformedOverride reports an override argument that is not a valid
// "tag=digest" pair.
var ErrMalformedOverride = errors.New("malformed override")

// Override is one parsed "tag=digest" pair.
type Override struct {
	Tag    imageref.TagReference
	Digest imageref.DigestReference
}

// ParseOverride parses arg as "tag=digest". The left side must be a tag
// reference and the right side a digest reference.
func ParseOverride(
	arg string,
	opts ...name.Option,
) (Override, error) {
	const errCtx = "parsing override"

	if strings.Count(arg, "=") != 1 {
		return Override{}, fmt.Errorf(
			"%s: %w: %q must be tag=digest",
			errCtx, ErrMalformedOverride, arg,
		)
	}

	left, right, _ := strings.Cut(arg, "=")

	tag, err := imageref.ParseTag(
		strings.TrimSpace(left), opts...,
	)
	if err != nil {
		return Override{}, fmt.Errorf(
			"%s: %w: tag %q: %w",
			errCtx, ErrMalformedOverride, left, err,
		)
	}

	digest, err := imageref.ParseDigest(
		strings.TrimSpace(right), opts...,
	)
	if err != nil {
		return Override{}, fmt.Errorf(
			"%s: %w: digest %q: %w",
			errCtx, ErrMalformedOverride, right, err,
		)
	}

	return Override{Tag: tag, Digest: digest}, nil
}

type entry struct {
	digest   string
	override bool
}

// Table maps tag references to digest reference strings. It is safe for
// concurrent use. Concurrent inserts of different digests for one tag are
// last-write-wins.
type Table struct {
	entries *gocache.Cache
}

// New returns an empty table.
func New() *Table {
	return &Table{
		entries: gocache.New(gocache.NoExpiration, 0),
	}
}

// Seed parses every argument and records it as a static override. Nothing is
// recorded when any argument is malformed.
func (t *Table) Seed(
	args []string,
	opts ...name.Option,
) error {
	const errCtx = "seeding overrides"

	parsed := make([]Override, 0, len(args))

	for _, arg := range args {
		ov, err := ParseOverride(arg, opts...)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		parsed = append(parsed, ov)
	}

	for _, ov := range parsed {
		t.entries.Set(
			ov.Tag.String(),
			entry{digest: ov.Digest.String(), override: true},
			gocache.NoExpiration,
		)
	}

	return nil
}

// Lookup returns the digest reference string recorded for tag.
func (t *Table) Lookup(
	tag imageref.TagReference,
) (string, bool) {
	e, ok := t.get(tag)
	if !ok {
		return "", false
	}

	return e.digest, true
}

// Insert records digest for tag. Inserting the digest already recorded is a
// no-op; a different digest replaces the previous one.
func (t *Table) Insert(
	tag imageref.TagReference,
	digest string,
) {
	key := tag.String()
	fresh := entry{digest: digest}

	if err := t.entries.Add(
		key, fresh, gocache.NoExpiration,
	); err == nil {
		return
	}

	if cur, ok := t.get(tag); ok && cur.digest == digest {
		return
	}

	t.entries.Set(key, fresh, gocache.NoExpiration)
}

// ContainsAsOverride reports whether tag was seeded as a static override,
// as opposed to memoized from a live resolution.
func (t *Table) ContainsAsOverride(
	tag imageref.TagReference,
) bool {
	e, ok := t.get(tag)

	return ok && e.override
}

// Len returns the number of recorded tags.
func (t *Table) Len() int {
	return t.entries.ItemCount()
}

func (t *Table) get(
	tag imageref.TagReference,
) (entry, bool) {
	v, ok := t.entries.Get(tag.String())
	if !ok {
		return entry{}, false
	}

	e, ok := v.(entry)

	return e, ok
}
