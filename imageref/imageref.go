package imageref

import (
	"errors"
	"fmt"
	"strings"

	"github.com/distribution/reference"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
)

// ErrNotTag reports that a string is not a tag reference. It is a
// classification outcome, not a failure.
var ErrNotTag = errors.New("not a tag reference")

// ErrInvalidDigest reports a malformed digest reference.
var ErrInvalidDigest = errors.New("invalid digest reference")

// TagReference is a validated repository and tag. Two references are equal
// when their normalized String forms are equal; use String as a map key.
type TagReference struct {
	tag name.Tag
}

// ParseTag classifies s as a tag reference. The accepted grammar is
// [registry-host[:port]/]path[:tag] with lowercase path components; a
// missing tag means "latest". References carrying a digest are rejected.
func ParseTag(
	s string,
	opts ...name.Option,
) (TagReference, error) {
	if strings.Contains(s, "@") {
		return TagReference{}, fmt.Errorf(
			"%w: %q carries a digest", ErrNotTag, s,
		)
	}

	named, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return TagReference{}, fmt.Errorf(
			"%w: %w", ErrNotTag, err,
		)
	}

	if _, ok := named.(reference.Digested); ok {
		return TagReference{}, fmt.Errorf(
			"%w: %q carries a digest", ErrNotTag, s,
		)
	}

	tag, err := name.NewTag(s, opts...)
	if err != nil {
		return TagReference{}, fmt.Errorf(
			"%w: %w", ErrNotTag, err,
		)
	}

	return TagReference{tag: tag}, nil
}

// Repository returns the normalized repository, registry host included.
func (r TagReference) Repository() string {
	return r.tag.Context().Name()
}

// AsRepository returns the repository portion without the tag. It is the
// repository half of the digest reference a tag resolves to.
func (r TagReference) AsRepository() string {
	return r.Repository()
}

// Tag returns the tag, "latest" when none was given.
func (r TagReference) Tag() string {
	return r.tag.TagStr()
}

// Name exposes the underlying registry name for transport use.
func (r TagReference) Name() name.Tag {
	return r.tag
}

// Equal reports whether both references name the same repository and tag.
func (r TagReference) Equal(o TagReference) bool {
	return r.String() == o.String()
}

// String returns the normalized "repository:tag" form.
func (r TagReference) String() string {
	return r.Repository() + ":" + r.Tag()
}

// DigestReference is a repository pinned to a manifest digest.
type DigestReference struct {
	repository string
	digest     v1.Hash
}

// NewDigestReference builds a digest reference from a repository and an
// algorithm-prefixed digest such as "sha256:<hex>".
func NewDigestReference(
	repository string,
	digest string,
) (DigestReference, error) {
	const errCtx = "building digest reference"

	if repository == "" {
		return DigestReference{}, fmt.Errorf(
			"%s: %w: empty repository",
			errCtx, ErrInvalidDigest,
		)
	}

	h, err := v1.NewHash(digest)
	if err != nil {
		return DigestReference{}, fmt.Errorf(
			"%s: %w: %w", errCtx, ErrInvalidDigest, err,
		)
	}

	return DigestReference{repository: repository, digest: h}, nil
}

// ParseDigest parses "repository@digest". The repository keeps the spelling
// it was given so overrides are emitted exactly as written.
func ParseDigest(
	s string,
	opts ...name.Option,
) (DigestReference, error) {
	const errCtx = "parsing digest reference"

	d, err := name.NewDigest(s, opts...)
	if err != nil {
		return DigestReference{}, fmt.Errorf(
			"%s: %w: %w", errCtx, ErrInvalidDigest, err,
		)
	}

	repo, _, _ := strings.Cut(s, "@")

	return NewDigestReference(repo, d.DigestStr())
}

// Repository returns the repository portion.
func (d DigestReference) Repository() string {
	return d.repository
}

// Digest returns the algorithm-prefixed content hash.
func (d DigestReference) Digest() string {
	return d.digest.String()
}

// String returns "repository@digest".
func (d DigestReference) String() string {
	return d.repository + "@" + d.digest.String()
}
