package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/byte4ever/imagepin/digester"
	"github.com/byte4ever/imagepin/imageref"
	"github.com/byte4ever/imagepin/metrics"
	"github.com/byte4ever/imagepin/registry"
)

// TagResolver resolves a tag reference to the digest reference it
// currently points at.
type TagResolver interface {
	Resolve(
		ctx context.Context,
		tag imageref.TagReference,
	) (imageref.DigestReference, error)
}

// ManifestClient is the registry manifest API the DigestResolver needs.
type ManifestClient interface {
	ManifestExists(
		ctx context.Context,
		tag name.Tag,
		schema registry.Schema,
		auth authn.Authenticator,
	) (bool, error)
	FetchManifest(
		ctx context.Context,
		tag name.Tag,
		schema registry.Schema,
		auth authn.Authenticator,
	) (registry.Manifest, error)
}

// DigestResolver looks tags up in their registry, newest schema first.
type DigestResolver struct {
	keychain authn.Keychain
	client   ManifestClient
	metrics  *metrics.Counters
}

// NewDigestResolver returns a resolver obtaining credentials from keychain
// and manifests from client. counters may be nil.
func NewDigestResolver(
	keychain authn.Keychain,
	client ManifestClient,
	counters *metrics.Counters,
) *DigestResolver {
	return &DigestResolver{
		keychain: keychain,
		client:   client,
		metrics:  counters,
	}
}

// Resolve fetches the manifest of tag under schema v2.2, falling back to
// schema v2 when v2.2 has none, and returns the repository pinned to its
// digest. Exactly two attempts are made; there are no retries.
func (r *DigestResolver) Resolve(
	ctx context.Context,
	tag imageref.TagReference,
) (imageref.DigestReference, error) {
	const errCtx = "resolving digest"

	ref := tag.Name()

	auth, err := r.keychain.Resolve(ref.Context())
	if err != nil {
		return imageref.DigestReference{}, fmt.Errorf(
			"%s %s: %w: %w", errCtx, tag, ErrCredentials, err,
		)
	}

	for _, schema := range registry.Schemas {
		ok, err := r.client.ManifestExists(ctx, ref, schema, auth)
		if err != nil {
			return imageref.DigestReference{}, fmt.Errorf(
				"%s %s: %w: %w", errCtx, tag, ErrNetwork, err,
			)
		}

		if !ok {
			continue
		}

		mf, err := r.client.FetchManifest(ctx, ref, schema, auth)
		if err != nil {
			return imageref.DigestReference{}, fmt.Errorf(
				"%s %s: %w: %w", errCtx, tag, classify(err), err,
			)
		}

		r.metrics.RecordFetch(schema.String())

		digest, err := imageref.NewDigestReference(
			tag.AsRepository(), mf.Digest.String(),
		)
		if err != nil {
			return imageref.DigestReference{}, fmt.Errorf(
				"%s %s: %w: %w", errCtx, tag, ErrManifestParse, err,
			)
		}

		return digest, nil
	}

	return imageref.DigestReference{}, fmt.Errorf(
		"%s %s: %w", errCtx, tag, ErrSchemaNotFound,
	)
}

func classify(err error) error {
	switch {
	case errors.Is(err, digester.ErrMalformedManifest),
		errors.Is(err, registry.ErrDigestMismatch):
		return ErrManifestParse
	case errors.Is(err, registry.ErrManifestUnknown):
		return ErrSchemaNotFound
	default:
		return ErrNetwork
	}
}
