package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/types"
)

// DefaultPoolSize bounds connections per registry host.
const DefaultPoolSize = 8

// manifestLimit caps how much of a manifest body is read.
const manifestLimit = 100 << 20

var (
	// ErrManifestUnknown reports that a tag has no manifest under the
	// requested schema.
	ErrManifestUnknown = errors.New("manifest unknown")

	// ErrDigestMismatch reports a v2.2 manifest whose computed digest
	// disagrees with the Docker-Content-Digest the registry sent.
	ErrDigestMismatch = errors.New("manifest digest mismatch")
)

// Manifest is a fetched manifest and its canonical digest.
type Manifest struct {
	Schema    Schema
	MediaType types.MediaType
	Bytes     []byte
	Digest    v1.Hash
}

// Client issues manifest requests. Authenticated round trippers are cached
// per repository so the registry ping and token exchange happen once.
type Client struct {
	base http.RoundTripper

	mu      sync.Mutex
	perRepo map[string]http.RoundTripper
}

// NewTransport returns a pooled transport allowing poolSize connections per
// host. Non-positive sizes use DefaultPoolSize.
func NewTransport(poolSize int) http.RoundTripper {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	base, ok := remote.DefaultTransport.(*http.Transport)
	if !ok {
		base, _ = http.DefaultTransport.(*http.Transport)
	}

	tr := base.Clone()
	tr.MaxConnsPerHost = poolSize
	tr.MaxIdleConnsPerHost = poolSize

	return transport.NewUserAgent(tr, "imagepin")
}

// NewClient returns a client sending requests through rt.
func NewClient(rt http.RoundTripper) *Client {
	if rt == nil {
		rt = NewTransport(DefaultPoolSize)
	}

	return &Client{
		base:    rt,
		perRepo: make(map[string]http.RoundTripper),
	}
}

// ManifestExists reports whether tag has a manifest served under schema.
// A manifest served with a media type outside schema does not count.
func (c *Client) ManifestExists(
	ctx context.Context,
	tag name.Tag,
	schema Schema,
	auth authn.Authenticator,
) (bool, error) {
	const errCtx = "checking manifest"

	resp, err := c.do(ctx, http.MethodHead, tag, schema, auth)
	if err != nil {
		return false, fmt.Errorf(
			"%s %s (%s): %w", errCtx, tag, schema, err,
		)
	}
	defer resp.Body.Close() //nolint:errcheck // HEAD has no body

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	if err := transport.CheckError(resp, http.StatusOK); err != nil {
		return false, fmt.Errorf(
			"%s %s (%s): %w", errCtx, tag, schema, err,
		)
	}

	return schema.Accepts(resp.Header.Get("Content-Type")), nil
}

// FetchManifest downloads the manifest of tag under schema and computes its
// canonical digest with the schema's algorithm.
func (c *Client) FetchManifest(
	ctx context.Context,
	tag name.Tag,
	schema Schema,
	auth authn.Authenticator,
) (Manifest, error) {
	const errCtx = "fetching manifest"

	resp, err := c.do(ctx, http.MethodGet, tag, schema, auth)
	if err != nil {
		return Manifest{}, fmt.Errorf(
			"%s %s (%s): %w", errCtx, tag, schema, err,
		)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode == http.StatusNotFound {
		return Manifest{}, fmt.Errorf(
			"%s %s (%s): %w",
			errCtx, tag, schema, ErrManifestUnknown,
		)
	}

	if err := transport.CheckError(resp, http.StatusOK); err != nil {
		return Manifest{}, fmt.Errorf(
			"%s %s (%s): %w", errCtx, tag, schema, err,
		)
	}

	contentType := resp.Header.Get("Content-Type")
	if !schema.Accepts(contentType) {
		return Manifest{}, fmt.Errorf(
			"%s %s (%s): %w: served as %q",
			errCtx, tag, schema, ErrManifestUnknown, contentType,
		)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, manifestLimit))
	if err != nil {
		return Manifest{}, fmt.Errorf(
			"%s %s (%s): reading body: %w",
			errCtx, tag, schema, err,
		)
	}

	digest, err := schema.Digest(body)
	if err != nil {
		return Manifest{}, fmt.Errorf(
			"%s %s (%s): %w", errCtx, tag, schema, err,
		)
	}

	if served := resp.Header.Get("Docker-Content-Digest"); served != "" &&
		schema == SchemaV22 && served != digest.String() {
		return Manifest{}, fmt.Errorf(
			"%s %s (%s): %w: computed %s, registry sent %s",
			errCtx, tag, schema, ErrDigestMismatch, digest, served,
		)
	}

	mt, _, _ := strings.Cut(contentType, ";")

	return Manifest{
		Schema:    schema,
		MediaType: types.MediaType(strings.TrimSpace(mt)),
		Bytes:     body,
		Digest:    digest,
	}, nil
}

func (c *Client) do(
	ctx context.Context,
	method string,
	tag name.Tag,
	schema Schema,
	auth authn.Authenticator,
) (*http.Response, error) {
	rt, err := c.roundTripper(ctx, tag.Context(), auth)
	if err != nil {
		return nil, err
	}

	repo := tag.Context()
	u := url.URL{
		Scheme: repo.Registry.Scheme(),
		Host:   repo.RegistryStr(),
		Path: fmt.Sprintf(
			"/v2/%s/manifests/%s",
			repo.RepositoryStr(), tag.TagStr(),
		),
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", schema.acceptHeader())

	return (&http.Client{Transport: rt}).Do(req)
}

func (c *Client) roundTripper(
	ctx context.Context,
	repo name.Repository,
	auth authn.Authenticator,
) (http.RoundTripper, error) {
	key := repo.Name()

	c.mu.Lock()
	rt, ok := c.perRepo[key]
	c.mu.Unlock()

	if ok {
		return rt, nil
	}

	rt, err := transport.NewWithContext(
		ctx,
		repo.Registry,
		auth,
		c.base,
		[]string{repo.Scope(transport.PullScope)},
	)
	if err != nil {
		return nil, fmt.Errorf("authenticating to %s: %w", repo, err)
	}

	c.mu.Lock()
	c.perRepo[key] = rt
	c.mu.Unlock()

	return rt, nil
}
