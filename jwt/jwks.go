package jwt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/authtoken/keyring"
	"github.com/effective-security/xlog"
	jose "github.com/go-jose/go-jose/v3"
)

// KeySet provides verification keys from a JSON Web Key Set
type KeySet interface {
	// Keys returns the keys in the order of the set
	Keys(ctx context.Context) ([]jose.JSONWebKey, error)
}

// ParseJWKS returns the keys of a JWKS document
func ParseJWKS(data []byte) ([]jose.JSONWebKey, error) {
	var keySet jose.JSONWebKeySet
	if err := json.Unmarshal(data, &keySet); err != nil {
		return nil, errors.WithMessage(err, "failed to decode keys")
	}
	return keySet.Keys, nil
}

// StaticKeySet is a KeySet with a fixed list of keys
type StaticKeySet struct {
	KeySet []jose.JSONWebKey
}

// Keys implements KeySet
func (s *StaticKeySet) Keys(_ context.Context) ([]jose.JSONWebKey, error) {
	return s.KeySet, nil
}

// KeySetSource returns a lazy key source over the key set:
// the key at position i of the set is the public key at index i.
func KeySetSource(ctx context.Context, ks KeySet) keyring.Source[any] {
	return keyring.Lazy(func() (keyring.Source[any], error) {
		keys, err := ks.Keys(ctx)
		if err != nil {
			return keyring.None[any](), err
		}
		list := make([]any, 0, len(keys))
		for i := range keys {
			list = append(list, &keys[i])
		}
		return keyring.List(list...), nil
	})
}

// NewRemoteKeySet returns a KeySet that fetches JSON Web Key Set
// hosted at a remote URL.
//
// The returned KeySet is a long lived object that caches keys after the
// first successful fetch. Use Refresh to pick up rotated keys.
func NewRemoteKeySet(ctx context.Context, jwksURL string) *RemoteKeySet {
	return &RemoteKeySet{jwksURL: jwksURL, ctx: ctx, client: http.DefaultClient}
}

// RemoteKeySet is a KeySet implementation that fetches keys from
// a jwks_uri endpoint.
type RemoteKeySet struct {
	jwksURL string
	ctx     context.Context
	client  *http.Client

	// guard all other fields
	mu sync.RWMutex

	// inflight suppresses parallel execution of updateKeys and allows
	// multiple goroutines to wait for its result.
	inflight *inflight

	// A set of cached keys.
	cachedKeys []jose.JSONWebKey
}

// inflight is used to wait on some in-flight request from multiple goroutines.
type inflight struct {
	doneCh chan struct{}

	keys []jose.JSONWebKey
	err  error
}

func newInflight() *inflight {
	return &inflight{doneCh: make(chan struct{})}
}

// wait returns a channel that multiple goroutines can receive on. Once it returns
// a value, the inflight request is done and result() can be inspected.
func (i *inflight) wait() <-chan struct{} {
	return i.doneCh
}

// done can only be called by a single goroutine. It records the result of the
// inflight request and signals other goroutines that the result is safe to
// inspect.
func (i *inflight) done(keys []jose.JSONWebKey, err error) {
	i.keys = keys
	i.err = err
	close(i.doneCh)
}

// result cannot be called until the wait() channel has returned a value.
func (i *inflight) result() ([]jose.JSONWebKey, error) {
	return i.keys, i.err
}

// Keys implements KeySet
func (r *RemoteKeySet) Keys(ctx context.Context) ([]jose.JSONWebKey, error) {
	if keys := r.keysFromCache(); len(keys) > 0 {
		return keys, nil
	}
	return r.Refresh(ctx)
}

// Refresh fetches the key set from the remote URL
func (r *RemoteKeySet) Refresh(ctx context.Context) ([]jose.JSONWebKey, error) {
	keys, err := r.keysFromRemote(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to fetch JWKS")
	}
	return keys, nil
}

func (r *RemoteKeySet) keysFromCache() (keys []jose.JSONWebKey) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cachedKeys
}

// keysFromRemote syncs the key set from the remote set, records the values in the
// cache, and returns the key set.
func (r *RemoteKeySet) keysFromRemote(ctx context.Context) ([]jose.JSONWebKey, error) {
	// Need to lock to inspect the inflight request field.
	r.mu.Lock()
	// If there's not a current inflight request, create one.
	if r.inflight == nil {
		req := newInflight()
		r.inflight = req

		// This goroutine has exclusive ownership over the current inflight
		// request. It releases the resource by nil'ing the inflight field
		// once the goroutine is done.
		go func() {
			keys, err := r.updateKeys()

			// the cache is updated before waiters are released
			r.mu.Lock()
			if err == nil {
				r.cachedKeys = keys
			}
			r.inflight = nil
			r.mu.Unlock()

			req.done(keys, err)
		}()
	}
	inflight := r.inflight
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-inflight.wait():
		return inflight.result()
	}
}

func (r *RemoteKeySet) updateKeys() ([]jose.JSONWebKey, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.jwksURL, nil)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create request")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to fetch keys")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("get keys failed: %s %s", resp.Status, body)
	}

	keys, err := ParseJWKS(body)
	if err != nil {
		return nil, err
	}
	logger.KV(xlog.DEBUG, "jwks", r.jwksURL, "keys", len(keys))
	return keys, nil
}
