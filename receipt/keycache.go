// Copyright 2025 The Witness Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package receipt

import (
	"context"
	"time"

	ttlcache "github.com/jellydator/ttlcache/v3"
	"github.com/timestamper/go-timestamper/log"
	"github.com/timestamper/go-timestamper/timestamp"
)

const (
	DefaultKeyTTL = 5 * time.Minute
	cacheKey      = "public-key"
)

var _ timestamp.KeyProvider = (*KeyCache)(nil)

// KeyCache remembers the authority's public key for a while so verifying many receipts does
// not fetch it every time. Failed fetches are not cached.
type KeyCache struct {
	provider timestamp.KeyProvider
	ttl      time.Duration
	cache    *ttlcache.Cache[string, timestamp.PublicKey]
}

type KeyCacheOption func(*KeyCache)

func WithTTL(ttl time.Duration) KeyCacheOption {
	return func(kc *KeyCache) {
		kc.ttl = ttl
	}
}

func NewKeyCache(provider timestamp.KeyProvider, opts ...KeyCacheOption) *KeyCache {
	kc := &KeyCache{
		provider: provider,
		ttl:      DefaultKeyTTL,
	}

	for _, opt := range opts {
		opt(kc)
	}

	kc.cache = ttlcache.New[string, timestamp.PublicKey](
		ttlcache.WithDisableTouchOnHit[string, timestamp.PublicKey](),
	)

	return kc
}

func (kc *KeyCache) PublicKey(ctx context.Context) (timestamp.PublicKey, error) {
	var lerr error
	loader := ttlcache.LoaderFunc[string, timestamp.PublicKey](
		func(c *ttlcache.Cache[string, timestamp.PublicKey], key string) *ttlcache.Item[string, timestamp.PublicKey] {
			var pk timestamp.PublicKey
			pk, lerr = kc.provider.PublicKey(ctx)
			if lerr != nil {
				return nil
			}

			log.Debugf("(receipt) cached authority public key for %v", kc.ttl)
			return c.Set(key, pk, kc.ttl)
		},
	)

	item := kc.cache.Get(cacheKey, ttlcache.WithLoader[string, timestamp.PublicKey](loader))
	if lerr != nil {
		return timestamp.PublicKey{}, lerr
	}

	return item.Value(), nil
}

// Invalidate drops the cached key so the next call fetches it again.
func (kc *KeyCache) Invalidate() {
	kc.cache.Delete(cacheKey)
}
