package swap

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

// Verifier caches boleto checks for a short TTL so that bulk flows
// (one ingest can carry hundreds of barcodes) do not hammer the
// settlement API with repeats. Lookups for the same barcode are
// coalesced; payability flags are recomputed per caller since they
// depend on the clock.
type Verifier struct {
	client *Client
	cache  *ristretto.Cache[string, *BoletoCheck]
	group  singleflight.Group
	ttl    time.Duration
}

// NewVerifier wraps a client with a check cache. ttl <= 0 defaults to
// five minutes.
func NewVerifier(client *Client, ttl time.Duration) (*Verifier, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *BoletoCheck]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Verifier{client: client, cache: cache, ttl: ttl}, nil
}

// Check returns the settlement API's view of the barcode, served from
// cache when fresh.
func (v *Verifier) Check(ctx context.Context, barcode string) (*BoletoCheck, error) {
	if err := checkFormat(barcode); err != nil {
		return nil, err
	}
	if cached, ok := v.cache.Get(barcode); ok {
		fresh := *cached
		v.client.enrich(&fresh)
		return &fresh, nil
	}

	res, err, _ := v.group.Do(barcode, func() (any, error) {
		if cached, ok := v.cache.Get(barcode); ok {
			return cached, nil
		}
		check, err := v.client.CheckBoleto(ctx, barcode)
		if err != nil {
			return nil, err
		}
		v.cache.SetWithTTL(barcode, check, 1, v.ttl)
		return check, nil
	})
	if err != nil {
		return nil, err
	}
	check := *(res.(*BoletoCheck))
	v.client.enrich(&check)
	return &check, nil
}

// Close releases the cache resources.
func (v *Verifier) Close() { v.cache.Close() }
