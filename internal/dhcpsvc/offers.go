package dhcpsvc

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/bluele/gcache"
)

// offerCacheSize is the maximum number of tracked offers.
const offerCacheSize = 1024

// offerTracker remembers the offers made by the server, so that a failed
// commit of the requested address results in a NAK only for the clients the
// server has made an offer to.
type offerTracker struct {
	logger *slog.Logger
	cache  gcache.Cache
}

// offerItem is a single tracked offer.
type offerItem struct {
	// ip is the offered address.
	ip netip.Addr

	// expiry is the epoch when the offer hold ends.
	expiry int64
}

// newOfferTracker returns a new *offerTracker.
func newOfferTracker(logger *slog.Logger) (t *offerTracker) {
	return &offerTracker{
		logger: logger,
		cache:  gcache.New(offerCacheSize).LRU().Build(),
	}
}

// add remembers the offer of ip to the client until expiry.
func (t *offerTracker) add(ctx context.Context, k clientKey, ip netip.Addr, expiry int64) {
	err := t.cache.Set(k, &offerItem{ip: ip, expiry: expiry})
	if err != nil {
		t.logger.DebugContext(ctx, "tracking offer", "ip", ip, slogutil.KeyError, err)
	}
}

// has returns true if ip has been offered to the client and the offer hasn't
// expired at now.
func (t *offerTracker) has(ctx context.Context, k clientKey, ip netip.Addr, now int64) (ok bool) {
	val, err := t.cache.Get(k)
	if err != nil {
		if !errors.Is(err, gcache.KeyNotFoundError) {
			t.logger.DebugContext(ctx, "retrieving offer", "ip", ip, slogutil.KeyError, err)
		}

		return false
	}

	item := val.(*offerItem)

	return item.ip == ip && now < item.expiry
}

// remove forgets the offer made to the client.
func (t *offerTracker) remove(k clientKey) {
	t.cache.Remove(k)
}
