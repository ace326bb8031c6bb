package live

import (
	"context"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
	"tradecore/internal/oms"
	"tradecore/internal/telemetry"
)

// ClockSkewWarnThresholdNs is the |venue_time - local_time| beyond which a
// skew warning is logged.
const ClockSkewWarnThresholdNs = int64(time.Second)

// Executor is the LiveExecutor (C7). The caller is expected to have already
// registered req with the OrderStore (status PendingNew) before calling
// Place.
type Executor struct {
	adapter VenueAdapter
	store   *oms.Store
	logger  telemetry.Logger

	pipeline failsafe.Executor[PlaceResult]
	limiter  *rate.Limiter

	mu         sync.Mutex
	cancelled  map[string]bool // cids whose cancel has already been issued, for idempotency
	lastSkewNs int64
}

// Config tunes the retry/backoff policy and outbound call rate around
// Place/Cancel.
type Config struct {
	MaxRetries  uint
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// RateLimitPerSec caps venue-bound calls (Place+Cancel combined) per
	// second, with a one-call burst. Zero disables limiting.
	RateLimitPerSec float64
}

// DefaultConfig matches the spec's stated retry limit of 3 with exponential
// backoff, and a conservative 10 req/s venue call rate.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, BaseBackoff: 250 * time.Millisecond, MaxBackoff: 5 * time.Second, RateLimitPerSec: 10}
}

// New creates an Executor wired to adapter and store.
func New(adapter VenueAdapter, store *oms.Store, logger telemetry.Logger, cfg Config) *Executor {
	if logger == nil {
		logger = telemetry.NopLogger{}
	}
	retryPolicy := retrypolicy.NewBuilder[PlaceResult]().
		HandleIf(func(res PlaceResult, err error) bool {
			return res.Uncertain
		}).
		WithBackoff(cfg.BaseBackoff, cfg.MaxBackoff).
		WithMaxRetries(int(cfg.MaxRetries)).
		Build()

	var limiter *rate.Limiter
	if cfg.RateLimitPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), 1)
	}

	return &Executor{
		adapter:   adapter,
		store:     store,
		logger:    logger.WithField("component", "live_executor"),
		pipeline:  failsafe.With[PlaceResult](retryPolicy),
		limiter:   limiter,
		cancelled: make(map[string]bool),
	}
}

// waitForRateLimit blocks until a venue call is permitted, or ctx is done.
func (e *Executor) waitForRateLimit(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

// Place forwards req to the venue, guaranteeing at-most-once placement: an
// uncertain outcome is reconciled via the user-stream lookup before each
// retry, and if still uncertain after the retry budget, the order is left
// PendingNew and a TagVenueReconcile error is returned for the caller to
// surface as an order_reconcile_required event.
func (e *Executor) Place(ctx context.Context, req model.OrderRequest, tsNs int64) error {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	res, _ := e.pipeline.GetWithExecution(func(exec failsafe.Execution[PlaceResult]) (PlaceResult, error) {
		r := e.attemptPlace(ctx, req)
		if r.Uncertain {
			if reconciled := e.reconcileByLookup(ctx, req.ClientOrderID); reconciled != nil {
				r = *reconciled
			}
		}
		return r, nil
	})

	switch {
	case res.Ack != nil:
		return e.store.OnAck(req.ClientOrderID, res.Ack.VenueOrderID, true, "", tsNs)
	case res.Reject != nil:
		return e.store.OnAck(req.ClientOrderID, "", false, res.Reject.Reason, tsNs)
	default:
		// exhausted retries still uncertain: leave PendingNew, surface for reconciliation
		e.logger.WithField("client_order_id", req.ClientOrderID).
			Warn("place outcome still uncertain after retry budget, leaving PendingNew")
		return apperrors.New(apperrors.KindVenue, apperrors.TagVenueReconcile,
			"order placement outcome unknown after retries; reconciliation required")
	}
}

func (e *Executor) attemptPlace(ctx context.Context, req model.OrderRequest) PlaceResult {
	if err := e.waitForRateLimit(ctx); err != nil {
		return PlaceResult{Uncertain: true, Err: err}
	}
	res := e.adapter.Place(ctx, req)
	if res.Err != nil && res.Ack == nil && res.Reject == nil {
		res.Uncertain = true
	}
	return res
}

// reconcileByLookup asks the venue's user stream whether an order with cid
// ever arrived, converting the answer into an Ack/Reject so the retry loop
// can stop short of resubmitting a duplicate.
func (e *Executor) reconcileByLookup(ctx context.Context, cid string) *PlaceResult {
	upd, err := e.adapter.LookupByClientOrderID(ctx, cid)
	if err != nil || upd == nil {
		return nil
	}
	if upd.VenueOrderID == "" {
		return nil
	}
	e.trackClockSkew(upd.VenueTsNs, upd.TsNs)
	return &PlaceResult{Ack: &OrderAck{VenueOrderID: upd.VenueOrderID, TsNs: upd.TsNs}}
}

// Cancel requests a cancel, collapsing duplicate requests for the same cid
// and swallowing "already gone" venue errors once the order is terminal.
func (e *Executor) Cancel(ctx context.Context, cid string, tsNs int64) error {
	e.mu.Lock()
	if e.cancelled[cid] {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	st, ok := e.store.Query(cid)
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	if st.Status.IsTerminal() {
		return nil
	}

	if err := e.store.OnCancelRequest(cid); err != nil {
		if te, ok := apperrors.As(err); ok && te.Tag == apperrors.TagAlreadyTerminal {
			return nil
		}
		return err
	}

	e.mu.Lock()
	e.cancelled[cid] = true
	e.mu.Unlock()

	if err := e.waitForRateLimit(ctx); err != nil {
		return apperrors.New(apperrors.KindVenue, apperrors.TagVenueTimeout, "rate limit wait: "+err.Error())
	}

	res := e.adapter.Cancel(ctx, st.VenueOrderID)
	switch {
	case res.Ack != nil:
		return e.store.OnCancelAck(cid, tsNs)
	case res.Reject != nil:
		if isUnknownOrder(res.Reject.Reason) {
			return e.store.OnCancelAck(cid, tsNs)
		}
		return apperrors.New(apperrors.KindVenue, apperrors.TagVenueReject, res.Reject.Reason)
	default:
		return apperrors.New(apperrors.KindVenue, apperrors.TagVenueTimeout, "cancel outcome uncertain")
	}
}

// OnUserStreamUpdate applies one normalized venue order update to the
// OrderStore, tracking clock skew along the way. It returns the applied
// model.Fill when the update carried one, so a caller bridging this into an
// Engine dispatch loop can forward the exact fill rather than re-deriving it.
func (e *Executor) OnUserStreamUpdate(upd UserStreamUpdate) (*model.Fill, error) {
	e.trackClockSkew(upd.VenueTsNs, upd.TsNs)

	switch upd.Status {
	case model.StatusPartiallyFilled, model.StatusFilled:
		fill, err := e.store.OnFill(upd.ClientOrderID, upd.FilledQty, upd.AvgPrice, decimal.Zero, upd.TsNs)
		if err != nil {
			return nil, err
		}
		return &fill, nil
	case model.StatusCancelled:
		return nil, e.store.OnCancelAck(upd.ClientOrderID, upd.TsNs)
	case model.StatusExpired:
		return nil, e.store.OnExpire(upd.ClientOrderID, upd.TsNs)
	default:
		return nil, nil
	}
}

// LastClockSkewNs returns the most recently observed venue_time-local_time
// skew, in nanoseconds.
func (e *Executor) LastClockSkewNs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSkewNs
}

func (e *Executor) trackClockSkew(venueTsNs, localTsNs int64) {
	if venueTsNs == 0 {
		return
	}
	skew := venueTsNs - localTsNs

	e.mu.Lock()
	e.lastSkewNs = skew
	e.mu.Unlock()

	if abs64(skew) > ClockSkewWarnThresholdNs {
		e.logger.WithField("skew_ns", skew).Warn("venue clock skew exceeds 1s threshold")
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func isUnknownOrder(reason string) bool {
	switch reason {
	case "unknown_order", "order_not_found", "already_filled", "already_cancelled":
		return true
	default:
		return false
	}
}
