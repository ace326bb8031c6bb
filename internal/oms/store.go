// Package oms implements the OrderStore: the authoritative per-client-order
// state machine, indexed by both client and venue order id. OrderStore is
// the sole owner of every OrderState; everything else only ever reads
// immutable snapshots of it.
package oms

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
	"tradecore/internal/telemetry"
)

// Store is the OrderStore. Safe for concurrent use; every public method
// takes the single internal mutex, matching the teacher's single
// save-state-before-mutate pattern.
type Store struct {
	mu          sync.Mutex
	byClientID  map[string]*model.OrderState
	byVenueID   map[string]string // venue_order_id -> client_order_id
	nextSeq     uint64
	logger      telemetry.Logger
}

// New creates an empty Store.
func New(logger telemetry.Logger) *Store {
	if logger == nil {
		logger = telemetry.NopLogger{}
	}
	return &Store{
		byClientID: make(map[string]*model.OrderState),
		byVenueID:  make(map[string]string),
		logger:     logger,
	}
}

// Submit registers a new OrderRequest as PendingNew. Fails with
// duplicate_client_id if the client_order_id is already known, including
// against terminal orders from earlier in the session.
func (s *Store) Submit(req model.OrderRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byClientID[req.ClientOrderID]; exists {
		return "", apperrors.New(apperrors.KindValidation, apperrors.TagDuplicateCID,
			"client_order_id already used this session")
	}

	seq := s.nextSeq
	s.nextSeq++

	st := &model.OrderState{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		TIF:           req.TIF,
		OrderQty:      req.Qty,
		LimitPrice:    req.Price,
		Status:        model.StatusPendingNew,
		ExecutedQty:   decimal.Zero,
		AvgPrice:      decimal.Zero,
		LastTsNs:      req.TsCreated,
	}
	st.SetSeq(seq)
	s.byClientID[req.ClientOrderID] = st
	return req.ClientOrderID, nil
}

// OnAck applies a venue acknowledgement: accept moves PendingNew->Accepted
// and records the venue_order_id mapping; reject moves PendingNew->Rejected
// (terminal).
func (s *Store) OnAck(cid, venueID string, accepted bool, reason string, tsNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byClientID[cid]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	if st.Status != model.StatusPendingNew {
		return apperrors.New(apperrors.KindInternal, apperrors.TagAlreadyTerminal,
			"ack received for order not in PendingNew")
	}

	if accepted {
		st.Status = model.StatusAccepted
		st.VenueOrderID = venueID
		if venueID != "" {
			s.byVenueID[venueID] = cid
		}
	} else {
		st.Status = model.StatusRejected
		st.LastReason = reason
	}
	st.LastTsNs = tsNs
	return nil
}

// OnFill applies a fill. A fill arriving for an order already in a terminal
// state other than Cancelled is a fatal internal error (invariant 4); a
// fill arriving for a Cancelled order is a legitimate race (a fill in
// flight when cancel_ok was processed) and is dropped as stale_fill,
// leaving the order Cancelled.
func (s *Store) OnFill(cid string, qty, px, fee decimal.Decimal, tsNs int64) (model.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byClientID[cid]
	if !ok {
		return model.Fill{}, apperrors.ErrOrderNotFound
	}

	if st.Status == model.StatusCancelled {
		s.recordStale(cid)
		return model.Fill{}, apperrors.New(apperrors.KindVenue, apperrors.TagStaleFill,
			"fill arrived after cancel_ok, dropped")
	}

	switch st.Status {
	case model.StatusAccepted, model.StatusPartiallyFilled, model.StatusPendingCancel:
		// eligible
	default:
		return model.Fill{}, apperrors.New(apperrors.KindInternal, apperrors.TagAlreadyTerminal,
			"fill arrived for order not eligible to fill")
	}

	newExecuted := st.ExecutedQty.Add(qty)
	if newExecuted.GreaterThan(st.OrderQty) {
		newExecuted = st.OrderQty // clamp: invariant 2, executed_qty <= order_qty
	}

	// volume-weighted average price across all fills so far
	if st.ExecutedQty.IsZero() {
		st.AvgPrice = px
	} else {
		totalNotional := st.AvgPrice.Mul(st.ExecutedQty).Add(px.Mul(qty))
		st.AvgPrice = totalNotional.Div(newExecuted)
	}
	st.ExecutedQty = newExecuted
	st.LastTsNs = tsNs

	if st.ExecutedQty.GreaterThanOrEqual(st.OrderQty) {
		st.Status = model.StatusFilled
	} else if st.Status != model.StatusPendingCancel {
		st.Status = model.StatusPartiallyFilled
	}
	// a PendingCancel order that receives a partial fill stays PendingCancel
	// until cancel_ok or a fill completing it arrives (race-resolved per §4.3).

	fill := model.Fill{ClientOrderID: cid, Symbol: st.Symbol, Qty: qty, Price: px, Fee: fee, TsNs: tsNs}
	return fill, nil
}

// OnCancelRequest moves Accepted/PartiallyFilled to PendingCancel. Cancel
// requested on a terminal order is not an error: it returns already_terminal
// as an idempotent no-op signal.
func (s *Store) OnCancelRequest(cid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byClientID[cid]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	if st.Status.IsTerminal() {
		return apperrors.New(apperrors.KindValidation, apperrors.TagAlreadyTerminal,
			"order already in a terminal state")
	}
	if st.Status != model.StatusAccepted && st.Status != model.StatusPartiallyFilled {
		return apperrors.New(apperrors.KindValidation, apperrors.TagAlreadyTerminal,
			"order not in a cancellable state")
	}
	st.Status = model.StatusPendingCancel
	return nil
}

// OnCancelAck completes a cancel: PendingCancel -> Cancelled.
func (s *Store) OnCancelAck(cid string, tsNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byClientID[cid]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	if st.Status != model.StatusPendingCancel {
		return apperrors.New(apperrors.KindInternal, apperrors.TagAlreadyTerminal,
			"cancel_ok received for order not PendingCancel")
	}
	st.Status = model.StatusCancelled
	st.LastTsNs = tsNs
	return nil
}

// OnExpire moves Accepted/PartiallyFilled to Expired (terminal).
func (s *Store) OnExpire(cid string, tsNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byClientID[cid]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	if st.Status != model.StatusAccepted && st.Status != model.StatusPartiallyFilled {
		return apperrors.New(apperrors.KindInternal, apperrors.TagAlreadyTerminal,
			"expire received for order not Accepted/PartiallyFilled")
	}
	st.Status = model.StatusExpired
	st.LastTsNs = tsNs
	return nil
}

// Query returns an immutable snapshot of the order, or false if unknown.
func (s *Store) Query(cid string) (model.OrderState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byClientID[cid]
	if !ok {
		return model.OrderState{}, false
	}
	return st.Clone(), true
}

// QueryByVenueID resolves a venue_order_id back to its client order's
// snapshot.
func (s *Store) QueryByVenueID(venueID string) (model.OrderState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cid, ok := s.byVenueID[venueID]
	if !ok {
		return model.OrderState{}, false
	}
	st := s.byClientID[cid]
	return st.Clone(), true
}

// Snapshot returns immutable copies of every known OrderState.
func (s *Store) Snapshot() []model.OrderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OrderState, 0, len(s.byClientID))
	for _, st := range s.byClientID {
		out = append(out, st.Clone())
	}
	return out
}

// OpenCount returns the number of orders in a non-terminal state, used by
// RiskEngine's max_open_orders check.
func (s *Store) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.byClientID {
		if !st.Status.IsTerminal() {
			n++
		}
	}
	return n
}

func (s *Store) recordStale(cid string) {
	s.logger.WithField("client_order_id", cid).Warn("stale fill dropped after cancel_ok")
	telemetry.GetGlobalMetrics().StaleFills.Add(context.Background(), 1)
}
