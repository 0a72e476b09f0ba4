package services

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/giftshift/giftshift-go/errors"
	"github.com/giftshift/giftshift-go/exchange"
	"github.com/giftshift/giftshift-go/models"
	"github.com/giftshift/giftshift-go/types/requests"
	"github.com/giftshift/giftshift-go/types/responses"
)

type SwapService interface {
	RequestQuote(ctx context.Context, req *requests.RequestQuoteRequest) (*responses.Response[*models.Quote], error)
	CreateShift(ctx context.Context, req *requests.CreateShiftRequest) (*responses.Response[*responses.CreateShiftResponseData], error)
	RefreshShift(ctx context.Context, shiftID string) (*responses.Response[*models.Shift], error)
	FetchShift(ctx context.Context, req *requests.FetchShiftRequest) (*responses.Response[*models.Shift], error)
	GetShiftHistory(ctx context.Context, req *requests.GetShiftHistoryRequest) (*responses.Response[[]*models.Shift], error)
	ListAssets(ctx context.Context) (*responses.Response[[]models.AssetNetwork], error)
}

const (
	quoteCachePrefix = "quote:"

	persistQueueSize     = 256
	persistRetryAttempts = 5
	persistRetryDelay    = 2 * time.Second
)

func NewSwapService(
	exchangeClient exchange.Client,
	shiftStore ShiftStore,
	cacheService CacheService,
	webhookService WebhookService,
	schedulerService SchedulerService,
	broker Broker,
	log *zap.Logger,
) SwapService {
	s := &swapService{
		service: service{
			exchange:       exchangeClient,
			shiftStore:     shiftStore,
			cacheService:   cacheService,
			webhookService: webhookService,
			broker:         broker,
			log:            log,
		},
		schedulerService: schedulerService,
		persistQueue:     make(chan *models.Shift, persistQueueSize),
	}
	go s.drainPersistQueue()
	return s
}

type swapService struct {
	service

	schedulerService SchedulerService
	persistQueue     chan *models.Shift
}

func (s *swapService) RequestQuote(ctx context.Context, req *requests.RequestQuoteRequest) (*responses.Response[*models.Quote], error) {
	quote, err := s.exchange.GetQuote(ctx, &exchange.QuoteParams{
		FromCoin:      req.FromCoin,
		FromNetwork:   req.FromNetwork,
		ToCoin:        req.ToCoin,
		ToNetwork:     req.ToNetwork,
		Amount:        float64(req.Amount),
		SettleAddress: req.SettleAddress,
		CallerIP:      req.CallerIP,
	})
	if err != nil {
		return nil, err
	}

	// remembered until expiry so shift creation can reject a stale quote
	// without a round trip
	if ttl := time.Until(quote.ExpiresAt); ttl > 0 {
		s.cacheService.Set(ctx, quoteCachePrefix+quote.ID, quote, ttl)
	}

	return responses.Ok(quote), nil
}

func (s *swapService) CreateShift(ctx context.Context, req *requests.CreateShiftRequest) (*responses.Response[*responses.CreateShiftResponseData], error) {
	if cached, ok := s.cacheService.Get(ctx, quoteCachePrefix+req.QuoteID); ok {
		quote := new(models.Quote)
		if err := json.Unmarshal([]byte(cached), quote); err == nil && quote.Expired(time.Now()) {
			return nil, errors.NewNotFoundError("quote has expired, request a new quote")
		}
	}

	shift, err := s.exchange.CreateShift(ctx, &exchange.ShiftParams{
		QuoteID:       req.QuoteID,
		SettleAddress: req.SettleAddress,
		CallerIP:      req.CallerIP,
	})
	if err != nil {
		return nil, err
	}
	shift.UserID = req.UserID

	// The shift exists upstream regardless of what happens here, so a failed
	// write must never fail the call; the record is handed to the background
	// writer and returned to the caller either way.
	if err := s.shiftStore.Upsert(ctx, shift); err != nil {
		s.log.Error("persisting created shift", zap.String("shift_id", shift.ID), zap.Error(err))
		s.enqueuePersist(shift)
	}

	s.schedulerService.ScheduleShiftRefresh(shift.ID, func(taskCtx context.Context) (bool, error) {
		res, err := s.RefreshShift(taskCtx, shift.ID)
		if err != nil {
			return false, err
		}
		if !res.Data.Status.Terminal() {
			return false, nil
		}
		// a refresh that observed a terminal state but could not persist it
		// returns the fetched record; the task must stay alive until the
		// store carries the terminal state, so the next trigger retries
		stored, err := s.shiftStore.GetShift(taskCtx, shift.ID)
		if err != nil {
			return false, nil
		}
		return stored.Status.Terminal(), nil
	})

	s.webhookService.SendShiftCreatedEvent(shift)

	return responses.Ok(&responses.CreateShiftResponseData{
		Shift:   shift,
		Channel: shift.Channel(),
	}), nil
}

func (s *swapService) RefreshShift(ctx context.Context, shiftID string) (*responses.Response[*models.Shift], error) {
	var stored *models.Shift
	if existing, err := s.shiftStore.GetShift(ctx, shiftID); err == nil {
		stored = existing
	} else if !errors.IsType(err, errors.ErrNotFound) {
		s.log.Warn("reading stored shift", zap.String("shift_id", shiftID), zap.Error(err))
	}

	fetched, err := s.exchange.GetShiftStatus(ctx, shiftID)
	if err != nil {
		return nil, err
	}

	if stored != nil {
		// lifecycle refreshes only ever mutate status-derived fields
		fetched.UserID = stored.UserID
		fetched.CreatedAt = stored.CreatedAt
		if fetched.QuoteID == "" {
			fetched.QuoteID = stored.QuoteID
		}

		if stored.Status.Terminal() || stored.Status == fetched.Status {
			return responses.Ok(stored), nil
		}
	}
	fetched.UpdatedAt = time.Now()

	if err := s.shiftStore.Upsert(ctx, fetched); err != nil {
		// the next trigger retries; no event is emitted for an unpersisted change
		s.log.Error("persisting shift refresh", zap.String("shift_id", shiftID), zap.Error(err))
		return responses.Ok(fetched), nil
	}

	current := fetched
	if persisted, err := s.shiftStore.GetShift(ctx, shiftID); err == nil {
		current = persisted
	}

	previous := models.AwaitingDeposit_ShiftStatus
	if stored != nil {
		previous = stored.Status
	}
	// a first-seen shift whose status matches the default is not a transition
	if previous != current.Status {
		s.emitStatusChange(current, previous)
	}
	if current.Status.Terminal() {
		s.schedulerService.DropTask(shiftID)
	}

	return responses.Ok(current), nil
}

func (s *swapService) emitStatusChange(shift *models.Shift, previous models.ShiftStatus) {
	update := &responses.ShiftUpdate{Shift: shift, PreviousStatus: previous}

	s.broker.Broadcast(shift.Channel(), update)
	if shift.UserID != nil {
		s.broker.SendToIdentity(*shift.UserID, update)
	}

	s.webhookService.SendShiftTerminalEvent(shift)
}

func (s *swapService) FetchShift(ctx context.Context, req *requests.FetchShiftRequest) (*responses.Response[*models.Shift], error) {
	shift, err := s.shiftStore.GetShift(ctx, req.ShiftID)
	if err != nil {
		if errors.IsType(err, errors.ErrNotFound) {
			// unknown locally; the exchange may still know it
			return s.RefreshShift(ctx, req.ShiftID)
		}
		return nil, err
	}
	return responses.Ok(shift), nil
}

func (s *swapService) GetShiftHistory(ctx context.Context, req *requests.GetShiftHistoryRequest) (*responses.Response[[]*models.Shift], error) {
	shifts, err := s.shiftStore.ListByUser(ctx, req.UserID, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	return responses.Ok(shifts), nil
}

func (s *swapService) ListAssets(ctx context.Context) (*responses.Response[[]models.AssetNetwork], error) {
	assets, err := s.exchange.ListSupportedAssets(ctx)
	if err != nil {
		return nil, err
	}
	return responses.Ok(assets), nil
}

func (s *swapService) enqueuePersist(shift *models.Shift) {
	select {
	case s.persistQueue <- shift:
	default:
		s.log.Error("persist queue full, dropping shift write", zap.String("shift_id", shift.ID))
	}
}

func (s *swapService) drainPersistQueue() {
	for shift := range s.persistQueue {
		var err error
		for attempt := 1; attempt <= persistRetryAttempts; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err = s.shiftStore.Upsert(ctx, shift)
			cancel()
			if err == nil {
				break
			}
			time.Sleep(persistRetryDelay * time.Duration(attempt))
		}
		if err != nil {
			s.log.Error("abandoning shift write after retries",
				zap.String("shift_id", shift.ID),
				zap.Error(err),
			)
		}
	}
}
