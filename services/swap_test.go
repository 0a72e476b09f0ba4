package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/giftshift/giftshift-go/errors"
	"github.com/giftshift/giftshift-go/exchange"
	"github.com/giftshift/giftshift-go/models"
	"github.com/giftshift/giftshift-go/types/requests"
	"github.com/giftshift/giftshift-go/types/responses"
)

type fakeExchange struct {
	mu          sync.Mutex
	quote       *models.Quote
	shift       *models.Shift
	status      *models.Shift
	statusErr   error
	quoteCalls  int
	createCalls int
	statusCalls int
}

func (f *fakeExchange) GetQuote(context.Context, *exchange.QuoteParams) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls++
	clone := *f.quote
	return &clone, nil
}

func (f *fakeExchange) CreateShift(context.Context, *exchange.ShiftParams) (*models.Shift, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	clone := *f.shift
	return &clone, nil
}

func (f *fakeExchange) GetShiftStatus(context.Context, string) (*models.Shift, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	clone := *f.status
	return &clone, nil
}

func (f *fakeExchange) ListSupportedAssets(context.Context) ([]models.AssetNetwork, error) {
	return []models.AssetNetwork{}, nil
}

type brokerCall struct {
	channel  string
	identity string
	payload  any
}

type recordingBroker struct {
	mu    sync.Mutex
	calls []brokerCall
}

func (b *recordingBroker) Broadcast(channel string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, brokerCall{channel: channel, payload: payload})
}

func (b *recordingBroker) SendToIdentity(identity string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, brokerCall{identity: identity, payload: payload})
}

func (b *recordingBroker) broadcasts() []brokerCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []brokerCall{}
	for _, call := range b.calls {
		if call.channel != "" {
			out = append(out, call)
		}
	}
	return out
}

func (b *recordingBroker) directs() []brokerCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []brokerCall{}
	for _, call := range b.calls {
		if call.identity != "" {
			out = append(out, call)
		}
	}
	return out
}

type recordingWebhooks struct {
	mu     sync.Mutex
	events []models.WebhookEvent
}

func (w *recordingWebhooks) record(event models.WebhookEvent) WebhookService {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return w
}

func (w *recordingWebhooks) sent() []models.WebhookEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.WebhookEvent{}, w.events...)
}

func (w *recordingWebhooks) SendShiftCreatedEvent(*models.Shift) WebhookService {
	return w.record(models.ShiftCreated_WebhookEvent)
}

func (w *recordingWebhooks) SendShiftTerminalEvent(shift *models.Shift) WebhookService {
	if event, ok := models.TerminalWebhookEvent(shift.Status); ok {
		return w.record(event)
	}
	return w
}

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []string
	dropped   []string
	refreshes map[string]RefreshFunc
}

func (s *recordingScheduler) ScheduleShiftRefresh(shiftID string, refresh RefreshFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, shiftID)
	if s.refreshes == nil {
		s.refreshes = map[string]RefreshFunc{}
	}
	s.refreshes[shiftID] = refresh
}

func (s *recordingScheduler) DropTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = append(s.dropped, taskID)
}

func (s *recordingScheduler) droppedTasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.dropped...)
}

// mapCache is an always-available CacheService for tests.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]string{}}
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.entries[key]
	return val, ok
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := value.(string)
	if !ok {
		raw, err := json.Marshal(value)
		if err != nil {
			return false
		}
		data = string(raw)
	}
	c.entries[key] = data
	return true
}

func (c *mapCache) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return true
}

// blockedStore fails every upsert while down, then delegates to a memory
// store. Reads always work.
type blockedStore struct {
	ShiftStore
	mu   sync.Mutex
	down bool
}

func (b *blockedStore) setDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

func (b *blockedStore) Upsert(ctx context.Context, shift *models.Shift) error {
	b.mu.Lock()
	down := b.down
	b.mu.Unlock()

	if down {
		return errors.NewPersistenceError(fmt.Errorf("database gone"))
	}
	return b.ShiftStore.Upsert(ctx, shift)
}

// failingStore fails the first n upserts, then delegates to a memory store.
type failingStore struct {
	ShiftStore
	mu       sync.Mutex
	failures int
}

func (f *failingStore) Upsert(ctx context.Context, shift *models.Shift) error {
	f.mu.Lock()
	shouldFail := f.failures > 0
	if shouldFail {
		f.failures--
	}
	f.mu.Unlock()

	if shouldFail {
		return errors.NewPersistenceError(fmt.Errorf("database gone"))
	}
	return f.ShiftStore.Upsert(ctx, shift)
}

type swapFixture struct {
	service   SwapService
	exchange  *fakeExchange
	store     ShiftStore
	cache     *mapCache
	webhooks  *recordingWebhooks
	scheduler *recordingScheduler
	broker    *recordingBroker
}

func newSwapFixture(ex *fakeExchange, store ShiftStore) *swapFixture {
	f := &swapFixture{
		exchange:  ex,
		store:     store,
		cache:     newMapCache(),
		webhooks:  &recordingWebhooks{},
		scheduler: &recordingScheduler{},
		broker:    &recordingBroker{},
	}
	f.service = NewSwapService(ex, store, f.cache, f.webhooks, f.scheduler, f.broker, zap.NewNop())
	return f
}

func testQuote(id string, expiresAt time.Time) *models.Quote {
	return &models.Quote{
		ID:         id,
		FromCoin:   "BTC",
		ToCoin:     "ETH",
		FromAmount: 0.5,
		ToAmount:   7.5,
		CreatedAt:  time.Now(),
		ExpiresAt:  expiresAt,
	}
}

func TestRequestQuoteCachesUntilExpiry(t *testing.T) {
	ex := &fakeExchange{quote: testQuote("q-1", time.Now().Add(10*time.Minute))}
	f := newSwapFixture(ex, NewMemoryShiftStore())

	res, err := f.service.RequestQuote(context.Background(), &requests.RequestQuoteRequest{
		FromCoin: "btc", FromNetwork: "bitcoin",
		ToCoin: "eth", ToNetwork: "ethereum",
		Amount: 0.5,
	})

	require.NoError(t, err)
	assert.Equal(t, "q-1", res.Data.ID)

	cached, ok := f.cache.Get(context.Background(), "quote:q-1")
	require.True(t, ok)
	quote := new(models.Quote)
	require.NoError(t, json.Unmarshal([]byte(cached), quote))
	assert.Equal(t, "q-1", quote.ID)
}

func TestCreateShiftPersistsSchedulesAndNotifies(t *testing.T) {
	userID := "acct-1"
	ex := &fakeExchange{shift: newTestShift("s-1", models.AwaitingDeposit_ShiftStatus, time.Now())}
	f := newSwapFixture(ex, NewMemoryShiftStore())

	res, err := f.service.CreateShift(context.Background(), &requests.CreateShiftRequest{
		QuoteID:       "q-1",
		SettleAddress: "settle-addr",
		UserID:        &userID,
	})

	require.NoError(t, err)
	assert.Equal(t, "s-1", res.Data.Shift.ID)
	assert.Equal(t, "swap:s-1", res.Data.Channel)

	stored, err := f.store.GetShift(context.Background(), "s-1")
	require.NoError(t, err)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, userID, *stored.UserID)

	assert.Equal(t, []string{"s-1"}, f.scheduler.scheduled)
	assert.Equal(t, []models.WebhookEvent{models.ShiftCreated_WebhookEvent}, f.webhooks.sent())
}

func TestCreateShiftRejectsExpiredQuote(t *testing.T) {
	ex := &fakeExchange{shift: newTestShift("s-1", models.AwaitingDeposit_ShiftStatus, time.Now())}
	f := newSwapFixture(ex, NewMemoryShiftStore())

	f.cache.Set(context.Background(), "quote:q-stale", testQuote("q-stale", time.Now().Add(-time.Minute)), time.Minute)

	_, err := f.service.CreateShift(context.Background(), &requests.CreateShiftRequest{
		QuoteID:       "q-stale",
		SettleAddress: "settle-addr",
	})

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrNotFound))
	assert.Zero(t, ex.createCalls, "expired quotes never reach the exchange")
}

func TestCreateShiftSurvivesPersistenceFailure(t *testing.T) {
	ex := &fakeExchange{shift: newTestShift("s-1", models.AwaitingDeposit_ShiftStatus, time.Now())}
	store := &failingStore{ShiftStore: NewMemoryShiftStore(), failures: 1}
	f := newSwapFixture(ex, store)

	res, err := f.service.CreateShift(context.Background(), &requests.CreateShiftRequest{
		QuoteID:       "q-1",
		SettleAddress: "settle-addr",
	})

	require.NoError(t, err, "a failed write must not fail the call")
	assert.Equal(t, "s-1", res.Data.Shift.ID)

	// the background writer lands the record once the store recovers
	require.Eventually(t, func() bool {
		_, err := f.store.GetShift(context.Background(), "s-1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRefreshShiftEmitsStatusChange(t *testing.T) {
	userID := "acct-1"
	created := time.Now().Add(-time.Hour)
	stored := newTestShift("s-1", models.AwaitingDeposit_ShiftStatus, created)
	stored.UserID = &userID

	ex := &fakeExchange{status: newTestShift("s-1", models.Processing_ShiftStatus, time.Now())}
	f := newSwapFixture(ex, NewMemoryShiftStore())
	require.NoError(t, f.store.Upsert(context.Background(), stored))

	res, err := f.service.RefreshShift(context.Background(), "s-1")

	require.NoError(t, err)
	assert.Equal(t, models.Processing_ShiftStatus, res.Data.Status)
	require.NotNil(t, res.Data.UserID)
	assert.Equal(t, userID, *res.Data.UserID, "identity set at creation survives refreshes")
	assert.True(t, res.Data.CreatedAt.Equal(created))

	broadcasts := f.broker.broadcasts()
	require.Len(t, broadcasts, 1)
	assert.Equal(t, "swap:s-1", broadcasts[0].channel)
	update := broadcasts[0].payload.(*responses.ShiftUpdate)
	assert.Equal(t, models.AwaitingDeposit_ShiftStatus, update.PreviousStatus)
	assert.Equal(t, models.Processing_ShiftStatus, update.Shift.Status)

	directs := f.broker.directs()
	require.Len(t, directs, 1)
	assert.Equal(t, userID, directs[0].identity)

	assert.Empty(t, f.webhooks.sent(), "non-terminal transitions emit no webhook")
}

func TestRefreshShiftNoOpOnUnchangedStatus(t *testing.T) {
	ex := &fakeExchange{status: newTestShift("s-1", models.Processing_ShiftStatus, time.Now())}
	f := newSwapFixture(ex, NewMemoryShiftStore())
	require.NoError(t, f.store.Upsert(context.Background(), newTestShift("s-1", models.Processing_ShiftStatus, time.Now())))

	res, err := f.service.RefreshShift(context.Background(), "s-1")

	require.NoError(t, err)
	assert.Equal(t, models.Processing_ShiftStatus, res.Data.Status)
	assert.Empty(t, f.broker.broadcasts())
	assert.Empty(t, f.webhooks.sent())
}

func TestRefreshShiftIgnoresLateUpdateAfterTerminal(t *testing.T) {
	ex := &fakeExchange{status: newTestShift("s-1", models.Processing_ShiftStatus, time.Now())}
	f := newSwapFixture(ex, NewMemoryShiftStore())
	require.NoError(t, f.store.Upsert(context.Background(), newTestShift("s-1", models.Refunded_ShiftStatus, time.Now())))

	res, err := f.service.RefreshShift(context.Background(), "s-1")

	require.NoError(t, err)
	assert.Equal(t, models.Refunded_ShiftStatus, res.Data.Status)
	assert.Empty(t, f.broker.broadcasts())

	stored, err := f.store.GetShift(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.Refunded_ShiftStatus, stored.Status)
}

func TestRefreshShiftCompletionEmitsTerminalWebhook(t *testing.T) {
	ex := &fakeExchange{status: newTestShift("s-1", models.Complete_ShiftStatus, time.Now())}
	f := newSwapFixture(ex, NewMemoryShiftStore())
	require.NoError(t, f.store.Upsert(context.Background(), newTestShift("s-1", models.Processing_ShiftStatus, time.Now())))

	res, err := f.service.RefreshShift(context.Background(), "s-1")

	require.NoError(t, err)
	assert.Equal(t, models.Complete_ShiftStatus, res.Data.Status)
	require.NotNil(t, res.Data.CompletedAt)
	assert.Equal(t, []models.WebhookEvent{models.ShiftCompleted_WebhookEvent}, f.webhooks.sent())
	assert.Contains(t, f.scheduler.droppedTasks(), "s-1", "a terminal state ends the polling task")
}

func TestFirstSeenAwaitingShiftEmitsNoEvent(t *testing.T) {
	ex := &fakeExchange{status: newTestShift("s-ext", models.AwaitingDeposit_ShiftStatus, time.Now())}
	f := newSwapFixture(ex, NewMemoryShiftStore())

	res, err := f.service.RefreshShift(context.Background(), "s-ext")

	require.NoError(t, err)
	assert.Equal(t, models.AwaitingDeposit_ShiftStatus, res.Data.Status)
	assert.Empty(t, f.broker.broadcasts(), "recovering a record in its default state is not a transition")
	assert.Empty(t, f.broker.directs())
}

func TestRefreshShiftPersistenceFailureSuppressesEvents(t *testing.T) {
	ex := &fakeExchange{status: newTestShift("s-1", models.Processing_ShiftStatus, time.Now())}
	store := &failingStore{ShiftStore: NewMemoryShiftStore(), failures: 10}
	f := newSwapFixture(ex, store)

	res, err := f.service.RefreshShift(context.Background(), "s-1")

	require.NoError(t, err, "the fetched state is still returned")
	assert.Equal(t, models.Processing_ShiftStatus, res.Data.Status)
	assert.Empty(t, f.broker.broadcasts(), "no event for an unpersisted change")
	assert.Empty(t, f.webhooks.sent())
}

func TestFetchShiftFallsBackToUpstream(t *testing.T) {
	ex := &fakeExchange{status: newTestShift("s-ext", models.AwaitingDeposit_ShiftStatus, time.Now())}
	f := newSwapFixture(ex, NewMemoryShiftStore())

	res, err := f.service.FetchShift(context.Background(), &requests.FetchShiftRequest{ShiftID: "s-ext"})

	require.NoError(t, err)
	assert.Equal(t, "s-ext", res.Data.ID)
	assert.Equal(t, 1, ex.statusCalls)

	// the recovered record is now served locally
	_, err = f.store.GetShift(context.Background(), "s-ext")
	require.NoError(t, err)
}

func TestFetchShiftServesLocalRecordWithoutUpstreamCall(t *testing.T) {
	ex := &fakeExchange{}
	f := newSwapFixture(ex, NewMemoryShiftStore())
	require.NoError(t, f.store.Upsert(context.Background(), newTestShift("s-1", models.Processing_ShiftStatus, time.Now())))

	res, err := f.service.FetchShift(context.Background(), &requests.FetchShiftRequest{ShiftID: "s-1"})

	require.NoError(t, err)
	assert.Equal(t, "s-1", res.Data.ID)
	assert.Zero(t, ex.statusCalls)
}

func TestScheduledRefreshReportsDoneOnTerminal(t *testing.T) {
	ex := &fakeExchange{shift: newTestShift("s-1", models.AwaitingDeposit_ShiftStatus, time.Now())}
	f := newSwapFixture(ex, NewMemoryShiftStore())

	_, err := f.service.CreateShift(context.Background(), &requests.CreateShiftRequest{
		QuoteID:       "q-1",
		SettleAddress: "settle-addr",
	})
	require.NoError(t, err)

	refresh := f.scheduler.refreshes["s-1"]
	require.NotNil(t, refresh)

	ex.mu.Lock()
	ex.status = newTestShift("s-1", models.Processing_ShiftStatus, time.Now())
	ex.mu.Unlock()
	done, err := refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, done)

	ex.mu.Lock()
	ex.status = newTestShift("s-1", models.Complete_ShiftStatus, time.Now())
	ex.mu.Unlock()
	done, err = refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, done, "terminal status ends the polling task")
}

func TestScheduledRefreshKeepsPollingUntilTerminalStatePersists(t *testing.T) {
	ex := &fakeExchange{shift: newTestShift("s-1", models.AwaitingDeposit_ShiftStatus, time.Now())}
	store := &blockedStore{ShiftStore: NewMemoryShiftStore()}
	f := newSwapFixture(ex, store)

	_, err := f.service.CreateShift(context.Background(), &requests.CreateShiftRequest{
		QuoteID:       "q-1",
		SettleAddress: "settle-addr",
	})
	require.NoError(t, err)

	refresh := f.scheduler.refreshes["s-1"]
	require.NotNil(t, refresh)

	// the store goes down, then the upstream settles the shift
	store.setDown(true)
	ex.mu.Lock()
	ex.status = newTestShift("s-1", models.Complete_ShiftStatus, time.Now())
	ex.mu.Unlock()

	done, err := refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, done, "an unpersisted terminal state must keep the task alive")
	assert.Empty(t, f.broker.broadcasts(), "no event for an unpersisted change")
	assert.NotContains(t, f.webhooks.sent(), models.ShiftCompleted_WebhookEvent)

	stored, err := f.store.GetShift(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.AwaitingDeposit_ShiftStatus, stored.Status)

	// next trigger after the store recovers lands the completion and emits
	store.setDown(false)
	done, err = refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, done)

	stored, err = f.store.GetShift(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.Complete_ShiftStatus, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	require.Len(t, f.broker.broadcasts(), 1)
	assert.Contains(t, f.webhooks.sent(), models.ShiftCompleted_WebhookEvent)
}
