package auction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

const (
	seller       Address = "0xseller"
	bidder1      Address = "0xbidder1"
	bidder2      Address = "0xbidder2"
	bidder3      Address = "0xbidder3"
	feeRecipient Address = "0xtreasury"
	arbiterAddr  Address = "0xarbiter"

	startTime int64 = 1_700_000_000
)

// milliEther n * 10^15 wei
func milliEther(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000))
}

func ether(n uint64) *uint256.Int {
	return milliEther(n * 1000)
}

type fakeClock struct {
	now atomic.Int64
}

func newFakeClock(now int64) *fakeClock {
	c := &fakeClock{}
	c.now.Store(now)
	return c
}

func (c *fakeClock) Now() int64 {
	return c.now.Load()
}

func (c *fakeClock) Advance(seconds int64) {
	c.now.Add(seconds)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// transfers 回傳 key 含 fragment 的轉帳事件
func (r *recordingEmitter) transfers(fragment string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == EventTransfer && strings.Contains(e.Attributes["key"], fragment) {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingEmitter) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type submission struct {
	auctionID string
	reason    string
}

type recordingArbiter struct {
	mu          sync.Mutex
	submissions []submission
	err         error
}

func (r *recordingArbiter) Submit(_ context.Context, auctionID string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.submissions = append(r.submissions, submission{auctionID: auctionID, reason: reason})
	return nil
}

// flakyLedger 對 key 含有 failOn 的移動回傳錯誤
type flakyLedger struct {
	*MemoryLedger
	mu     sync.Mutex
	failOn string
}

var errLedgerDown = errors.New("ledger unavailable")

func (l *flakyLedger) setFailOn(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failOn = s
}

func (l *flakyLedger) shouldFail(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failOn != "" && strings.Contains(key, l.failOn)
}

func (l *flakyLedger) Deposit(ctx context.Context, key string, payer Address, amount *uint256.Int) error {
	if l.shouldFail(key) {
		return errLedgerDown
	}
	return l.MemoryLedger.Deposit(ctx, key, payer, amount)
}

func (l *flakyLedger) Payout(ctx context.Context, key string, recipient Address, amount *uint256.Int) error {
	if l.shouldFail(key) {
		return errLedgerDown
	}
	return l.MemoryLedger.Payout(ctx, key, recipient, amount)
}

func (l *flakyLedger) Refund(ctx context.Context, key string, payer Address, amount *uint256.Int) error {
	if l.shouldFail(key) {
		return errLedgerDown
	}
	return l.MemoryLedger.Refund(ctx, key, payer, amount)
}

// flakyStore 讓接下來 n 次 Update 失敗
type flakyStore struct {
	*MemoryStore
	failures atomic.Int32
}

var errStoreDown = errors.New("store unavailable")

func (s *flakyStore) failUpdates(n int32) {
	s.failures.Store(n)
}

func (s *flakyStore) Update(ctx context.Context, a *Auction) error {
	if s.failures.Add(-1) >= 0 {
		return errStoreDown
	}
	s.failures.Store(0)
	return s.MemoryStore.Update(ctx, a)
}

type testEnv struct {
	engine  *Engine
	ledger  *flakyLedger
	store   *flakyStore
	clock   *fakeClock
	emitter *recordingEmitter
	arbiter *recordingArbiter
}

func newTestEnv(t *testing.T, adjust ...func(*Policy)) *testEnv {
	t.Helper()

	policy := DefaultPolicy()
	policy.FeeRecipient = feeRecipient
	policy.Arbiter = arbiterAddr
	for _, fn := range adjust {
		fn(&policy)
	}

	env := &testEnv{
		ledger:  &flakyLedger{MemoryLedger: NewMemoryLedger()},
		store:   &flakyStore{MemoryStore: NewMemoryStore()},
		clock:   newFakeClock(startTime),
		emitter: &recordingEmitter{},
		arbiter: &recordingArbiter{},
	}
	for _, addr := range []Address{bidder1, bidder2, bidder3} {
		env.ledger.Credit(addr, ether(10))
	}

	engine, err := NewEngine(env.store, env.ledger,
		WithClock(env.clock),
		WithEmitter(env.emitter),
		WithArbiter(env.arbiter),
		WithPolicy(policy),
	)
	require.NoError(t, err)
	env.engine = engine
	return env
}

func (env *testEnv) create(t *testing.T, params CreateParams) *Auction {
	t.Helper()
	a, err := env.engine.Create(context.Background(), params)
	require.NoError(t, err)
	return a
}

// stored 直接讀取儲存層，不經過公開視圖
func (env *testEnv) stored(t *testing.T, id string) *Auction {
	t.Helper()
	a, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	return a
}

func englishParams() CreateParams {
	return CreateParams{
		Type:            TypeEnglish,
		Seller:          seller,
		Title:           "Vintage Watch",
		StartingPrice:   ether(1),
		DurationSeconds: 3600,
	}
}

func dutchParams() CreateParams {
	return CreateParams{
		Type:            TypeDutch,
		Seller:          seller,
		Title:           "Descending Print",
		StartingPrice:   ether(10),
		ReservePrice:    ether(5),
		DurationSeconds: 3600,
		Dutch: &DutchSchedule{
			DecrementAmount:   ether(1),
			DecrementInterval: 60,
		},
	}
}

func sealedParams() CreateParams {
	return CreateParams{
		Type:            TypeSealedBid,
		Seller:          seller,
		Title:           "Sealed Painting",
		StartingPrice:   milliEther(1000),
		ReservePrice:    milliEther(500),
		DurationSeconds: 3600,
	}
}

func fixedParams(quantity, maxPerBuyer uint64) CreateParams {
	return CreateParams{
		Type:            TypeFixedSwap,
		Seller:          seller,
		Title:           "Edition Tokens",
		StartingPrice:   milliEther(100),
		DurationSeconds: 3600,
		Fixed:           &FixedSwapParams{Quantity: quantity, MaxPerBuyer: maxPerBuyer},
	}
}

func physicalItem() Item {
	return Item{
		IsPhysical:      true,
		Name:            "Oil Painting",
		Condition:       "used",
		Dimensions:      "60x40x3 cm",
		Weight:          2500,
		ShippingAddress: "221B Baker Street",
	}
}
