package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"bidvault/adapters/bolt"
	"bidvault/adapters/s3"
	"bidvault/auction"
	"bidvault/models"
)

const (
	testIssuer = "bidvault-test"

	operator auction.Address = "0xoperator"
	arbiter  auction.Address = "0xarbiter"
	treasury auction.Address = "0xtreasury"
	seller   auction.Address = "0xseller"
	alice    auction.Address = "0xalice"
	bob      auction.Address = "0xbob"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeUploader struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeUploader) Upload(_ context.Context, r io.Reader) (string, error) {
	data, err := s3.ReadLimited(r, 16)
	if err != nil {
		return "", err
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		return "", s3.ErrUnsupportedImage
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	url := "https://cdn.example.com/items/" + string(rune('a'+len(f.urls))) + ".png"
	f.urls = append(f.urls, url)
	return url, nil
}

type memoryImageLog struct {
	mu      sync.Mutex
	uploads map[auction.Address][]int64
}

func (l *memoryImageLog) CountSince(_ context.Context, uploader auction.Address, since int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, at := range l.uploads[uploader] {
		if at >= since {
			n++
		}
	}
	return n, nil
}

func (l *memoryImageLog) Record(_ context.Context, uploader auction.Address, _ string, at int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.uploads == nil {
		l.uploads = make(map[auction.Address][]int64)
	}
	l.uploads[uploader] = append(l.uploads[uploader], at)
	return nil
}

type fakeTransactions struct {
	rows []models.Transaction
}

func (f *fakeTransactions) ListByAuction(_ context.Context, auctionID string) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, row := range f.rows {
		if row.AuctionID == auctionID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeTransactions) ListByParty(_ context.Context, party auction.Address, offset, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, row := range f.rows {
		if row.Party == string(party) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt > out[j].OccurredAt })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type testEnv struct {
	t        *testing.T
	now      atomic.Int64
	key      *rsa.PrivateKey
	ledger   *bolt.Ledger
	images   *fakeUploader
	imageLog *memoryImageLog
	txs      *fakeTransactions
	router   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		t:        t,
		images:   &fakeUploader{},
		imageLog: &memoryImageLog{},
		txs:      &fakeTransactions{},
	}
	env.now.Store(1_700_000_000)
	clock := auction.ClockFunc(env.now.Load)

	ledger, err := bolt.Open(filepath.Join(t.TempDir(), "ledger.db"), bolt.WithLedgerClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	env.ledger = ledger

	policy := auction.DefaultPolicy()
	policy.FeeRecipient = treasury
	policy.Arbiter = arbiter
	engine, err := auction.NewEngine(auction.NewMemoryStore(), ledger,
		auction.WithClock(clock),
		auction.WithPolicy(policy),
		auction.WithLogger(discardLogger),
	)
	require.NoError(t, err)

	env.key, err = rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	auth, err := NewJWTAuthenticator(&env.key.PublicKey, testIssuer, "")
	require.NoError(t, err)

	server, err := NewServer(engine,
		WithAuthenticator(auth),
		WithImages(env.images, env.imageLog, 2),
		WithTransactions(env.txs),
		WithAccounts(ledger, operator),
		WithServerClock(clock),
		WithServerLogger(discardLogger),
	)
	require.NoError(t, err)
	env.router = server.Router()
	return env
}

func (env *testEnv) advance(seconds int64) {
	env.now.Add(seconds)
}

func (env *testEnv) token(caller auction.Address) string {
	env.t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, JWT{
		Wallet: string(caller),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "user-" + string(caller),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(env.key)
	require.NoError(env.t, err)
	return token
}

// do 送出請求；body 為 []byte 時原樣送出，其餘編碼成 JSON
func (env *testEnv) do(method, path string, caller auction.Address, body any) *httptest.ResponseRecorder {
	env.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(env.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set("Authorization", "Bearer "+env.token(caller))
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) credit(party auction.Address, amount string) {
	env.t.Helper()
	rec := env.do(http.MethodPost, "/ledger/credits", operator, gin.H{"party": party, "amount": amount})
	require.Equal(env.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (env *testEnv) balance(party auction.Address) string {
	env.t.Helper()
	rec := env.do(http.MethodGet, "/ledger/balance", party, nil)
	require.Equal(env.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[balanceResponse](env.t, rec).Balance
}

func (env *testEnv) create(caller auction.Address, body gin.H) auctionResponse {
	env.t.Helper()
	rec := env.do(http.MethodPost, "/auctions", caller, body)
	require.Equal(env.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[auctionResponse](env.t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
