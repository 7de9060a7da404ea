package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/polycopy/internal/adapters/polymarket"
	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const activityFixture = `[
	{
		"proxyWallet": "0xWhale",
		"timestamp": 1767225660,
		"conditionId": "0xcond",
		"type": "TRADE",
		"size": 20,
		"usdcSize": 8.4,
		"transactionHash": "0xtx2",
		"price": "0.42",
		"asset": "tok_yes",
		"side": "BUY",
		"outcomeIndex": 0,
		"title": "Will it rain?",
		"outcome": "Yes"
	},
	{
		"proxyWallet": "0xWhale",
		"timestamp": 1767225600,
		"type": "TRADE",
		"transactionHash": "0xbroken",
		"side": "BUY"
	},
	{
		"proxyWallet": "0xWhale",
		"timestamp": 1767225500,
		"conditionId": "0xcond",
		"type": "REDEEM",
		"transactionHash": "0xtx0"
	}
]`

func newTestClient(clob, gamma, data *httptest.Server) *polymarket.Client {
	opts := polymarket.Options{}
	if clob != nil {
		opts.CLOBBase = clob.URL
	}
	if gamma != nil {
		opts.GammaBase = gamma.URL
	}
	if data != nil {
		opts.DataBase = data.URL
	}
	return polymarket.NewClient(opts)
}

func jsonHandler(t *testing.T, path, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, path, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func TestFetchActivity_QueryAndMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activity", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "0xwhale", q.Get("user"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "TIMESTAMP", q.Get("sortBy"))
		assert.Equal(t, "DESC", q.Get("sortDirection"))
		w.Write([]byte(activityFixture))
	}))
	defer srv.Close()

	client := newTestClient(nil, nil, srv)
	acts, err := client.FetchActivity(context.Background(), "0xwhale", 10)

	require.NoError(t, err)
	require.Len(t, acts, 2, "el TRADE sin conditionId se descarta")

	a := acts[0]
	assert.Equal(t, "0xwhale", a.Wallet)
	assert.Equal(t, "0xcond", a.ConditionID)
	assert.Equal(t, "tok_yes", a.Asset)
	assert.Equal(t, "Yes", a.Outcome)
	assert.Equal(t, 0, a.OutcomeIndex)
	assert.Equal(t, domain.SideBuy, a.Side)
	assert.True(t, a.IsTrade())
	assert.InDelta(t, 20.0, a.Size, 1e-9)
	assert.InDelta(t, 0.42, a.Price, 1e-9)
	assert.Equal(t, time.Unix(1767225660, 0).UTC(), a.Timestamp)

	assert.False(t, acts[1].IsTrade())
}

func TestFetchActivity_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(nil, nil, srv)
	_, err := client.FetchActivity(context.Background(), "0xwhale", 10)

	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestFetchActivity_ServerErrorIsTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(nil, nil, srv)
	_, err := client.FetchActivity(context.Background(), "0xwhale", 10)

	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, int32(1), calls.Load(), "sin reintentos por defecto")
}

func TestClient_MaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := polymarket.NewClient(polymarket.Options{DataBase: srv.URL, MaxRetries: 1})
	acts, err := client.FetchActivity(context.Background(), "0xwhale", 10)

	require.NoError(t, err)
	assert.Empty(t, acts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchPositions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions", r.URL.Path)
		assert.Equal(t, "0xbot", r.URL.Query().Get("user"))
		w.Write([]byte(`[
			{"asset":"tok_yes","conditionId":"0xc1","size":"12.5","outcome":"Yes","outcomeIndex":0,"title":"M1"},
			{"asset":"tok_no","conditionId":"0xc2","size":3,"outcome":"No","outcomeIndex":1,"title":"M2"},
			{"asset":"orphan","size":1}
		]`))
	}))
	defer srv.Close()

	reader := polymarket.NewPositionReader(newTestClient(nil, nil, srv), "0xbot")
	positions, err := reader.FetchPositions(context.Background())

	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "0xc1", positions[0].ConditionID)
	assert.InDelta(t, 12.5, positions[0].Size, 1e-9)
	assert.Equal(t, 1, positions[1].OutcomeIndex)
	assert.Equal(t, "M2", positions[1].Title)
}

func TestFetchPositions_MissingOutcomeIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"asset":"tok_no","conditionId":"0xc1","size":"5","outcome":"No"},
			{"asset":"tok_yes","conditionId":"0xc2","size":"5","outcome":"YES"},
			{"asset":"tok_x","conditionId":"0xc3","size":"5","outcome":"Trump"}
		]`))
	}))
	defer srv.Close()

	positions, err := newTestClient(nil, nil, srv).FetchPositions(context.Background(), "0xbot")

	require.NoError(t, err)
	require.Len(t, positions, 2, "unknown label without index is dropped")
	assert.Equal(t, 1, positions[0].OutcomeIndex, "No maps to slot 1")
	assert.Equal(t, []domain.IndexSet{2}, domain.BuildIndexSets(positions[:1]))
	assert.Equal(t, 0, positions[1].OutcomeIndex)
}

func TestFetchInstruments_CLOBCaseInsensitive(t *testing.T) {
	clob := httptest.NewServer(jsonHandler(t, "/markets/0xcond", `{
		"condition_id": "0xcond",
		"tokens": [
			{"token_id": "tok_yes", "outcome": "YES", "price": 0.6},
			{"token_id": "tok_no", "outcome": "no", "price": 0.4}
		]
	}`))
	defer clob.Close()

	client := newTestClient(clob, nil, nil)
	pair, err := client.FetchInstruments(context.Background(), "0xcond")

	require.NoError(t, err)
	assert.Equal(t, domain.InstrumentPair{Yes: "tok_yes", No: "tok_no"}, pair)
}

func TestFetchInstruments_FallsBackToGamma(t *testing.T) {
	clob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer clob.Close()
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "0xcond", r.URL.Query().Get("condition_ids"))
		w.Write([]byte(`[{
			"conditionId": "0xCOND",
			"outcomes": "[\"Yes\", \"No\"]",
			"clobTokenIds": "[\"111\", \"222\"]"
		}]`))
	}))
	defer gamma.Close()

	client := newTestClient(clob, gamma, nil)
	pair, err := client.FetchInstruments(context.Background(), "0xcond")

	require.NoError(t, err)
	assert.Equal(t, domain.InstrumentPair{Yes: "111", No: "222"}, pair)
}

func TestFetchInstruments_NotFound(t *testing.T) {
	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	clob := httptest.NewServer(notFound)
	defer clob.Close()
	gamma := httptest.NewServer(jsonHandler(t, "/markets", `[]`))
	defer gamma.Close()

	client := newTestClient(clob, gamma, nil)
	_, err := client.FetchInstruments(context.Background(), "0xcond")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetchInstruments_TransientSkipsGamma(t *testing.T) {
	clob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer clob.Close()
	var gammaCalls atomic.Int32
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gammaCalls.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer gamma.Close()

	client := newTestClient(clob, gamma, nil)
	_, err := client.FetchInstruments(context.Background(), "0xcond")

	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Zero(t, gammaCalls.Load())
}
