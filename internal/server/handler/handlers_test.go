package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bellanapoli/bellad/internal/domain"
	"github.com/bellanapoli/bellad/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMarketService struct {
	views map[string]service.MarketView
}

func (f *fakeMarketService) GetByID(_ context.Context, id, _ string) (service.MarketView, error) {
	v, ok := f.views[id]
	if !ok {
		return service.MarketView{}, domain.ErrNotFound
	}
	return v, nil
}

func (f *fakeMarketService) GetBySlug(_ context.Context, slug, _ string) (service.MarketView, error) {
	for _, v := range f.views {
		if v.Market.Slug == slug {
			return v, nil
		}
	}
	return service.MarketView{}, domain.ErrNotFound
}

func (f *fakeMarketService) List(_ context.Context, status domain.MarketStatus, _ domain.ListOpts) ([]service.MarketView, error) {
	if status != "" && !status.Valid() {
		return nil, domain.ErrInvalidMarket
	}
	var out []service.MarketView
	for _, v := range f.views {
		if status == "" || v.Market.Status == status {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeMarketService) Count(context.Context) (int64, error) {
	return int64(len(f.views)), nil
}

func newMarketMux(t *testing.T, svc MarketService) *http.ServeMux {
	t.Helper()
	h := NewMarketHandler(svc, discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets", h.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", h.GetMarket)
	mux.HandleFunc("GET /api/markets/slug/{slug}", h.GetMarketBySlug)
	return mux
}

func TestGetMarket(t *testing.T) {
	svc := &fakeMarketService{views: map[string]service.MarketView{
		"m1": {Market: domain.Market{ID: "m1", Slug: "derby", Status: domain.MarketStatusActive}},
	}}
	mux := newMarketMux(t, svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/markets/m1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var view service.MarketView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if view.Market.Slug != "derby" {
		t.Errorf("slug = %q, want derby", view.Market.Slug)
	}
}

func TestGetMarketNotFound(t *testing.T) {
	mux := newMarketMux(t, &fakeMarketService{views: map[string]service.MarketView{}})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/markets/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListMarketsRejectsUnknownStatus(t *testing.T) {
	mux := newMarketMux(t, &fakeMarketService{views: map[string]service.MarketView{}})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/markets?status=open", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetMarketBySlug(t *testing.T) {
	svc := &fakeMarketService{views: map[string]service.MarketView{
		"m1": {Market: domain.Market{ID: "m1", Slug: "derby"}},
	}}
	mux := newMarketMux(t, svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/markets/slug/derby", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

type fakeBetService struct {
	placeErr error
	claimErr error
	placed   []service.PlaceBetInput
}

func (f *fakeBetService) PlaceBet(_ context.Context, in service.PlaceBetInput) (domain.UserBet, error) {
	if f.placeErr != nil {
		return domain.UserBet{}, f.placeErr
	}
	f.placed = append(f.placed, in)
	return domain.UserBet{
		ID:       "bet-1",
		MarketID: in.MarketID,
		Wallet:   in.Wallet,
		Amount:   in.Amount,
		Side:     in.Side,
	}, nil
}

func (f *fakeBetService) RecordClaim(context.Context, string, string, service.ClaimKind, string) error {
	return f.claimErr
}

func (f *fakeBetService) ListByWallet(context.Context, string, domain.ListOpts) ([]domain.UserBet, error) {
	return nil, nil
}

func (f *fakeBetService) TopBettors(context.Context, string, int) ([]domain.UserBet, error) {
	return nil, nil
}

func newBetMux(t *testing.T, svc BetService) *http.ServeMux {
	t.Helper()
	h := NewBetHandler(svc, discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/markets/{id}/bets", h.PlaceBet)
	mux.HandleFunc("POST /api/markets/{id}/claims", h.RecordClaim)
	mux.HandleFunc("GET /api/bets", h.ListBets)
	return mux
}

func postJSON(mux *http.ServeMux, path, wallet, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if wallet != "" {
		req.Header.Set(walletHeader, wallet)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPlaceBetParsesAmountString(t *testing.T) {
	svc := &fakeBetService{}
	mux := newBetMux(t, svc)

	rec := postJSON(mux, "/api/markets/m1/bets", "0xabc",
		`{"side":"yes","amount":"1500000000000000000","tx_hash":"0xdeadbeef"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(svc.placed) != 1 {
		t.Fatalf("placed %d bets, want 1", len(svc.placed))
	}
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	if svc.placed[0].Amount.Cmp(want) != 0 {
		t.Errorf("amount = %s, want %s", svc.placed[0].Amount, want)
	}
	if svc.placed[0].Wallet != "0xabc" {
		t.Errorf("wallet = %q, want 0xabc", svc.placed[0].Wallet)
	}
}

func TestPlaceBetRejectsBadAmount(t *testing.T) {
	mux := newBetMux(t, &fakeBetService{})

	rec := postJSON(mux, "/api/markets/m1/bets", "0xabc",
		`{"side":"yes","amount":"1.5","tx_hash":"0x1"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPlaceBetErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrWalletRequired, http.StatusUnauthorized},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrBetExists, http.StatusConflict},
		{domain.ErrBettingClosed, http.StatusConflict},
		{domain.ErrChainUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		mux := newBetMux(t, &fakeBetService{placeErr: tt.err})
		rec := postJSON(mux, "/api/markets/m1/bets", "0xabc",
			`{"side":"yes","amount":"100","tx_hash":"0x1"}`)
		if rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestRecordClaimRejectsUnknownKind(t *testing.T) {
	mux := newBetMux(t, &fakeBetService{})

	rec := postJSON(mux, "/api/markets/m1/claims", "0xabc", `{"kind":"bonus","tx_hash":"0x1"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRecordClaimAlreadyClaimed(t *testing.T) {
	mux := newBetMux(t, &fakeBetService{claimErr: domain.ErrAlreadyClaimed})

	rec := postJSON(mux, "/api/markets/m1/claims", "0xabc", `{"kind":"reward","tx_hash":"0x1"}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestListBetsRequiresWallet(t *testing.T) {
	mux := newBetMux(t, &fakeBetService{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/bets", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
