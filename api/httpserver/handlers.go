package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leviathan-news/auction-block/directory"
	"github.com/leviathan-news/auction-block/house"
	"github.com/leviathan-news/auction-block/token"
)

// DirectoryHandler exposes a Directory over HTTP. The read API is safe to
// serve publicly; the POST operations act on behalf of the account named in
// the request body and are meant for trusted deployments sitting behind
// authentication.
type DirectoryHandler struct {
	dir *directory.Directory
	log *slog.Logger
}

// NewDirectoryHandler creates a handler for the given directory.
func NewDirectoryHandler(dir *directory.Directory, log *slog.Logger) *DirectoryHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DirectoryHandler{dir: dir, log: log}
}

// RegisterRoutes registers the directory API with the router.
func (h *DirectoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)
	r.Get("/auctions", h.handleActiveAuctions)
	r.Get("/houses/{house}/auctions/{id}", h.handleAuctionDetail)
	r.Get("/houses/{house}/accounts/{account}/pending", h.handlePendingReturns)
	r.Get("/quotes/{token}/dy", h.handleQuoteDY)
	r.Get("/quotes/{token}/dx", h.handleQuoteDX)
	r.Get("/quotes/{token}/safe-dx", h.handleQuoteSafeDX)

	r.Post("/houses/{house}/auctions/{id}/bids", h.handleCreateBid)
	r.Post("/houses/{house}/auctions/{id}/settle", h.handleSettle)
	r.Post("/houses/{house}/withdrawals", h.handleWithdraw)
}

type statusResponse struct {
	Current   bool     `json:"current"`
	Successor string   `json:"successor,omitempty"`
	Houses    []string `json:"houses"`
}

func (h *DirectoryHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, statusResponse{
		Current:   h.dir.IsCurrent(),
		Successor: h.dir.Successor(),
		Houses:    h.dir.Houses(),
	})
}

func (h *DirectoryHandler) handleActiveAuctions(w http.ResponseWriter, r *http.Request) {
	active := h.dir.ActiveAuctions()
	if active == nil {
		active = []directory.HouseAuctions{}
	}
	h.writeJSON(w, http.StatusOK, active)
}

type auctionDetailResponse struct {
	House           string        `json:"house"`
	ID              uint64        `json:"id"`
	Bidder          string        `json:"bidder,omitempty"`
	Amount          string        `json:"amount"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Settled         bool          `json:"settled"`
	Live            bool          `json:"live"`
	RemainingTime   time.Duration `json:"remaining_seconds"`
	MinimumTotalBid string        `json:"minimum_total_bid,omitempty"`
	Metadata        string        `json:"metadata,omitempty"`
}

func (h *DirectoryHandler) handleAuctionDetail(w http.ResponseWriter, r *http.Request) {
	hs, id, ok := h.houseAndID(w, r)
	if !ok {
		return
	}

	a, err := hs.Auction(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	live, _ := hs.IsLive(id)
	remaining, _ := hs.RemainingTime(id)

	resp := auctionDetailResponse{
		House:         chi.URLParam(r, "house"),
		ID:            a.ID,
		Bidder:        string(a.Bidder),
		Amount:        a.Amount.String(),
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Settled:       a.Settled,
		Live:          live,
		RemainingTime: remaining / time.Second,
		Metadata:      a.Metadata,
	}
	if min, err := hs.MinimumTotalBid(id); err == nil {
		resp.MinimumTotalBid = min.String()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type pendingResponse struct {
	Account string `json:"account"`
	Pending string `json:"pending"`
}

func (h *DirectoryHandler) handlePendingReturns(w http.ResponseWriter, r *http.Request) {
	hs, err := h.dir.House(chi.URLParam(r, "house"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	account := token.Account(chi.URLParam(r, "account"))
	h.writeJSON(w, http.StatusOK, pendingResponse{
		Account: string(account),
		Pending: hs.PendingReturns(account).String(),
	})
}

type quoteResponse struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	Quote  string `json:"quote"`
}

func (h *DirectoryHandler) handleQuoteDY(w http.ResponseWriter, r *http.Request) {
	h.handleQuote(w, r, h.dir.GetDY)
}

func (h *DirectoryHandler) handleQuoteDX(w http.ResponseWriter, r *http.Request) {
	h.handleQuote(w, r, h.dir.GetDX)
}

func (h *DirectoryHandler) handleQuoteSafeDX(w http.ResponseWriter, r *http.Request) {
	h.handleQuote(w, r, h.dir.SafeGetDX)
}

func (h *DirectoryHandler) handleQuote(w http.ResponseWriter, r *http.Request, quote func(token.Token, *big.Int) (*big.Int, error)) {
	symbol := chi.URLParam(r, "token")
	tok := h.tokenBySymbol(symbol)
	if tok == nil {
		h.writeError(w, directory.ErrUnsupportedToken)
		return
	}
	amount, ok := parseAmount(r.URL.Query().Get("amount"))
	if !ok {
		http.Error(w, `{"error":"invalid amount"}`, http.StatusBadRequest)
		return
	}
	out, err := quote(tok, amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quoteResponse{Token: symbol, Amount: amount.String(), Quote: out.String()})
}

type bidRequest struct {
	Caller      string `json:"caller"`
	OnBehalfOf  string `json:"on_behalf_of,omitempty"`
	Total       string `json:"total,omitempty"`
	Token       string `json:"token,omitempty"`
	TokenAmount string `json:"token_amount,omitempty"`
	MinTotalOut string `json:"min_total_out,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
}

func (h *DirectoryHandler) handleCreateBid(w http.ResponseWriter, r *http.Request) {
	houseName := chi.URLParam(r, "house")
	_, id, ok := h.houseAndID(w, r)
	if !ok {
		return
	}

	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Caller == "" {
		http.Error(w, `{"error":"caller is required"}`, http.StatusBadRequest)
		return
	}
	opts := house.BidOptions{
		OnBehalfOf: token.Account(req.OnBehalfOf),
		Metadata:   req.Metadata,
	}

	var err error
	if req.Token != "" {
		tok := h.tokenBySymbol(req.Token)
		if tok == nil {
			h.writeError(w, directory.ErrUnsupportedToken)
			return
		}
		amount, ok := parseAmount(req.TokenAmount)
		if !ok {
			http.Error(w, `{"error":"invalid token_amount"}`, http.StatusBadRequest)
			return
		}
		var minTotalOut *big.Int
		if req.MinTotalOut != "" {
			minTotalOut, ok = parseAmount(req.MinTotalOut)
			if !ok {
				http.Error(w, `{"error":"invalid min_total_out"}`, http.StatusBadRequest)
				return
			}
		}
		err = h.dir.CreateBidWithToken(token.Account(req.Caller), houseName, id, amount, tok, minTotalOut, opts)
	} else {
		total, ok := parseAmount(req.Total)
		if !ok {
			http.Error(w, `{"error":"invalid total"}`, http.StatusBadRequest)
			return
		}
		err = h.dir.CreateBid(token.Account(req.Caller), houseName, id, total, opts)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (h *DirectoryHandler) handleSettle(w http.ResponseWriter, r *http.Request) {
	houseName := chi.URLParam(r, "house")
	_, id, ok := h.houseAndID(w, r)
	if !ok {
		return
	}

	result, err := h.dir.SettleAuction(houseName, id)
	if err != nil && result.AuctionID == 0 {
		h.writeError(w, err)
		return
	}
	// A non-nil err with a populated result means the settlement went
	// through but a followup (mint, store) failed; report it in-band.
	resp := struct {
		directory.SettlementResult
		Warning string `json:"warning,omitempty"`
	}{SettlementResult: result}
	if err != nil {
		resp.Warning = err.Error()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type withdrawRequest struct {
	Caller     string   `json:"caller"`
	OnBehalfOf string   `json:"on_behalf_of,omitempty"`
	AuctionIDs []uint64 `json:"auction_ids"`
}

type withdrawResponse struct {
	Amount string `json:"amount"`
}

func (h *DirectoryHandler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	houseName := chi.URLParam(r, "house")

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Caller == "" || len(req.AuctionIDs) == 0 {
		http.Error(w, `{"error":"caller and auction_ids are required"}`, http.StatusBadRequest)
		return
	}

	amount, err := h.dir.WithdrawMany(token.Account(req.Caller), houseName, req.AuctionIDs, token.Account(req.OnBehalfOf))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, withdrawResponse{Amount: amount.String()})
}

func (h *DirectoryHandler) houseAndID(w http.ResponseWriter, r *http.Request) (*house.House, uint64, bool) {
	hs, err := h.dir.House(chi.URLParam(r, "house"))
	if err != nil {
		h.writeError(w, err)
		return nil, 0, false
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid auction id"}`, http.StatusBadRequest)
		return nil, 0, false
	}
	return hs, id, true
}

func (h *DirectoryHandler) tokenBySymbol(symbol string) token.Token {
	for _, tok := range h.dir.SupportedTokens() {
		if tok.Symbol() == symbol {
			return tok
		}
	}
	return nil
}

func parseAmount(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, false
	}
	return amount, true
}

func (h *DirectoryHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encoding response", "err", err)
	}
}

// writeError maps engine errors onto HTTP statuses.
func (h *DirectoryHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, directory.ErrHouseNotFound),
		errors.Is(err, house.ErrAuctionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, directory.ErrNotApproved),
		errors.Is(err, directory.ErrNotOwner),
		errors.Is(err, house.ErrNotApproved),
		errors.Is(err, house.ErrNotOwner),
		errors.Is(err, house.ErrNotManager):
		status = http.StatusForbidden
	case errors.Is(err, house.ErrPaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, house.ErrAuctionSettled),
		errors.Is(err, house.ErrAuctionNotEnded),
		errors.Is(err, house.ErrAuctionExpired):
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
