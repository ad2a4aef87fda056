package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/ledger"
	"github.com/concierge-labs/concierge/internal/model"
)

// Ledger actions accepted by POST /ledger.
const (
	ActionCheck          = "check"
	ActionCreate         = "create"
	ActionDeposit        = "deposit"
	ActionFundSubAccount = "fundSubAccount"
)

type ledgerRequest struct {
	Action     string              `json:"action"`
	Amount     decimal.NullDecimal `json:"amount"`
	SubAccount string              `json:"subAccount"`
}

type ledgerResponse struct {
	Exists     *bool             `json:"exists,omitempty"`
	Created    bool              `json:"created,omitempty"`
	Deposited  bool              `json:"deposited,omitempty"`
	Funded     bool              `json:"funded,omitempty"`
	SubAccount string            `json:"subAccount,omitempty"`
	Amount     string            `json:"amount,omitempty"`
	Ledger     *model.LedgerView `json:"ledger,omitempty"`
}

func (r ledgerRequest) hasAmount() bool {
	return r.Amount.Valid && !r.Amount.Decimal.IsZero()
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, msgMissingAction)
		return
	}

	log := zap.L().With(zap.String("component", "api.ledger"), zap.String("action", req.Action))
	ctx := r.Context()

	switch req.Action {
	case ActionCheck:
		bal, exists, err := s.deps.Ledger.Check(ctx)
		if err != nil {
			writeFailure(w, err, "Ledger operation failed")
			return
		}
		resp := ledgerResponse{Exists: &exists}
		if exists {
			view := bal.Ledger.View()
			resp.Ledger = &view
		}
		writeJSON(w, http.StatusOK, resp)

	case ActionCreate:
		amount := s.opts.DefaultCreateOG
		if req.hasAmount() {
			amount = req.Amount.Decimal
		}
		wei, err := ledger.OGToWei(amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		bal, err := s.deps.Ledger.Create(ctx, wei)
		if err != nil {
			writeFailure(w, err, "Ledger operation failed")
			return
		}
		log.Info("ledger created", zap.String("amount_og", amount.String()))
		view := bal.Ledger.View()
		writeJSON(w, http.StatusOK, ledgerResponse{Created: true, Ledger: &view})

	case ActionDeposit:
		if !req.hasAmount() {
			writeError(w, http.StatusBadRequest, msgMissingAmount)
			return
		}
		wei, err := ledger.OGToWei(req.Amount.Decimal)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		bal, err := s.deps.Ledger.Deposit(ctx, wei)
		if err != nil {
			writeFailure(w, err, "Ledger operation failed")
			return
		}
		log.Info("ledger deposit", zap.String("amount_og", req.Amount.Decimal.String()))
		view := bal.Ledger.View()
		writeJSON(w, http.StatusOK, ledgerResponse{Deposited: true, Ledger: &view})

	case ActionFundSubAccount:
		if req.SubAccount == "" || !req.hasAmount() {
			writeError(w, http.StatusBadRequest, msgMissingSubAccount)
			return
		}
		if !common.IsHexAddress(req.SubAccount) {
			writeError(w, http.StatusBadRequest, "Invalid subAccount")
			return
		}
		wei, err := ledger.OGToWei(req.Amount.Decimal)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		bal, err := s.deps.Funder.FundProvider(ctx, req.SubAccount, wei)
		if err != nil {
			writeFailure(w, err, "Transfer failed")
			return
		}
		log.Info("sub-account funded",
			zap.String("sub_account", req.SubAccount),
			zap.String("amount_og", req.Amount.Decimal.String()),
		)
		view := bal.Ledger.View()
		writeJSON(w, http.StatusOK, ledgerResponse{
			Funded:     true,
			SubAccount: req.SubAccount,
			Amount:     req.Amount.Decimal.String(),
			Ledger:     &view,
		})

	default:
		writeError(w, http.StatusBadRequest, msgInvalidAction)
	}
}
