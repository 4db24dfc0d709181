package http

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/service"
)

type authResponse struct {
	Token   string          `json:"token"`
	Account *domain.Account `json:"account"`
}

type balanceResponse struct {
	AccountID int64           `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

type leadsResponse struct {
	Leads []domain.Lead `json:"leads"`
	Total int32         `json:"total"`
}

type purchasesResponse struct {
	Purchases []domain.Purchase `json:"purchases"`
	Total     int32             `json:"total"`
}

type ledgerResponse struct {
	AccountID int64                `json:"account_id"`
	Entries   []domain.LedgerEntry `json:"entries"`
}

type notificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Total         int32                 `json:"total"`
}

type duplicateDepositResponse struct {
	ErrorResponse
	Entry *domain.LedgerEntry `json:"entry"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if _, err := h.svc.Accounts.Register(r.Context(), req.Email, req.Name, req.Password, domain.AccountRoleClient); err != nil {
		writeError(w, r, err)
		return
	}
	account, token, err := h.svc.Accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, Account: account})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	account, token, err := h.svc.Accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, Account: account})
}

func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	filter, err := leadFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	leads, total, err := h.svc.Leads.ListAvailableLeads(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if leads == nil {
		leads = []domain.Lead{}
	}
	writeJSON(w, http.StatusOK, leadsResponse{Leads: leads, Total: total})
}

// PurchaseLead buys the lead for the caller and returns the purchase with
// the unredacted lead attached.
func (h *Handler) PurchaseLead(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	leadID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	purchase, err := h.svc.Purchases.Purchase(r.Context(), claims.AccountID, leadID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if lead, err := h.svc.Leads.GetLead(r.Context(), leadID); err == nil {
		purchase.Lead = lead
	} else {
		logger.Warn("Purchased lead could not be loaded for response", "leadID", leadID, "error", err)
	}
	writeJSON(w, http.StatusCreated, purchase)
}

func (h *Handler) MyBalance(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	balance, err := h.svc.Accounts.GetBalance(r.Context(), claims.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: claims.AccountID, Balance: balance})
}

func (h *Handler) MyPurchases(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	page, pageSize, err := paging(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	purchases, total, err := h.svc.Purchases.GetPurchaseHistory(r.Context(), claims.AccountID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if purchases == nil {
		purchases = []domain.Purchase{}
	}
	writeJSON(w, http.StatusOK, purchasesResponse{Purchases: purchases, Total: total})
}

func (h *Handler) MyLedger(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	h.writeLedger(w, r, claims.AccountID)
}

func (h *Handler) MyNotifications(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	page, pageSize, err := paging(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	notes, total, err := h.svc.Notifications.GetNotifications(r.Context(), claims.AccountID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if notes == nil {
		notes = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, notificationsResponse{Notifications: notes, Total: total})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Notifications.MarkAsRead(r.Context(), claims.AccountID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req createLeadRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	lead := req.toDomain()
	if err := h.svc.Leads.CreateLead(r.Context(), lead); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

func (h *Handler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateLeadRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	lead, err := h.svc.Leads.UpdateLeadDetails(r.Context(), id, req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// CreateDeposit credits an account. Replaying an external reference answers
// 409 with the entry that was originally applied.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req service.CreditRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	entry, err := h.svc.Deposits.Credit(r.Context(), req)
	if errors.Is(err, domain.ErrDuplicateDeposit) && entry != nil {
		writeJSON(w, http.StatusConflict, duplicateDepositResponse{
			ErrorResponse: ErrorResponse{Error: err.Error()},
			Entry:         entry,
		})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) RefundPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req refundRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	entry, err := h.svc.Purchases.Refund(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) AccountLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeLedger(w, r, id)
}

// Reconcile replays one account when account_id is given, otherwise all of
// them. Mismatches are reported in the body, not as an error status.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("account_id") != "" {
		accountID, err := queryInt64(r, "account_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		result, err := h.svc.Ledger.Reconcile(r.Context(), accountID)
		if err != nil && !errors.Is(err, domain.ErrLedgerMismatch) {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	report, err := h.svc.Ledger.ReconcileAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeLedger(w http.ResponseWriter, r *http.Request, accountID int64) {
	entries, err := h.svc.Ledger.GetHistory(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, ledgerResponse{AccountID: accountID, Entries: entries})
}
