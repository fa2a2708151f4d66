package http

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"divvy/internal/core"
	"divvy/internal/ledger"
	applog "divvy/internal/log"
)

type userRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type expenseRequest struct {
	ID          string `json:"id,omitempty"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	PayerID     string `json:"payer_id"`
	Date        string `json:"date,omitempty"`
	IsRecurring bool   `json:"is_recurring,omitempty"`
	Frequency   string `json:"frequency,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

type paymentRequest struct {
	FromUserID   string `json:"from_user_id"`
	Amount       string `json:"amount"`
	Counterparty string `json:"counterparty,omitempty"`
}

type offsetRequest struct {
	Counterparty string `json:"counterparty,omitempty"`
}

type debtResponse struct {
	ID          string `json:"id"`
	FromUserID  string `json:"from_user_id"`
	ToUserID    string `json:"to_user_id"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	ExpenseID   string `json:"expense_id"`
	ExpenseDate string `json:"expense_date"`
	IsPaid      bool   `json:"is_paid"`
	PaidAt      string `json:"paid_at,omitempty"`
}

type balanceResponse struct {
	UserID        string `json:"user_id"`
	OwedToMe      string `json:"owed_to_me"`
	OwedByMe      string `json:"owed_by_me"`
	Net           string `json:"net"`
	NetCents      int64  `json:"net_cents"`
	OwedToMeCents int64  `json:"owed_to_me_cents"`
	OwedByMeCents int64  `json:"owed_by_me_cents"`
}

type userResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type expenseResponse struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	PayerID     string `json:"payer_id"`
	Date        string `json:"date,omitempty"`
	IsRecurring bool   `json:"is_recurring,omitempty"`
	Frequency   string `json:"frequency,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

type instanceResponse struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
	Amount     string `json:"amount"`
	Category   string `json:"category"`
	PayerID    string `json:"payer_id"`
	Date       string `json:"date"`
}

func (req expenseRequest) toExpense() (core.Expense, error) {
	amount, err := core.ParseAmount(strings.TrimSpace(req.Amount))
	if err != nil {
		return core.Expense{}, err
	}

	e := core.Expense{
		ID:          strings.TrimSpace(req.ID),
		Amount:      amount,
		Category:    sanitizeInput(req.Category),
		Description: sanitizeInput(req.Description),
		PayerID:     strings.TrimSpace(req.PayerID),
		IsRecurring: req.IsRecurring,
		Frequency:   core.Frequency(strings.TrimSpace(req.Frequency)),
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	if req.Date != "" {
		if e.Date, err = parseDate(req.Date); err != nil {
			return core.Expense{}, err
		}
	}
	if req.StartDate != "" {
		if e.StartDate, err = parseDate(req.StartDate); err != nil {
			return core.Expense{}, err
		}
	}
	if req.EndDate != "" {
		if e.EndDate, err = parseDate(req.EndDate); err != nil {
			return core.Expense{}, err
		}
	}

	return e, e.Validate()
}

func toExpenseResponse(e core.Expense) expenseResponse {
	resp := expenseResponse{
		ID:          e.ID,
		Amount:      e.Amount.String(),
		AmountCents: e.Amount.Cents,
		Category:    e.Category,
		Description: e.Description,
		PayerID:     e.PayerID,
		IsRecurring: e.IsRecurring,
		Frequency:   string(e.Frequency),
	}
	if !e.Date.IsZero() {
		resp.Date = e.Date.Format("2006-01-02")
	}
	if !e.StartDate.IsZero() {
		resp.StartDate = e.StartDate.Format("2006-01-02")
	}
	if !e.EndDate.IsZero() {
		resp.EndDate = e.EndDate.Format("2006-01-02")
	}
	return resp
}

func toDebtResponse(d core.Debt) debtResponse {
	resp := debtResponse{
		ID:          d.ID,
		FromUserID:  d.FromUserID,
		ToUserID:    d.ToUserID,
		Amount:      d.Amount.String(),
		AmountCents: d.Amount.Cents,
		ExpenseID:   d.ExpenseID,
		ExpenseDate: d.ExpenseDate.Format("2006-01-02"),
		IsPaid:      d.IsPaid,
	}
	if !d.PaidAt.IsZero() {
		resp.PaidAt = d.PaidAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

func toDebtResponses(debts []core.Debt) []debtResponse {
	out := make([]debtResponse, 0, len(debts))
	for _, d := range debts {
		out = append(out, toDebtResponse(d))
	}
	return out
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.Roster(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse{ID: u.ID, Name: u.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	u := core.User{ID: strings.TrimSpace(req.ID), Name: sanitizeInput(req.Name)}
	if err := u.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.service.AddUser(r.Context(), u); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: u.ID, Name: u.Name})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	e, err := req.toExpense()
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	debts, err := s.service.CreateExpense(r.Context(), e)
	if err != nil {
		writeError(w, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expense created",
		applog.FieldExpenseID, e.ID,
		applog.FieldCategory, e.Category,
		applog.FieldAmountCents, e.Amount.Cents)

	writeJSON(w, http.StatusCreated, map[string]any{
		"expense_id": e.ID,
		"debts":      toDebtResponses(debts),
	})
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.service.GetExpense(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(e))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	req.ID = r.PathValue("id")

	e, err := req.toExpense()
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	debts, err := s.service.UpdateExpense(r.Context(), e)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"expense_id": e.ID,
		"debts":      toDebtResponses(debts),
	})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDebts(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	debts := s.service.ListDebts(r.Context(), userID)
	writeJSON(w, http.StatusOK, toDebtResponses(debts))
}

func (s *Server) handleMarkDebtPaid(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.MarkDebtPaid(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Debt marked paid",
		applog.NewFields().WithDebt(d.ID, d.Amount.Cents).WithOperation(applog.OpSettle).ToSlice()...)

	writeJSON(w, http.StatusOK, toDebtResponse(d))
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if userID := strings.TrimSpace(r.URL.Query().Get("user")); userID != "" {
		writeJSON(w, http.StatusOK, toBalanceResponse(s.service.BalanceFor(ctx, userID)))
		return
	}

	users, err := s.service.Roster(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	balances := make([]balanceResponse, 0, len(users))
	for _, u := range users {
		balances = append(balances, toBalanceResponse(s.service.BalanceFor(ctx, u.ID)))
	}
	writeJSON(w, http.StatusOK, balances)
}

func toBalanceResponse(b ledger.Balance) balanceResponse {
	return balanceResponse{
		UserID:        b.UserID,
		OwedToMe:      b.OwedToMe.String(),
		OwedByMe:      b.OwedByMe.String(),
		Net:           b.Net.String(),
		NetCents:      b.Net.Cents,
		OwedToMeCents: b.OwedToMe.Cents,
		OwedByMeCents: b.OwedByMe.Cents,
	}
}

func (s *Server) handleApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.FromUserID) == "" {
		writeBadRequest(w, "from_user_id is required")
		return
	}

	amount, err := core.ParseAmount(strings.TrimSpace(req.Amount))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	scope := ledger.Scope{Counterparty: strings.TrimSpace(req.Counterparty)}
	res, err := s.service.ApplyPayment(r.Context(), req.FromUserID, amount, scope)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"applied":   res.Applied.String(),
		"unapplied": res.Unapplied.String(),
		"closed":    toDebtResponses(res.Closed),
		"reduced":   toDebtResponses(res.Reduced),
	})
}

func (s *Server) handleAutoOffset(w http.ResponseWriter, r *http.Request) {
	var req offsetRequest
	if r.ContentLength > 0 {
		if err := readJSON(r, &req); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	scope := ledger.Scope{Counterparty: strings.TrimSpace(req.Counterparty)}
	res, err := s.service.AutoOffset(r.Context(), scope)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pairs_offset": res.PairsOffset,
		"settled":      toDebtResponses(res.Settled),
		"residual":     toDebtResponses(res.ResidualDebts),
	})
}

func (s *Server) handleExpandRecurring(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)

	instances, err := s.recurring.ExpandMonth(r.Context(), month, year)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]instanceResponse, 0, len(instances))
	for _, inst := range instances {
		out = append(out, instanceResponse{
			ID:         inst.ID,
			TemplateID: inst.TemplateID,
			Amount:     inst.Amount.String(),
			Category:   inst.Category,
			PayerID:    inst.PayerID,
			Date:       inst.Date.Format("2006-01-02"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
