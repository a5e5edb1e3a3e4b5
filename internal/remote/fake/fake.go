// Package fake is an in-memory collaborator speaking the same JSON API as the
// real service. Tests use it through httptest; cmd/ledger-fake serves it.
package fake

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledgerlite/internal/core"
	applog "ledgerlite/internal/log"
	"ledgerlite/internal/middleware/trace"
)

var maxAmount = decimal.RequireFromString("999999999.99")

const maxDescriptionLen = 500

// Request is a recorded inbound call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
}

type user struct {
	identity core.Identity
	password string
}

type record struct {
	tx  core.Transaction
	seq int64
}

type failure struct {
	status int
	body   any
}

type Server struct {
	mu       sync.Mutex
	users    map[string]user
	records  []record
	seq      int64
	requests []Request
	failures map[string][]failure
	hook     func(r *http.Request)
	today    func() core.Date
}

func New() *Server {
	return &Server{
		users:    make(map[string]user),
		failures: make(map[string][]failure),
		today:    core.Today,
	}
}

// Register adds a user that can log in.
func (s *Server) Register(email, password, name string) core.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	id := core.Identity{ID: uuid.NewString(), Email: email, Name: name}
	s.users[email] = user{identity: id, password: password}
	return id
}

// RegisterWithID is Register with a caller-chosen id.
func (s *Server) RegisterWithID(id, email, password, name string) core.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	ident := core.Identity{ID: id, Email: email, Name: name}
	s.users[email] = user{identity: ident, password: password}
	return ident
}

// Seed stores a transaction directly and returns it with its id.
func (s *Server) Seed(nt core.NewTransaction) core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(nt)
}

// FailNext makes the next request matching method and path answer with
// status and {"detail": detail}. An empty detail sends an empty JSON object.
func (s *Server) FailNext(method, path string, status int, detail string) {
	var body any = map[string]string{}
	if detail != "" {
		body = map[string]string{"detail": detail}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], failure{status: status, body: body})
}

// SetHook installs fn to run before every request is handled. Tests use it
// to hold a request open.
func (s *Server) SetHook(fn func(r *http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// SetToday overrides the default transaction date.
func (s *Server) SetToday(fn func() core.Date) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.today = fn
}

// Requests returns a copy of the recorded calls.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns recorded calls for method and path.
func (s *Server) RequestsTo(method, path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// Transactions returns what the store currently holds, newest first.
func (s *Server) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(core.DateRange{})
}

// Handler returns the HTTP API.
func (s *Server) Handler(logger *applog.Logger) http.Handler {
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentFake)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/transactions", s.handleList)
	mux.HandleFunc("POST /api/transactions", s.handleCreate)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDelete)
	mux.HandleFunc("GET /api/reports/income-statement", s.handleStatement)
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	var h http.Handler = s.intercept(mux, logger)
	h = applog.Middleware(logger)(h)
	return trace.Middleware(h)
}

// intercept records the call, runs the hook and serves injected failures.
func (s *Server) intercept(next http.Handler, logger *applog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query()})
		hook := s.hook
		s.mu.Unlock()

		if hook != nil {
			hook(r)
		}

		s.mu.Lock()
		key := r.Method + " " + r.URL.Path
		var f *failure
		if queue := s.failures[key]; len(queue) > 0 {
			f = &queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()

		if f != nil {
			logger.InfoContext(r.Context(), "Injected failure",
				applog.FieldMethod, r.Method,
				applog.FieldURL, r.URL.Path,
				applog.FieldStatusCode, f.status,
				applog.FieldRequestID, trace.GetRequestID(r.Context()))
			writeJSON(w, f.status, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds core.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON data")
		return
	}
	if creds.Email == "" || creds.Password == "" {
		writeDetail(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	s.mu.Lock()
	u, ok := s.users[strings.ToLower(strings.TrimSpace(creds.Email))]
	s.mu.Unlock()
	if !ok || u.password != creds.Password {
		writeDetail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": u.identity})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}
	typ := core.TransactionType(r.URL.Query().Get("transaction_type"))
	if typ != "" && !typ.Valid() {
		writeDetail(w, http.StatusBadRequest, "Invalid transaction type")
		return
	}

	s.mu.Lock()
	list := s.listLocked(rng)
	s.mu.Unlock()

	if typ != "" {
		filtered := list[:0]
		for _, tx := range list {
			if tx.Type == typ {
				filtered = append(filtered, tx)
			}
		}
		list = filtered
	}
	writeJSON(w, http.StatusOK, list)
}

type createRequest struct {
	Description *string               `json:"description"`
	Amount      *json.Number          `json:"amount"`
	Type        *core.TransactionType `json:"transaction_type"`
	Date        string                `json:"transaction_date"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON data")
		return
	}
	switch {
	case req.Description == nil:
		writeDetail(w, http.StatusBadRequest, "description is required")
		return
	case req.Amount == nil:
		writeDetail(w, http.StatusBadRequest, "amount is required")
		return
	case req.Type == nil:
		writeDetail(w, http.StatusBadRequest, "transaction_type is required")
		return
	}
	if !req.Type.Valid() {
		writeDetail(w, http.StatusBadRequest, "Invalid transaction_type. Must be one of: Income, Expense")
		return
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Amount must be a valid number")
		return
	}
	if !amount.IsPositive() {
		writeDetail(w, http.StatusBadRequest, "Amount must be greater than 0")
		return
	}
	if amount.GreaterThan(maxAmount) {
		writeDetail(w, http.StatusBadRequest, "Amount is too large")
		return
	}
	desc := strings.TrimSpace(*req.Description)
	if desc == "" {
		writeDetail(w, http.StatusBadRequest, "Description cannot be empty")
		return
	}
	if utf8.RuneCountInString(*req.Description) > maxDescriptionLen {
		writeDetail(w, http.StatusBadRequest, "Description must be less than 500 characters")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	date := s.today()
	if req.Date != "" {
		if date, err = core.ParseDate(req.Date); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid transaction_date")
			return
		}
	}
	tx := s.insertLocked(core.NewTransaction{
		Description: desc,
		Amount:      core.Money{Decimal: amount.Round(2)},
		Type:        *req.Type,
		Date:        date,
	})
	writeJSON(w, http.StatusOK, map[string]string{"id": tx.ID, "message": "Transaction created successfully"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records {
		if rec.tx.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction deleted successfully"})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Transaction not found")
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	list := s.listLocked(rng)
	s.mu.Unlock()

	income, expenses := decimal.Zero, decimal.Zero
	for _, tx := range list {
		switch tx.Type {
		case core.Income:
			income = income.Add(tx.Amount.Decimal)
		case core.Expense:
			expenses = expenses.Add(tx.Amount.Decimal)
		}
	}
	writeJSON(w, http.StatusOK, core.IncomeStatement{
		Income:    core.Money{Decimal: income.Round(2)},
		Expenses:  core.Money{Decimal: expenses.Round(2)},
		NetIncome: core.Money{Decimal: income.Sub(expenses).Round(2)},
	})
}

func (s *Server) insertLocked(nt core.NewTransaction) core.Transaction {
	s.seq++
	tx := core.Transaction{
		ID:          uuid.NewString(),
		Description: nt.Description,
		Amount:      nt.Amount,
		Type:        nt.Type,
		Date:        nt.Date,
	}
	s.records = append(s.records, record{tx: tx, seq: s.seq})
	return tx
}

// listLocked returns matching transactions, newest date first, then newest insert.
func (s *Server) listLocked(rng core.DateRange) []core.Transaction {
	matched := make([]record, 0, len(s.records))
	for _, rec := range s.records {
		if !rng.Start.IsEmpty() && rec.tx.Date.Before(rng.Start.Time) {
			continue
		}
		if !rng.End.IsEmpty() && rec.tx.Date.After(rng.End.Time) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].tx.Date.Equal(matched[j].tx.Date.Time) {
			return matched[i].tx.Date.After(matched[j].tx.Date.Time)
		}
		return matched[i].seq > matched[j].seq
	})
	out := make([]core.Transaction, len(matched))
	for i, rec := range matched {
		out[i] = rec.tx
	}
	return out
}

func parseRange(w http.ResponseWriter, r *http.Request) (core.DateRange, bool) {
	q := r.URL.Query()
	rng, err := core.ParseDateRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return core.DateRange{}, false
	}
	return rng, true
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
