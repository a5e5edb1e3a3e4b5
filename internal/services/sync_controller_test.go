package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ledgerlite/internal/core"
	"ledgerlite/internal/filter"
	"ledgerlite/internal/remote/fake"
	"ledgerlite/internal/remote/httpapi"
	"ledgerlite/internal/reports"
	"ledgerlite/internal/session"
	"ledgerlite/internal/storage/memory"
	"ledgerlite/internal/transactions"
)

const (
	pathTransactions = "/api/transactions"
	pathStatement    = "/api/reports/income-statement"
)

type harness struct {
	srv    *fake.Server
	store  *memory.Store
	filter *filter.Filter
	ctrl   *SyncController
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := fake.New()
	srv.RegisterWithID("1", "a@b.com", "x", "A")
	ts := httptest.NewServer(srv.Handler(nil))
	t.Cleanup(ts.Close)

	client := httpapi.New(ts.URL, nil)
	store := memory.New()
	sess := session.New(client, store, nil)
	f := filter.New()
	txs := transactions.New(client, sess, nil)
	txs.SetClock(func() core.Date { return core.NewDate(2024, 1, 20) })
	agg := reports.New(client, sess, nil)

	return &harness{
		srv:    srv,
		store:  store,
		filter: f,
		ctrl:   NewSyncController(sess, f, txs, agg, nil),
	}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	if _, err := h.ctrl.Login(context.Background(), core.Credentials{Email: "a@b.com", Password: "x"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	h.srv.ResetRequests()
}

func (h *harness) seed(desc string, amount float64, typ core.TransactionType, date core.Date) core.Transaction {
	return h.srv.Seed(core.NewTransaction{Description: desc, Amount: core.NewMoney(amount), Type: typ, Date: date})
}

func TestLoginTriggersUnboundedRefresh(t *testing.T) {
	h := newHarness(t)
	h.seed("Salary", 1000, core.Income, core.NewDate(2024, 1, 1))

	id, err := h.ctrl.Login(context.Background(), core.Credentials{Email: "a@b.com", Password: "x"})
	if err != nil {
		t.Fatal(err)
	}
	want := core.Identity{ID: "1", Email: "a@b.com", Name: "A"}
	if id != want {
		t.Errorf("identity = %+v", id)
	}

	st := h.ctrl.Snapshot()
	if !st.Authenticated || st.Loading || st.Error != "" {
		t.Errorf("state = %+v", st)
	}
	if len(st.Transactions) != 1 || !st.Statement.Income.Equal(core.NewMoney(1000)) {
		t.Errorf("data not loaded: %+v", st)
	}

	lists := h.srv.RequestsTo(http.MethodGet, pathTransactions)
	statements := h.srv.RequestsTo(http.MethodGet, pathStatement)
	if len(lists) != 1 || len(statements) != 1 {
		t.Fatalf("loads = %d transactions, %d statements; want one each", len(lists), len(statements))
	}
	if len(lists[0].Query) != 0 || len(statements[0].Query) != 0 {
		t.Errorf("queries = %v, %v; want no date bounds", lists[0].Query, statements[0].Query)
	}
}

func TestLoginFailure(t *testing.T) {
	h := newHarness(t)

	_, err := h.ctrl.Login(context.Background(), core.Credentials{Email: "a@b.com", Password: "wrong"})
	var authErr *core.AuthError
	if !errors.As(err, &authErr) || authErr.Kind != core.AuthInvalid {
		t.Fatalf("err = %v", err)
	}
	st := h.ctrl.Snapshot()
	if st.Authenticated || st.LoginError != "Invalid email or password" || st.Error != "Invalid email or password" {
		t.Errorf("state = %+v", st)
	}
	if n := len(h.srv.RequestsTo(http.MethodGet, pathTransactions)); n != 0 {
		t.Errorf("loaded %d times without a session", n)
	}
}

func TestCreateRefreshesFromCollaborator(t *testing.T) {
	h := newHarness(t)
	h.seed("Gas", 10, core.Expense, core.NewDate(2024, 1, 2))
	h.login(t)

	tx, err := h.ctrl.Create(context.Background(), core.Draft{
		Description: "Flour",
		Amount:      "12.50",
		Type:        core.Expense,
		Date:        "2024-01-05",
	})
	if err != nil {
		t.Fatal(err)
	}

	st := h.ctrl.Snapshot()
	var found bool
	for _, got := range st.Transactions {
		if got.ID == tx.ID {
			found = true
			if !got.Amount.Equal(core.NewMoney(12.5)) || got.Type != core.Expense || got.Date.String() != "2024-01-05" {
				t.Errorf("refreshed record = %+v", got)
			}
		}
	}
	if !found {
		t.Fatalf("created record missing from refreshed list %+v", st.Transactions)
	}
	if !st.Statement.Expenses.Equal(core.NewMoney(22.5)) {
		t.Errorf("expenses = %s, want collaborator total 22.5", st.Statement.Expenses)
	}
	if st.Loading || st.Error != "" {
		t.Errorf("state = %+v", st)
	}
	if n := len(h.srv.RequestsTo(http.MethodGet, pathStatement)); n != 1 {
		t.Errorf("statement loads = %d", n)
	}
}

func TestInvalidDraftSendsNothing(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.srv.FailNext(http.MethodGet, pathStatement, http.StatusInternalServerError, "earlier failure")
	h.ctrl.Refresh(context.Background())
	h.srv.ResetRequests()

	drafts := []core.Draft{
		{Description: "", Amount: "5", Type: core.Expense},
		{Description: "x", Amount: "0", Type: core.Expense},
		{Description: "x", Amount: "-2", Type: core.Income},
	}
	for _, d := range drafts {
		_, err := h.ctrl.Create(context.Background(), d)
		var ve *core.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Create(%+v) err = %v, want ValidationError", d, err)
		}
	}

	if n := len(h.srv.Requests()); n != 0 {
		t.Errorf("issued %d requests", n)
	}
	if got := h.ctrl.Error(); got != "earlier failure" {
		t.Errorf("shared error = %q, validation must not touch it", got)
	}
}

func TestMutationRefreshUsesLiveFilter(t *testing.T) {
	h := newHarness(t)
	tx := h.seed("Rent", 400, core.Expense, core.NewDate(2024, 1, 15))
	h.login(t)

	h.ctrl.ApplyFilter(context.Background(), core.DateRange{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 1, 31)})
	h.srv.ResetRequests()

	later := core.DateRange{Start: core.NewDate(2024, 2, 1)}
	h.srv.SetHook(func(r *http.Request) {
		if r.Method == http.MethodDelete {
			h.filter.Set(later)
		}
	})

	if err := h.ctrl.Delete(context.Background(), tx.ID); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{pathTransactions, pathStatement} {
		reqs := h.srv.RequestsTo(http.MethodGet, path)
		if len(reqs) != 1 {
			t.Fatalf("%s loads = %d", path, len(reqs))
		}
		if reqs[0].Query.Get("start_date") != "2024-02-01" || reqs[0].Query.Has("end_date") {
			t.Errorf("%s query = %v, want the filter current after the delete", path, reqs[0].Query)
		}
	}
}

func TestCreateRefreshUsesLiveFilter(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.ctrl.ApplyFilter(context.Background(), core.DateRange{End: core.NewDate(2023, 12, 31)})
	h.srv.ResetRequests()

	h.srv.SetHook(func(r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == pathTransactions {
			h.filter.Clear()
		}
	})
	if _, err := h.ctrl.Create(context.Background(), core.Draft{Description: "Tip", Amount: "2", Type: core.Income}); err != nil {
		t.Fatal(err)
	}

	reqs := h.srv.RequestsTo(http.MethodGet, pathTransactions)
	if len(reqs) != 1 || len(reqs[0].Query) != 0 {
		t.Errorf("refresh requests = %+v, want unbounded", reqs)
	}
	if got := h.ctrl.Snapshot().Transactions; len(got) != 1 || got[0].Description != "Tip" {
		t.Errorf("list = %+v", got)
	}
}

func TestClearFilterRequestsNoBounds(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.ctrl.ApplyFilter(context.Background(), core.DateRange{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 1, 31)})
	h.srv.ResetRequests()

	if err := h.ctrl.ClearFilter(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, r := range h.srv.Requests() {
		if r.Query.Has("start_date") || r.Query.Has("end_date") {
			t.Errorf("%s %s carries bounds %v", r.Method, r.Path, r.Query)
		}
	}
	if n := len(h.srv.Requests()); n != 2 {
		t.Errorf("requests = %d, want both endpoints", n)
	}
}

func TestPartialSuccess(t *testing.T) {
	h := newHarness(t)
	h.seed("Salary", 1000, core.Income, core.NewDate(2024, 1, 1))
	h.login(t)
	before := h.ctrl.Snapshot().Statement

	h.seed("Bonus", 50, core.Income, core.NewDate(2024, 1, 2))
	h.srv.FailNext(http.MethodGet, pathStatement, http.StatusInternalServerError, "report engine down")

	err := h.ctrl.Refresh(context.Background())
	if err == nil {
		t.Fatal("Refresh succeeded, want statement failure")
	}

	st := h.ctrl.Snapshot()
	if len(st.Transactions) != 2 {
		t.Errorf("transactions = %d, want the new list retained", len(st.Transactions))
	}
	if st.Error != "report engine down" {
		t.Errorf("error = %q", st.Error)
	}
	if !st.Statement.Income.Equal(before.Income) {
		t.Errorf("statement = %+v, want previous value kept", st.Statement)
	}
	if st.Loading {
		t.Error("still loading")
	}
}

func TestTransactionsFailureKeepsStatement(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.seed("Salary", 1000, core.Income, core.NewDate(2024, 1, 1))
	h.srv.FailNext(http.MethodGet, pathTransactions, http.StatusInternalServerError, "")

	h.ctrl.Refresh(context.Background())

	st := h.ctrl.Snapshot()
	if st.Error != httpapi.MsgLoadTransactions {
		t.Errorf("error = %q", st.Error)
	}
	if !st.Statement.Income.Equal(core.NewMoney(1000)) {
		t.Errorf("statement = %+v, want new value applied", st.Statement)
	}
}

func TestRefreshClearsPreviousError(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.srv.FailNext(http.MethodGet, pathTransactions, http.StatusBadGateway, "gateway")
	h.ctrl.Refresh(context.Background())
	if h.ctrl.Error() != "gateway" {
		t.Fatalf("error = %q", h.ctrl.Error())
	}

	h.ctrl.Refresh(context.Background())
	if h.ctrl.Error() != "" {
		t.Errorf("error = %q after a clean refresh", h.ctrl.Error())
	}
}

func TestDeleteNotFound(t *testing.T) {
	h := newHarness(t)
	h.seed("Rent", 400, core.Expense, core.NewDate(2024, 1, 15))
	h.login(t)
	h.ctrl.Refresh(context.Background())
	h.srv.ResetRequests()
	before := h.ctrl.Snapshot().Transactions

	h.srv.FailNext(http.MethodDelete, pathTransactions+"/tx-9", http.StatusNotFound, "not found")
	if err := h.ctrl.Delete(context.Background(), "tx-9"); err == nil {
		t.Fatal("Delete succeeded")
	}

	st := h.ctrl.Snapshot()
	if st.Error != "not found" {
		t.Errorf("error = %q, want %q", st.Error, "not found")
	}
	if len(st.Transactions) != len(before) || st.Transactions[0].ID != before[0].ID {
		t.Errorf("transactions = %+v, want untouched", st.Transactions)
	}
	if n := len(h.srv.RequestsTo(http.MethodGet, pathTransactions)); n != 0 {
		t.Errorf("failed mutation triggered %d loads", n)
	}
	if st.Loading {
		t.Error("still loading")
	}
}

func TestCreateFailureSkipsRefresh(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.srv.FailNext(http.MethodPost, pathTransactions, http.StatusBadRequest, "Amount is too large")

	_, err := h.ctrl.Create(context.Background(), core.Draft{Description: "Yacht", Amount: "5", Type: core.Expense})
	if err == nil || h.ctrl.Error() != "Amount is too large" {
		t.Errorf("err = %v, shared = %q", err, h.ctrl.Error())
	}
	if n := len(h.srv.RequestsTo(http.MethodGet, pathTransactions)) + len(h.srv.RequestsTo(http.MethodGet, pathStatement)); n != 0 {
		t.Errorf("refresh issued %d requests", n)
	}
}

func TestLogoutZeroesEverything(t *testing.T) {
	h := newHarness(t)
	h.seed("Salary", 1000, core.Income, core.NewDate(2024, 1, 1))
	h.seed("Rent", 400, core.Expense, core.NewDate(2024, 1, 2))
	h.login(t)
	h.srv.FailNext(http.MethodGet, pathStatement, http.StatusInternalServerError, "x")
	h.ctrl.Refresh(context.Background())

	h.ctrl.Logout(context.Background())

	st := h.ctrl.Snapshot()
	if st.Authenticated || len(st.Transactions) != 0 || !st.Statement.IsZero() || st.Error != "" {
		t.Errorf("state after logout = %+v", st)
	}

	h.srv.ResetRequests()
	h.ctrl.Refresh(context.Background())
	if n := len(h.srv.Requests()); n != 0 {
		t.Errorf("refresh while logged out issued %d requests", n)
	}
	if _, err := h.ctrl.Create(context.Background(), core.Draft{Description: "x", Amount: "1", Type: core.Income}); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Errorf("Create err = %v", err)
	}
}

func TestLogoutDuringRefreshDropsResults(t *testing.T) {
	h := newHarness(t)
	h.seed("Salary", 1000, core.Income, core.NewDate(2024, 1, 1))
	h.login(t)

	var once sync.Once
	h.srv.SetHook(func(r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == pathTransactions {
			once.Do(func() { h.ctrl.Logout(context.Background()) })
		}
	})
	h.ctrl.Refresh(context.Background())

	if got := h.ctrl.Snapshot().Transactions; len(got) != 0 {
		t.Errorf("transactions = %+v after logout", got)
	}
}

func TestRestoreRefreshes(t *testing.T) {
	h := newHarness(t)
	h.seed("Salary", 1000, core.Income, core.NewDate(2024, 1, 1))
	h.login(t)

	// A second controller over the same persisted state, as after a restart.
	client := httpapi.New(serverURL(t, h.srv), nil)
	sess := session.New(client, h.store, nil)
	f := filter.New()
	ctrl := NewSyncController(sess, f, transactions.New(client, sess, nil), reports.New(client, sess, nil), nil)

	id, ok := ctrl.Restore(context.Background())
	if !ok || id.ID != "1" {
		t.Fatalf("Restore = %+v, %v", id, ok)
	}
	if got := ctrl.Snapshot(); len(got.Transactions) != 1 || !got.Authenticated {
		t.Errorf("state = %+v", got)
	}
}

func serverURL(t *testing.T, srv *fake.Server) string {
	t.Helper()
	ts := httptest.NewServer(srv.Handler(nil))
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestLoadingDuringRefresh(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.srv.SetHook(func(r *http.Request) {
		if r.URL.Path == pathStatement {
			once.Do(func() { close(started) })
			<-release
		}
	})

	done := make(chan struct{})
	go func() {
		h.ctrl.Refresh(context.Background())
		close(done)
	}()

	<-started
	if !h.ctrl.Loading() {
		t.Error("not loading while a fetch is in flight")
	}
	close(release)
	<-done
	if h.ctrl.Loading() {
		t.Error("still loading after both fetches settled")
	}
}

func TestRefreshFetchesConcurrently(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	arrived := map[string]chan struct{}{
		pathTransactions: make(chan struct{}),
		pathStatement:    make(chan struct{}),
	}
	other := map[string]string{pathTransactions: pathStatement, pathStatement: pathTransactions}
	var (
		mu      sync.Mutex
		seen    = make(map[string]bool)
		overlap = make(map[string]bool)
	)
	h.srv.SetHook(func(r *http.Request) {
		if r.Method != http.MethodGet || arrived[r.URL.Path] == nil {
			return
		}
		mu.Lock()
		if !seen[r.URL.Path] {
			seen[r.URL.Path] = true
			close(arrived[r.URL.Path])
		}
		mu.Unlock()

		// Each fetch is held until the other one reaches the collaborator.
		select {
		case <-arrived[other[r.URL.Path]]:
			mu.Lock()
			overlap[r.URL.Path] = true
			mu.Unlock()
		case <-time.After(2 * time.Second):
		}
	})

	h.ctrl.Refresh(context.Background())

	mu.Lock()
	defer mu.Unlock()
	for _, path := range []string{pathTransactions, pathStatement} {
		if !overlap[path] {
			t.Errorf("%s was not in flight together with %s", path, other[path])
		}
	}
	if h.ctrl.Loading() {
		t.Error("still loading after both fetches settled")
	}
}

func TestDismissError(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.srv.FailNext(http.MethodGet, pathStatement, http.StatusInternalServerError, "boom")
	h.ctrl.Refresh(context.Background())

	h.ctrl.DismissError()
	if h.ctrl.Error() != "" {
		t.Errorf("error = %q", h.ctrl.Error())
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) PublishMutation(_ context.Context, op, id, user string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, op+":"+id+":"+user)
	return p.err
}

func TestMutationEvents(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	h.ctrl.SetPublisher(pub)

	tx, err := h.ctrl.Create(context.Background(), core.Draft{Description: "Tea", Amount: "3", Type: core.Expense})
	if err != nil {
		t.Fatalf("publisher failure leaked into Create: %v", err)
	}
	if err := h.ctrl.Delete(context.Background(), tx.ID); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.Error() != "" {
		t.Errorf("shared error = %q", h.ctrl.Error())
	}

	want := []string{"create:" + tx.ID + ":1", "delete:" + tx.ID + ":1"}
	if len(pub.events) != 2 || pub.events[0] != want[0] || pub.events[1] != want[1] {
		t.Errorf("events = %v, want %v", pub.events, want)
	}
}
