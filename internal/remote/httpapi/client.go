// Package httpapi talks to the collaborator's JSON API over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ledgerlite/internal/core"
	applog "ledgerlite/internal/log"
	"ledgerlite/internal/middleware/trace"
	"ledgerlite/internal/remote"
)

const (
	pathLogin           = "/api/auth/login"
	pathTransactions    = "/api/transactions"
	pathIncomeStatement = "/api/reports/income-statement"

	maxBodyBytes = 1 << 20
)

// Messages surfaced when the response carries no detail.
const (
	MsgInvalidLogin      = "Invalid email or password"
	MsgLoginUnreachable  = "Connection error. Please check if the server is running."
	MsgLoadTransactions  = "Failed to load transactions"
	MsgLoadStatement     = "Failed to load income statement"
	MsgCreateTransaction = "Error creating transaction"
	MsgDeleteTransaction = "Error deleting transaction"

	msgTransactionsUnreachable = "Error loading transactions. Please check if the server is running."
	msgStatementUnreachable    = "Error loading income statement"
)

type Client struct {
	baseURL string
	http    *http.Client
}

// Ensure interface conformance
var _ remote.Collaborator = (*Client)(nil)

// New creates a client for baseURL. A nil httpClient gets NewHTTPClient defaults.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(30*time.Second, nil)
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
	}
}

// NewHTTPClient creates an HTTP client with connection pooling and the
// transport-boundary timeout. Every request goes through the trace transport.
func NewHTTPClient(timeout time.Duration, logger *applog.Logger) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: trace.NewTransport(transport, logger),
		Timeout:   timeout,
	}
}

type loginResponse struct {
	Success bool          `json:"success"`
	User    core.Identity `json:"user"`
}

type createResponse struct {
	ID string `json:"id"`
}

func (c *Client) Login(ctx context.Context, creds core.Credentials) (core.Identity, error) {
	status, body, err := c.do(ctx, http.MethodPost, pathLogin, nil, creds)
	if err != nil {
		return core.Identity{}, &core.AuthError{Kind: core.AuthUnreachable, Message: MsgLoginUnreachable, Err: err}
	}

	var resp loginResponse
	if jerr := json.Unmarshal(body, &resp); jerr != nil {
		return core.Identity{}, &core.AuthError{Kind: core.AuthInvalid, Message: MsgInvalidLogin, Err: fmt.Errorf("decode login response: %w", jerr)}
	}
	if !isSuccess(status) || !resp.Success || resp.User.IsZero() {
		msg := extractDetail(body)
		if msg == "" {
			msg = MsgInvalidLogin
		}
		return core.Identity{}, &core.AuthError{Kind: core.AuthInvalid, Message: msg}
	}
	return resp.User, nil
}

func (c *Client) ListTransactions(ctx context.Context, r core.DateRange) ([]core.Transaction, error) {
	status, body, err := c.do(ctx, http.MethodGet, pathTransactions, r.Query(), nil)
	if err != nil {
		return nil, &core.FetchError{Op: applog.OpLoad, Message: msgTransactionsUnreachable, Err: err}
	}
	if !isSuccess(status) {
		return nil, statusError(applog.OpLoad, status, body, MsgLoadTransactions)
	}
	var out []core.Transaction
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &core.FetchError{Op: applog.OpLoad, Status: status, Message: MsgLoadTransactions, Err: fmt.Errorf("decode transactions: %w", err)}
	}
	if out == nil {
		out = []core.Transaction{}
	}
	return out, nil
}

func (c *Client) CreateTransaction(ctx context.Context, nt core.NewTransaction) (string, error) {
	status, body, err := c.do(ctx, http.MethodPost, pathTransactions, nil, nt)
	if err != nil {
		return "", &core.FetchError{Op: applog.OpCreate, Message: MsgCreateTransaction, Err: err}
	}
	if !isSuccess(status) {
		return "", statusError(applog.OpCreate, status, body, MsgCreateTransaction)
	}
	var resp createResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &core.FetchError{Op: applog.OpCreate, Status: status, Message: MsgCreateTransaction, Err: fmt.Errorf("decode create response: %w", err)}
	}
	if resp.ID == "" {
		return "", &core.FetchError{Op: applog.OpCreate, Status: status, Message: MsgCreateTransaction, Err: errors.New("create response carries no id")}
	}
	return resp.ID, nil
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	status, body, err := c.do(ctx, http.MethodDelete, pathTransactions+"/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return &core.FetchError{Op: applog.OpDelete, Message: MsgDeleteTransaction, Err: err}
	}
	if !isSuccess(status) {
		return statusError(applog.OpDelete, status, body, MsgDeleteTransaction)
	}
	return nil
}

func (c *Client) IncomeStatement(ctx context.Context, r core.DateRange) (core.IncomeStatement, error) {
	status, body, err := c.do(ctx, http.MethodGet, pathIncomeStatement, r.Query(), nil)
	if err != nil {
		return core.IncomeStatement{}, &core.FetchError{Op: applog.OpLoad, Message: msgStatementUnreachable, Err: err}
	}
	if !isSuccess(status) {
		return core.IncomeStatement{}, statusError(applog.OpLoad, status, body, MsgLoadStatement)
	}
	var st core.IncomeStatement
	if err := json.Unmarshal(body, &st); err != nil {
		return core.IncomeStatement{}, &core.FetchError{Op: applog.OpLoad, Status: status, Message: MsgLoadStatement, Err: fmt.Errorf("decode income statement: %w", err)}
	}
	return st, nil
}

// do performs one request. A non-nil error means no response was received.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (int, []byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func statusError(op string, status int, body []byte, fallback string) *core.FetchError {
	return &core.FetchError{
		Op:      op,
		Status:  status,
		Detail:  extractDetail(body),
		Message: fallback,
		Err:     errors.New(http.StatusText(status)),
	}
}

// extractDetail returns the body's "detail" when it is a plain string.
func extractDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(envelope.Detail, &detail); err != nil {
		return ""
	}
	return strings.TrimSpace(detail)
}
