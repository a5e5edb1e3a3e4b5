package log

import "ledgerlite/internal/core"

// Common field names for structured logging
const (
	FieldComponent       = "component"
	FieldRequestID       = "request_id"
	FieldMethod          = "method"
	FieldURL             = "url"
	FieldStatusCode      = "status_code"
	FieldDuration        = "duration_ms"
	FieldSuccess         = "success"
	FieldError           = "error"
	FieldOperation       = "operation"
	FieldStartDate       = "start_date"
	FieldEndDate         = "end_date"
	FieldTransactionID   = "transaction_id"
	FieldTransactionType = "transaction_type"
	FieldDescription     = "description"
	FieldAmount          = "amount"
	FieldCount           = "count"
	FieldUserID          = "user_id"
	FieldGeneration      = "generation"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentAPI          = "api"
	ComponentSession      = "session"
	ComponentTransactions = "transactions"
	ComponentReports      = "reports"
	ComponentSync         = "sync"
	ComponentStorage      = "storage"
	ComponentAMQP         = "amqp"
	ComponentBackend      = "backend"
	ComponentConsole      = "console"
	ComponentFake         = "fake"
)

// Operations defines standard operation names
const (
	OpLogin    = "login"
	OpLogout   = "logout"
	OpRestore  = "restore"
	OpLoad     = "load"
	OpCreate   = "create"
	OpDelete   = "delete"
	OpRefresh  = "refresh"
	OpPublish  = "publish"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRange adds the filter bounds, leaving absent ones out.
func (f LogFields) WithRange(r core.DateRange) LogFields {
	if !r.Start.IsEmpty() {
		f[FieldStartDate] = r.Start.String()
	}
	if !r.End.IsEmpty() {
		f[FieldEndDate] = r.End.String()
	}
	return f
}

// WithTransaction adds transaction-related fields
func (f LogFields) WithTransaction(nt core.NewTransaction) LogFields {
	f[FieldDescription] = nt.Description
	f[FieldAmount] = nt.Amount.String()
	f[FieldTransactionType] = string(nt.Type)
	return f
}

// WithTransactionID adds the collaborator-assigned id
func (f LogFields) WithTransactionID(id string) LogFields {
	f[FieldTransactionID] = id
	return f
}

// WithCount adds a result size
func (f LogFields) WithCount(n int) LogFields {
	f[FieldCount] = n
	return f
}

// WithGeneration adds the refresh cycle number
func (f LogFields) WithGeneration(gen uint64) LogFields {
	f[FieldGeneration] = gen
	return f
}

// WithHTTPRequest adds outbound HTTP request fields
func (f LogFields) WithHTTPRequest(method, url string) LogFields {
	f[FieldMethod] = method
	f[FieldURL] = url
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
