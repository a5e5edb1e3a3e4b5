package core

import "fmt"

// ValidationError is locally detectable bad input. It never reaches the network.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type AuthErrorKind int

const (
	// AuthInvalid means the collaborator rejected the credentials or replied with garbage.
	AuthInvalid AuthErrorKind = iota + 1
	// AuthUnreachable means the request never got a response.
	AuthUnreachable
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthInvalid:
		return "invalid"
	case AuthUnreachable:
		return "unreachable"
	}
	return "unknown"
}

type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// FetchError is a failed collaborator call. Detail, when present, is the
// human-readable message from the response body and is surfaced verbatim.
type FetchError struct {
	Op      string
	Status  int
	Detail  string
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Message
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
