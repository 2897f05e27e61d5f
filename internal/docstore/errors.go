package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
	codeDuplicateKey         = 11000
)

// ConnectivityError means the endpoint could not be reached. Callers may retry.
type ConnectivityError struct {
	Role string
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s endpoint unreachable: %v", e.Role, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// AuthenticationError means the endpoint rejected the supplied credentials.
type AuthenticationError struct {
	Role string
	Err  error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s endpoint rejected credentials: %v", e.Role, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// IsDuplicateKey reports whether a write failure code is a unique index violation.
func IsDuplicateKey(code int) bool {
	return code == codeDuplicateKey
}

// Classify tags driver errors as connectivity or authentication failures of
// the given endpoint role. Other errors are returned unchanged.
func Classify(role string, err error) error {
	if err == nil {
		return nil
	}

	var connErr *ConnectivityError
	var authErr *AuthenticationError
	if errors.As(err, &connErr) || errors.As(err, &authErr) {
		return err
	}

	switch {
	case isAuthFailure(err):
		return &AuthenticationError{Role: role, Err: err}
	case isConnectivityFailure(err):
		return &ConnectivityError{Role: role, Err: err}
	default:
		return err
	}
}

func isAuthFailure(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		if cmdErr.Code == codeAuthenticationFailed || cmdErr.Code == codeUnauthorized {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "auth error") || strings.Contains(msg, "authentication failed")
}

func isConnectivityFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var selectionErr topology.ServerSelectionError
	var connErr topology.ConnectionError
	switch {
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return true
	case errors.Is(err, mongo.ErrClientDisconnected), errors.Is(err, topology.ErrServerSelectionTimeout):
		return true
	case errors.As(err, &selectionErr), errors.As(err, &connErr):
		return true
	}
	return false
}
