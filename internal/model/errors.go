package model

import "errors"

// Store errors.
var (
	// ErrNotFound is returned by stores when the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned on a unique key conflict.
	ErrAlreadyExists = errors.New("already exists")
)

// Token lifecycle errors. Every error returned by the token service matches
// exactly one of them via errors.Is.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidToken         = errors.New("invalid token")
	ErrExpiredToken         = errors.New("expired token")
	ErrConfiguration        = errors.New("invalid configuration")
	ErrDependencyFailure    = errors.New("internal error")
)

// ErrorKind discriminates token lifecycle failures.
type ErrorKind int

const (
	// KindUnknown is reported for nil errors and errors outside the taxonomy.
	KindUnknown ErrorKind = iota
	KindAuthenticationFailed
	KindInvalidToken
	KindExpiredToken
	KindConfiguration
	KindDependencyFailure
)

var kindNames = map[ErrorKind]string{
	KindUnknown:              "unknown",
	KindAuthenticationFailed: "authentication_failed",
	KindInvalidToken:         "invalid_token",
	KindExpiredToken:         "expired_token",
	KindConfiguration:        "configuration_error",
	KindDependencyFailure:    "dependency_failure",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// KindOf classifies err. Errors that are not part of the taxonomy are
// reported as KindDependencyFailure, nil as KindUnknown.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrAuthenticationFailed):
		return KindAuthenticationFailed
	case errors.Is(err, ErrExpiredToken):
		return KindExpiredToken
	case errors.Is(err, ErrInvalidToken):
		return KindInvalidToken
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindDependencyFailure
	}
}
