package authv1

import (
	"errors"

	"google.golang.org/protobuf/types/known/structpb"
)

// Field names used in Struct payloads.
const (
	FieldEmail        = "email"
	FieldPassword     = "password"
	FieldAccessToken  = "access_token"
	FieldRefreshToken = "refresh_token"
	FieldCSRFToken    = "csrf_token"
	FieldUserID       = "user_id"
	FieldRoles        = "roles"
	FieldExpiresAt    = "expires_at"
)

// ErrMalformedRequest is returned when a Struct payload misses required fields.
var ErrMalformedRequest = errors.New("malformed request")

// NewLoginRequest builds a Login request payload.
func NewLoginRequest(email, password string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldEmail:    structpb.NewStringValue(email),
		FieldPassword: structpb.NewStringValue(password),
	}}
}

// ParseLoginRequest extracts email and password.
func ParseLoginRequest(req *structpb.Struct) (email, password string, err error) {
	email, ok := stringField(req, FieldEmail)
	if !ok {
		return "", "", ErrMalformedRequest
	}
	password, ok = stringField(req, FieldPassword)
	if !ok {
		return "", "", ErrMalformedRequest
	}
	return email, password, nil
}

// StringFields builds a Struct of string values.
func StringFields(fields map[string]string) *structpb.Struct {
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(fields))}
	for k, v := range fields {
		out.Fields[k] = structpb.NewStringValue(v)
	}
	return out
}

// GetString returns a string field of s or "".
func GetString(s *structpb.Struct, key string) string {
	v, _ := stringField(s, key)
	return v
}

func stringField(s *structpb.Struct, key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return "", false
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", false
	}
	return sv.StringValue, true
}
