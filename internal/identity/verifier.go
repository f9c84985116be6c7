// Package identity verifies provider-issued identity tokens.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Reason classifies why an identity token was rejected.
type Reason string

const (
	ReasonMalformed         Reason = "malformed_token"
	ReasonUnknownSigningKey Reason = "unknown_signing_key"
	ReasonSignatureMismatch Reason = "signature_mismatch"
	ReasonAudienceMismatch  Reason = "audience_mismatch"
	ReasonIssuerMismatch    Reason = "issuer_mismatch"
	ReasonExpired           Reason = "expired"
	// ReasonKeysUnavailable means the token could not be checked at all.
	ReasonKeysUnavailable Reason = "signing_keys_unavailable"
)

// ErrUnknownSigningKey is returned by a KeyResolver that has no key for a kid.
var ErrUnknownSigningKey = errors.New("unknown signing key")

// VerificationError is returned for every rejected token.
type VerificationError struct {
	Reason Reason
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return "identity token rejected: " + string(e.Reason)
	}
	return fmt.Sprintf("identity token rejected: %s: %v", e.Reason, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// ReasonOf returns the rejection reason carried by err, or "".
func ReasonOf(err error) Reason {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}

// KeyResolver returns the public key for a key id.
type KeyResolver interface {
	Key(ctx context.Context, kid string) (any, error)
}

// Expectation is what a token must assert to be accepted.
type Expectation struct {
	// Issuers lists accepted iss values; Google uses two spellings.
	Issuers   []string
	Audience  string
	Algorithm string
}

// Claims are the verified assertions of an identity token.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
	Issuer        string
	Audience      []string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	GivenName     string   `json:"given_name"`
	FamilyName    string   `json:"family_name"`
}

// flexBool accepts true and "true"; Apple sends email_verified as a string.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		parsed, err := strconv.ParseBool(t)
		if err != nil {
			return fmt.Errorf("email_verified: %w", err)
		}
		*b = flexBool(parsed)
	case nil:
		*b = false
	default:
		return fmt.Errorf("email_verified: unexpected type %T", v)
	}
	return nil
}

// Verifier checks signature, issuer, audience and expiry of identity tokens.
type Verifier struct {
	now func() time.Time
}

func NewVerifier(now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{now: now}
}

// Verify parses raw, resolves its signing key by kid and validates it
// against want. No claim is returned unless every check passes.
func (v *Verifier) Verify(ctx context.Context, raw string, want Expectation, keys KeyResolver) (*Claims, error) {
	if want.Algorithm == "" {
		want.Algorithm = jwt.SigningMethodRS256.Alg()
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token has no kid", ErrUnknownSigningKey)
		}
		return keys.Key(ctx, kid)
	},
		jwt.WithValidMethods([]string{want.Algorithm}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}

	if parsed.Issuer == "" || !slices.Contains(want.Issuers, parsed.Issuer) {
		return nil, &VerificationError{Reason: ReasonIssuerMismatch, Err: fmt.Errorf("iss %q", parsed.Issuer)}
	}
	if want.Audience == "" || !slices.Contains([]string(parsed.Audience), want.Audience) {
		return nil, &VerificationError{Reason: ReasonAudienceMismatch}
	}
	if parsed.ExpiresAt == nil {
		return nil, &VerificationError{Reason: ReasonMalformed, Err: errors.New("exp is required")}
	}
	now := v.now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return nil, &VerificationError{Reason: ReasonExpired}
	}

	claims := &Claims{
		Subject:       parsed.Subject,
		Email:         parsed.Email,
		EmailVerified: bool(parsed.EmailVerified),
		GivenName:     parsed.GivenName,
		FamilyName:    parsed.FamilyName,
		Issuer:        parsed.Issuer,
		Audience:      []string(parsed.Audience),
		ExpiresAt:     exp,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, ErrKeySetUnavailable):
		return &VerificationError{Reason: ReasonKeysUnavailable, Err: err}
	case errors.Is(err, ErrUnknownSigningKey):
		return &VerificationError{Reason: ReasonUnknownSigningKey, Err: err}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &VerificationError{Reason: ReasonMalformed, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &VerificationError{Reason: ReasonSignatureMismatch, Err: err}
	default:
		return &VerificationError{Reason: ReasonMalformed, Err: err}
	}
}
