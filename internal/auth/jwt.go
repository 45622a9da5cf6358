// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken indicates a token whose exp claim cannot be read.
var ErrMalformedToken = errors.New("malformed token")

var unverifiedParser = jwt.NewParser()

// ExpiresAt decodes the exp claim of a JWT. The signature is not verified;
// the backend does that. A token without an exp claim yields the zero time
// and no error.
func ExpiresAt(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := unverifiedParser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// Expired reports whether token expires at or before now+skew. A token
// without an exp claim never expires; one that cannot be decoded is an error.
func Expired(token string, now time.Time, skew time.Duration) (bool, error) {
	exp, err := ExpiresAt(token)
	if err != nil {
		return false, err
	}
	if exp.IsZero() {
		return false, nil
	}
	return !exp.After(now.Add(skew)), nil
}
