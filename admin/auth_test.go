// Copyright (C) 2025 ssb-solar
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticatePublishOpenByDefault(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	assert.NoError(t, authenticatePublish(r, nil))
}

func TestAuthenticatePublishMissingToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	err := authenticatePublish(r, []byte("shh"))
	assert.Error(t, err)
}

func TestAuthenticatePublishValidToken(t *testing.T) {
	secret := []byte("shh")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	assert.NoError(t, authenticatePublish(r, secret))
}

func TestAuthenticatePublishWrongSecret(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("correct-secret"))
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	assert.Error(t, authenticatePublish(r, []byte("wrong-secret")))
}

func TestAuthenticatePublishExpiredToken(t *testing.T) {
	secret := []byte("shh")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	assert.Error(t, authenticatePublish(r, secret))
}

func TestAuthenticatePublishWrongSigningMethod(t *testing.T) {
	// An "alg": "none" token (or any non-HMAC method) must be rejected
	// even if the caller happens to have configured a secret.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "admin"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	assert.Error(t, authenticatePublish(r, []byte("shh")))
}
