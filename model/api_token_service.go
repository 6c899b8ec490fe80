// model/api_token_service.go
package model

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// CreateAPIToken creates a new API token record and returns its plaintext token **once**.
// Only a salted SHA-256 hash and the lookup prefix are persisted.
//
// Parameters:
//   - env:       the environment (tenant) that owns the token.
//   - userID:    optional user the token acts for; nil for integration tokens.
//   - name:      a human-readable label (e.g. "POS terminal").
//   - scope:     application-defined permission scope.
//   - expiresAt: optional expiration timestamp.
func (s *Store) CreateAPIToken(ctx context.Context, env string, userID *string, name, scope string, expiresAt *time.Time) (plain string, rec *APIToken, err error) {
	plain, prefix, saltHex, hash, err := makeToken()
	if err != nil {
		return "", nil, err
	}
	rec = &APIToken{
		EnvironmentID: env,
		UserID:        userID,
		TokenPrefix:   prefix,
		TokenHash:     hash,
		Salt:          saltHex,
		Name:          name,
		Scope:         scope,
		ExpiresAt:     expiresAt,
	}
	if err = s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return "", nil, err
	}
	return plain, rec, nil
}

// ValidateAPIToken verifies an incoming raw token string.
//
// Validation steps:
//  1. Check minimum length.
//  2. Look up candidates by prefix.
//  3. Recompute and compare the salted hash in constant time.
//  4. Ensure the token is neither disabled nor expired.
//  5. Update "last_used_at" (best-effort; errors ignored).
func (s *Store) ValidateAPIToken(ctx context.Context, raw string) (*APIToken, error) {
	if len(raw) < 12 {
		return nil, ErrTokenInvalid
	}
	prefix := raw[:8]

	var candidates []APIToken
	if err := s.db.WithContext(ctx).Where("token_prefix = ?", prefix).Find(&candidates).Error; err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrTokenNotFound
	}

	var rec *APIToken
	for i := range candidates {
		salt, err := hex.DecodeString(candidates[i].Salt)
		if err != nil {
			continue
		}
		got := hashToken(salt, raw)
		if subtle.ConstantTimeCompare([]byte(got), []byte(candidates[i].TokenHash)) == 1 {
			rec = &candidates[i]
			break
		}
	}
	if rec == nil {
		return nil, ErrTokenInvalid
	}

	if rec.Disabled {
		return nil, ErrTokenDisabled
	}
	if rec.ExpiresAt != nil && time.Now().After(*rec.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	_ = s.db.WithContext(ctx).Model(&APIToken{}).Where("id = ?", rec.ID).Update("last_used_at", time.Now()).Error
	return rec, nil
}

// RevokeAPIToken disables a token of the environment.
func (s *Store) RevokeAPIToken(ctx context.Context, env string, tokenID uint) error {
	res := s.db.WithContext(ctx).Model(&APIToken{}).
		Where("id = ? AND environment_id = ?", tokenID, env).
		Update("disabled", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// ListAPITokens returns a page of the environment's tokens, newest first,
// and the cursor of the next page ("" when there is none).
func (s *Store) ListAPITokens(ctx context.Context, env string, limit int, cursor string) ([]APIToken, string, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := 0
	if cursor != "" {
		if n, err := strconv.Atoi(cursor); err == nil && n >= 0 {
			offset = n
		}
	}

	var rows []APIToken
	if err := s.db.WithContext(ctx).Where("environment_id = ?", env).
		Order("created_at desc").
		Offset(offset).Limit(limit + 1).Find(&rows).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		next = strconv.Itoa(offset + limit)
	}
	return rows, next, nil
}
