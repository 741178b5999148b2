package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"group_chat_service/pkg/database"
)

// RevokedToken blacklist entry
type RevokedToken struct {
	UserID    int64     `json:"user_id"`
	RevokedAt time.Time `json:"revoked_at"`
}

// RevokedTokenRepository token blacklist in redis, key expires with the token
type RevokedTokenRepository struct {
	store database.RedisRepository[RevokedToken]
}

// NewRevokedTokenRepository create RevokedTokenRepository
func NewRevokedTokenRepository(store database.RedisRepository[RevokedToken]) *RevokedTokenRepository {
	return &RevokedTokenRepository{store: store}
}

func revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "chat:revoked:" + hex.EncodeToString(sum[:])
}

// IsRevoked report whether the token was revoked
func (r *RevokedTokenRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	return r.store.Exists(ctx, revokedKey(token))
}

// Revoke blacklist token until ttl
func (r *RevokedTokenRepository) Revoke(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.store.Set(ctx, revokedKey(token), RevokedToken{UserID: userID, RevokedAt: time.Now()}, ttl)
}
