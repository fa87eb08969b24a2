package strava

import (
	"context"
	"fmt"
	"time"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/crypto"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// accessToken resolves the user's provider access token: cache first, then
// the encrypted connection document. Token refresh against the provider is
// handled elsewhere; an expired token here surfaces as an ingest failure.
func (s *Ingestor) accessToken(ctx context.Context, uid string, conn *types.StreamConnection) (string, error) {
	cacheKey := shared.TokenCacheKey(types.SourceStrava, uid)
	if cached, err := s.Cache.Get(ctx, cacheKey); err != nil {
		s.Logger.Warn("Token cache unavailable", "error", err)
	} else if cached != "" {
		return cached, nil
	}

	secret, err := s.Secrets.GetJSONSecret(ctx, s.EncryptionSecret)
	if err != nil {
		return "", fmt.Errorf("load encryption key: %w", err)
	}
	key, ok := secret["token"]
	if !ok {
		return "", fmt.Errorf("encryption secret %s has no token key", s.EncryptionSecret)
	}

	token, err := crypto.DecryptToken(conn.AccessToken, key)
	if err != nil {
		return "", fmt.Errorf("decrypt access token: %w", err)
	}

	if ttl := time.Until(time.Unix(conn.ExpiresAt, 0)); ttl > time.Minute {
		if err := s.Cache.Set(ctx, cacheKey, token, ttl); err != nil {
			s.Logger.Warn("Failed to cache access token", "error", err)
		}
	}
	return token, nil
}
