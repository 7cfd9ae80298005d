package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/internal/models"
)

// Credit snapshots live in a hash tagged with the block that produced them.
// A snapshot from an older block never replaces a newer one, so a reader that
// loaded totals before a write commits cannot overwrite the refreshed entry.
var storeCreditsIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'block')
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'block', ARGV[1], 'payload', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

func (s *ledgerService) cachedCredits(ctx context.Context, student common.Address) (dto.CreditsResponse, error) {
	payload, err := s.cache.HGet(ctx, creditsCacheKey(student), "payload").Result()
	if err != nil {
		return dto.CreditsResponse{}, err
	}

	var response dto.CreditsResponse
	if err := json.Unmarshal([]byte(payload), &response); err != nil {
		return dto.CreditsResponse{}, fmt.Errorf("decode cached credits: %w", err)
	}
	return response, nil
}

func (s *ledgerService) storeCredits(ctx context.Context, account models.CreditAccount) error {
	payload, err := json.Marshal(dto.NewCreditsResponse(account))
	if err != nil {
		return err
	}

	key := creditsCacheKey(common.HexToAddress(account.StudentAddress))
	ttl := s.options.CreditsCacheTTL.Milliseconds()
	return storeCreditsIfNewer.Run(ctx, s.cache, []string{key}, account.LastBlock, payload, ttl).Err()
}
