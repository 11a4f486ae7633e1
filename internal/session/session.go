// Package session keeps per-user pending-operation state in Redis so a
// multi-step flow survives restarts instead of living in ambient in-process
// sets.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// ActionAttachInstructions marks an admin who accepted a deposit and is
	// about to send payment instructions.
	ActionAttachInstructions = "attach_instructions"
)

type Pending struct {
	Action    string `json:"action"`
	DepositID int64  `json:"deposit_id"`
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

func (s *Store) SetPending(ctx context.Context, userID int64, pending Pending) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("error encoding pending operation: %w", err)
	}

	err = s.rdb.Set(ctx, key(userID), payload, s.ttl).Err()
	if err != nil {
		return fmt.Errorf("error storing pending operation: %w", err)
	}

	return nil
}

// Pending returns the user's pending operation, or nil when there is none.
func (s *Store) Pending(ctx context.Context, userID int64) (*Pending, error) {
	payload, err := s.rdb.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("error fetching pending operation: %w", err)
	}

	var pending Pending
	if err := json.Unmarshal(payload, &pending); err != nil {
		return nil, fmt.Errorf("error decoding pending operation: %w", err)
	}

	return &pending, nil
}

func (s *Store) Clear(ctx context.Context, userID int64) error {
	err := s.rdb.Del(ctx, key(userID)).Err()
	if err != nil {
		return fmt.Errorf("error clearing pending operation: %w", err)
	}

	return nil
}

func key(userID int64) string {
	return fmt.Sprintf("pending:%d", userID)
}
