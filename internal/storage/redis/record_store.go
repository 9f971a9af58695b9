package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Nysah1997/qw/internal/storage"
	"github.com/redis/go-redis/v9"
)

type recordStore struct {
	client *redis.Client
}

func recordKey(userID string) string {
	return recordKeyPrefix + userID
}

func (s *recordStore) Get(ctx context.Context, userID string) (*storage.TimeRecord, error) {
	data, err := s.client.Get(ctx, recordKey(userID)).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", userID, err)
	}

	var record storage.TimeRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", userID, err)
	}
	return &record, nil
}

func (s *recordStore) GetAll(ctx context.Context) (map[string]storage.TimeRecord, error) {
	ids, err := s.client.SMembers(ctx, recordIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list record ids: %w", err)
	}

	records := make(map[string]storage.TimeRecord, len(ids))
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if err == storage.ErrNotFound {
			// Index entry without a value; skip rather than fail the snapshot.
			continue
		}
		if err != nil {
			return nil, err
		}
		records[id] = *record
	}
	return records, nil
}

func (s *recordStore) Upsert(ctx context.Context, record storage.TimeRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", record.UserID, err)
	}

	// MULTI/EXEC keeps the value and the index entry consistent.
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordKey(record.UserID), data, 0)
		pipe.SAdd(ctx, recordIndexKey, record.UserID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", record.UserID, err)
	}
	return nil
}

func (s *recordStore) Delete(ctx context.Context, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordKey(userID))
		pipe.SRem(ctx, recordIndexKey, userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete record %s: %w", userID, err)
	}
	return nil
}

func (s *recordStore) ClearAll(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, recordIndexKey).Result()
	if err != nil {
		return fmt.Errorf("list record ids: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, recordKey(id))
		}
		pipe.Del(ctx, recordIndexKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}
