package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	rd "github.com/go-redis/redis/v9"

	"github.com/creditflow/creditflow/internal/core"
	"github.com/creditflow/creditflow/internal/domain"
)

// RedisStore keeps each workflow's checkpoint log in a Redis list and the
// set of non-terminal workflows in a Redis set. Append runs under WATCH on
// the log key so a concurrent writer with the same expected sequence
// number loses the transaction instead of producing a duplicate.
type RedisStore struct {
	client    rd.UniversalClient
	namespace string
	clock     core.Clock
}

type RedisConfig struct {
	Addrs     []string
	Namespace string
}

func NewRedisStore(conf RedisConfig, clock core.Clock) *RedisStore {
	client := rd.NewUniversalClient(&rd.UniversalOptions{
		Addrs: conf.Addrs,
	})
	return &RedisStore{client: client, namespace: conf.Namespace, clock: clock}
}

func (s *RedisStore) key(parts ...string) string {
	return fmt.Sprintf("%s:%s", s.namespace, strings.Join(parts, ":"))
}

func (s *RedisStore) logKey(workflowID string) string { return s.key("ckpt", workflowID) }
func (s *RedisStore) activeKey() string               { return s.key("active") }

func (s *RedisStore) Append(ctx context.Context, rec *domain.CheckpointRecord) error {
	rec.WrittenAt = s.clock.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal checkpoint record: %w", err)
	}
	logKey := s.logKey(rec.WorkflowID)

	err = s.client.Watch(ctx, func(tx *rd.Tx) error {
		length, err := tx.LLen(ctx, logKey).Result()
		if err != nil {
			return err
		}
		if rec.SequenceNo != length+1 {
			return ErrSequenceConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.RPush(ctx, logKey, data)
			if rec.State.CurrentStage.IsTerminal() {
				pipe.SRem(ctx, s.activeKey(), rec.WorkflowID)
			} else {
				pipe.SAdd(ctx, s.activeKey(), rec.WorkflowID)
			}
			return nil
		})
		return err
	}, logKey)
	if err == rd.TxFailedErr {
		return ErrSequenceConflict
	}
	return err
}

func (s *RedisStore) Latest(ctx context.Context, workflowID string) (*domain.CheckpointRecord, error) {
	val, err := s.client.LIndex(ctx, s.logKey(workflowID), -1).Result()
	if err == rd.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(val)
}

func (s *RedisStore) History(ctx context.Context, workflowID string) ([]domain.CheckpointRecord, error) {
	vals, err := s.client.LRange(ctx, s.logKey(workflowID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	records := make([]domain.CheckpointRecord, 0, len(vals))
	for _, val := range vals {
		rec, err := decodeRecord(val)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

func (s *RedisStore) ActiveWorkflows(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.activeKey()).Result()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeRecord(val string) (*domain.CheckpointRecord, error) {
	var rec domain.CheckpointRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint record: %w", err)
	}
	return &rec, nil
}
