package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/medqueue/core/queue"
)

const (
	scanPattern   = "hospital_queue:*"
	scanBatch     = 100
	rebuildPrefix = "hospital_queue_rebuild:"
)

// Index is a queue.DeadlineIndex backed by Redis sorted sets.
type Index struct {
	rdb redis.UniversalClient
}

// NewIndex returns an Index using rdb.
func NewIndex(rdb redis.UniversalClient) *Index {
	return &Index{rdb: rdb}
}

func (i *Index) Insert(ctx context.Context, hospitalID, caseID string, deadline time.Time) error {
	err := i.rdb.ZAdd(ctx, queue.QueueKey(hospitalID), redis.Z{Score: queue.Score(deadline), Member: caseID}).Err()
	return wrap(err)
}

func (i *Index) Remove(ctx context.Context, hospitalID, caseID string) error {
	return wrap(i.rdb.ZRem(ctx, queue.QueueKey(hospitalID), caseID).Err())
}

// PeekEarliest reads the first member of the sorted set. Redis orders equal
// scores lexicographically by member.
func (i *Index) PeekEarliest(ctx context.Context, hospitalID string) (queue.Entry, bool, error) {
	zs, err := i.rdb.ZRangeWithScores(ctx, queue.QueueKey(hospitalID), 0, 0).Result()
	if err != nil {
		return queue.Entry{}, false, wrap(err)
	}
	if len(zs) == 0 {
		return queue.Entry{}, false, nil
	}
	id, ok := zs[0].Member.(string)
	if !ok {
		return queue.Entry{}, false, fmt.Errorf("unexpected member type %T", zs[0].Member)
	}
	return queue.Entry{CaseID: id, Score: zs[0].Score}, true, nil
}

// Rebuild fills a temporary key and renames it over the live one inside a
// MULTI/EXEC block, so readers never observe a partial set. An empty entry
// list deletes the queue.
func (i *Index) Rebuild(ctx context.Context, hospitalID string, entries []queue.Entry) error {
	key := queue.QueueKey(hospitalID)
	if len(entries) == 0 {
		return wrap(i.rdb.Del(ctx, key).Err())
	}
	tmp := rebuildPrefix + hospitalID + ":" + uuid.NewString()
	members := make([]redis.Z, len(entries))
	for n, e := range entries {
		members[n] = redis.Z{Score: e.Score, Member: e.CaseID}
	}
	_, err := i.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, tmp)
		p.ZAdd(ctx, tmp, members...)
		p.Rename(ctx, tmp, key)
		return nil
	})
	if err != nil {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = i.rdb.Del(cctx, tmp).Err()
		return wrap(err)
	}
	return nil
}

func (i *Index) Lookup(ctx context.Context, hospitalID, caseID string) (float64, bool, error) {
	s, err := i.rdb.ZScore(ctx, queue.QueueKey(hospitalID), caseID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrap(err)
	}
	return s, true, nil
}

func (i *Index) Len(ctx context.Context, hospitalID string) (int, error) {
	n, err := i.rdb.ZCard(ctx, queue.QueueKey(hospitalID)).Result()
	return int(n), wrap(err)
}

// Tenants scans the keyspace for hospital queues. Redis drops empty sorted
// sets, so every key found has at least one entry.
func (i *Index) Tenants(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	iter := i.rdb.Scan(ctx, 0, scanPattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		h, ok := queue.HospitalFromKey(iter.Val())
		if !ok {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	if err := iter.Err(); err != nil {
		return nil, wrap(err)
	}
	return out, nil
}
