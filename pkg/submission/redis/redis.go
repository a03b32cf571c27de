package redis

import (
	"context"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/CrumpLab/vertical/pkg/submission"
)

// putScript stores a record and indexes it in one step. The index type is
// checked first, as writes made by a script are not rolled back when a
// later command in it fails.
var putScript = redis.NewScript(`
local t = redis.call("TYPE", KEYS[2]).ok
if t ~= "none" and t ~= "zset" then
	return redis.error_reply("WRONGTYPE index key " .. KEYS[2] .. " holds " .. t)
end
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[3])
return 1
`)

type store struct {
	log *logrus.Entry
	rdb *redis.Client
}

// New returns a redis-backed submission.Store.
//
// Each record is stored as JSON under its own key, and indexed by filename
// in a sorted set scored by receipt time.
func New(rdb *redis.Client) submission.Store {
	return &store{
		log: logrus.StandardLogger().WithField("type", "submission/redis"),
		rdb: rdb,
	}
}

// Put implements submission.Store.Put.
func (s *store) Put(ctx context.Context, r *submission.Record) error {
	item, err := toItem(r)
	if err != nil {
		return err
	}

	added, err := putScript.Run(
		s.rdb.WithContext(ctx),
		[]string{recordKey(r.ID), filenameKey(r.Filename)},
		item, score(r.ReceivedAt), r.ID,
	).Int64()
	if err != nil {
		return errors.Wrap(err, "failed to store submission")
	}
	if added == 0 {
		return submission.ErrExists
	}

	return nil
}

// Get implements submission.Store.Get.
func (s *store) Get(ctx context.Context, id string) (*submission.Record, error) {
	raw, err := s.rdb.WithContext(ctx).Get(recordKey(id)).Result()
	if err == redis.Nil {
		return nil, submission.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get submission")
	}

	return fromItem(raw)
}

// List implements submission.Store.List.
func (s *store) List(ctx context.Context, filename string) ([]*submission.Record, error) {
	log := s.log.WithFields(logrus.Fields{
		"method":   "List",
		"filename": filename,
	})

	rdb := s.rdb.WithContext(ctx)

	ids, err := rdb.ZRange(filenameKey(filename), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list submission ids")
	}

	records := make([]*submission.Record, 0, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}

	values, err := rdb.MGet(keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load submissions")
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			log.WithField("id", ids[i]).Warn("indexed submission missing, ignoring")
			continue
		}

		r, err := fromItem(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, nil
}
