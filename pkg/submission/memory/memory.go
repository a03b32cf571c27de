package memory

import (
	"context"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/CrumpLab/vertical/pkg/submission"
)

// DefaultSize is the number of records retained by a store created with
// a non-positive size.
const DefaultSize = 10000

type memory struct {
	entries *lru.Cache
}

// New returns an in-memory submission.Store that retains the size most
// recently stored records.
func New(size int) (submission.Store, error) {
	if size <= 0 {
		size = DefaultSize
	}

	cache, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create submission cache")
	}

	return &memory{entries: cache}, nil
}

func (m *memory) reset() {
	m.entries.Purge()
}

// Put implements submission.Store.Put.
func (m *memory) Put(_ context.Context, r *submission.Record) error {
	if exists, _ := m.entries.ContainsOrAdd(r.ID, r.Clone()); exists {
		return submission.ErrExists
	}
	return nil
}

// Get implements submission.Store.Get.
func (m *memory) Get(_ context.Context, id string) (*submission.Record, error) {
	entry, ok := m.entries.Get(id)
	if !ok {
		return nil, submission.ErrNotFound
	}

	return entry.(*submission.Record).Clone(), nil
}

// List implements submission.Store.List.
func (m *memory) List(_ context.Context, filename string) ([]*submission.Record, error) {
	records := make([]*submission.Record, 0)
	for _, k := range m.entries.Keys() {
		entry, ok := m.entries.Peek(k)
		if !ok {
			continue
		}

		r := entry.(*submission.Record)
		if r.Filename == filename {
			records = append(records, r.Clone())
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ReceivedAt.Before(records[j].ReceivedAt)
	})

	return records, nil
}
