package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrumpLab/vertical/pkg/submission"
)

func RunTests(t *testing.T, store submission.Store, teardown func()) {
	for _, tf := range []func(*testing.T, submission.Store){testRoundTrip, testExists, testList} {
		tf(t, store)
		teardown()
	}
}

func generateRecord(filename string, receivedAt time.Time) *submission.Record {
	return &submission.Record{
		ID:         uuid.New().String(),
		Filename:   filename,
		Data:       fmt.Sprintf("\"rt\",\"stimulus\"\r\n\"%d\",\"left, \"\"quoted\"\"\"\r\n", receivedAt.UnixNano()%1000),
		ReceivedAt: receivedAt,
	}
}

func testRoundTrip(t *testing.T, store submission.Store) {
	t.Run("TestRoundTrip", func(t *testing.T) {
		r := generateRecord("xprmntr_local_name", time.Now().Round(time.Millisecond))

		// Doesn't exist yet
		actual, err := store.Get(context.Background(), r.ID)
		require.Equal(t, submission.ErrNotFound, err)
		require.Nil(t, actual)

		require.NoError(t, store.Put(context.Background(), r))

		actual, err = store.Get(context.Background(), r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, actual.ID)
		assert.Equal(t, r.Filename, actual.Filename)
		assert.Equal(t, r.Data, actual.Data)
		assert.True(t, r.ReceivedAt.Equal(actual.ReceivedAt), "expected %v, got %v", r.ReceivedAt, actual.ReceivedAt)

		// Empty exports are valid submissions.
		empty := generateRecord("xprmntr_local_name", time.Now().Round(time.Millisecond))
		empty.Data = ""
		require.NoError(t, store.Put(context.Background(), empty))

		actual, err = store.Get(context.Background(), empty.ID)
		require.NoError(t, err)
		assert.Empty(t, actual.Data)
	})
}

func testExists(t *testing.T, store submission.Store) {
	t.Run("TestCollision", func(t *testing.T) {
		r := generateRecord("xprmntr_local_name", time.Now().Round(time.Millisecond))
		require.NoError(t, store.Put(context.Background(), r))

		dup := r.Clone()
		dup.Data = "different"
		assert.Equal(t, submission.ErrExists, store.Put(context.Background(), dup))

		actual, err := store.Get(context.Background(), r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.Data, actual.Data)
	})
}

func testList(t *testing.T, store submission.Store) {
	t.Run("TestList", func(t *testing.T) {
		records, err := store.List(context.Background(), "subject_01")
		require.NoError(t, err)
		assert.Empty(t, records)

		start := time.Now().Round(time.Millisecond)

		var expected []*submission.Record
		for i := 0; i < 5; i++ {
			r := generateRecord("subject_01", start.Add(time.Duration(i)*time.Second))
			expected = append(expected, r)
		}
		other := generateRecord("subject_01.retry", start)

		// Insert out of order to ensure ordering is by receipt time.
		for _, i := range []int{3, 0, 4, 1, 2} {
			require.NoError(t, store.Put(context.Background(), expected[i]))
		}
		require.NoError(t, store.Put(context.Background(), other))

		records, err = store.List(context.Background(), "subject_01")
		require.NoError(t, err)
		require.Len(t, records, len(expected))
		for i, r := range records {
			assert.Equal(t, expected[i].ID, r.ID)
			assert.Equal(t, expected[i].Data, r.Data)
		}

		records, err = store.List(context.Background(), "subject_01.retry")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, other.ID, records[0].ID)
	})
}
