package queuestore

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "task.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func payload(v string) json.RawMessage { return json.RawMessage(`"` + v + `"`) }

func TestAppendDeduplicatesInputs(t *testing.T) {
	s := openTest(t)

	require.NoError(t, s.Append(Inputs, payload("a")))
	require.NoError(t, s.Append(Inputs, payload("a")))
	require.NoError(t, s.Append(Inputs, payload("b")))

	count, err := s.Count(Inputs)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestSuccessesDoNotDeduplicate(t *testing.T) {
	s := openTest(t)

	require.NoError(t, s.Append(Successes, payload("a")))
	require.NoError(t, s.Append(Successes, payload("a")))

	count, err := s.Count(Successes)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestPopNextThenAckRemoves(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.Append(Inputs, payload("a")))
	require.NoError(t, s.Append(Inputs, payload("b")))

	item, err := s.PopNext(Inputs)
	require.NoError(t, err)
	require.Equal(t, payload("a"), item.Data)

	// Not yet acked: count still includes the popped row.
	count, err := s.Count(Inputs)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	require.NoError(t, s.Ack(Inputs))

	count, err = s.Count(Inputs)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestRestoreLeavesItemInQueue(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.Append(Inputs, payload("a")))

	_, err := s.PopNext(Inputs)
	require.NoError(t, err)

	require.NoError(t, s.Restore(Inputs))

	// Item must still be poppable — this is the crash-recovery property.
	item, err := s.PopNext(Inputs)
	require.NoError(t, err)
	require.Equal(t, payload("a"), item.Data)
}

func TestPopNextNReturnsAscendingOrder(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.Append(Inputs, payload("a")))
	require.NoError(t, s.Append(Inputs, payload("b")))
	require.NoError(t, s.Append(Inputs, payload("c")))

	items, err := s.PopNextN(Inputs, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, payload("a"), items[0].Data)
	require.Equal(t, payload("b"), items[1].Data)

	require.NoError(t, s.Ack(Inputs))
	count, err := s.Count(Inputs)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestPageReturnsCursorAndTotal(t *testing.T) {
	s := openTest(t)
	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(Inputs, payload(v)))
	}

	items, cursor, total, err := s.Page(Inputs, nil, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.EqualValues(t, 3, total)
	require.NotNil(t, cursor)

	items2, cursor2, _, err := s.Page(Inputs, cursor, 2)
	require.NoError(t, err)
	require.Len(t, items2, 1)
	require.Nil(t, cursor2)
}

func TestDeleteByIDsIsUnconditional(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.Append(Inputs, payload("a")))
	item, err := s.PeekNext(Inputs)
	require.NoError(t, err)

	removed, err := s.DeleteByIDs(Inputs, []uint{item.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	count, err := s.Count(Inputs)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}

func TestPeekNextOnEmptyQueueReturnsErrItemNotFound(t *testing.T) {
	s := openTest(t)
	_, err := s.PeekNext(Inputs)
	require.ErrorIs(t, err, ErrItemNotFound)
}
