package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type session struct {
	Owner string
	Count int
}

func TestCreateAndGet(t *testing.T) {
	r := New[session]()

	err := r.Create("s1", &session{Owner: "u1"})
	require.NoError(t, err)

	got, err := r.Get("s1")
	require.NoError(t, err)
	require.Equal(t, "u1", got.Owner)

	err = r.Create("s1", &session{Owner: "u2"})
	require.ErrorIs(t, err, ErrSessionExists)
}

func TestGetMissing(t *testing.T) {
	r := New[session]()

	_, err := r.Get("nope")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMutate(t *testing.T) {
	r := New[session]()
	require.NoError(t, r.Create("s1", &session{Owner: "u1"}))

	got, err := r.Mutate("s1", func(s *session) {
		s.Count++
	})
	require.NoError(t, err)
	require.Equal(t, 1, got.Count)

	_, err = r.Mutate("missing", func(s *session) {
		s.Count++
	})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRemove(t *testing.T) {
	r := New[session]()
	require.NoError(t, r.Create("s1", &session{}))

	r.Remove("s1")
	_, err := r.Get("s1")
	require.ErrorIs(t, err, ErrSessionNotFound)

	// removing again is a no-op
	r.Remove("s1")
}

func TestFind(t *testing.T) {
	r := New[session]()
	require.NoError(t, r.Create("s1", &session{Owner: "u1"}))
	require.NoError(t, r.Create("s2", &session{Owner: "u2"}))

	key, got, err := r.Find(func(s *session) bool { return s.Owner == "u2" })
	require.NoError(t, err)
	require.Equal(t, "s2", key)
	require.Equal(t, "u2", got.Owner)

	_, _, err = r.Find(func(s *session) bool { return s.Owner == "u3" })
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConcurrentMutate(t *testing.T) {
	r := New[session]()
	require.NoError(t, r.Create("s1", &session{}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Mutate("s1", func(s *session) {
				s.Count++
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := r.Get("s1")
	require.NoError(t, err)
	require.Equal(t, 50, got.Count)
}

func TestGetReturnsSnapshot(t *testing.T) {
	r := New[session]()
	require.NoError(t, r.Create("s1", &session{Owner: "u1", Count: 1}))

	got, err := r.Get("s1")
	require.NoError(t, err)

	// writing through the returned value must not touch stored state
	got.Count = 99

	again, err := r.Get("s1")
	require.NoError(t, err)
	require.Equal(t, 1, again.Count)
}

func TestMutateReturnsSnapshot(t *testing.T) {
	r := New[session]()
	require.NoError(t, r.Create("s1", &session{Owner: "u1"}))

	first, err := r.Mutate("s1", func(s *session) { s.Count++ })
	require.NoError(t, err)
	require.Equal(t, 1, first.Count)

	// a later mutation must not show through the earlier snapshot
	_, err = r.Mutate("s1", func(s *session) { s.Count++ })
	require.NoError(t, err)
	require.Equal(t, 1, first.Count)
}

func TestFindReturnsSnapshot(t *testing.T) {
	r := New[session]()
	require.NoError(t, r.Create("s1", &session{Owner: "u1"}))

	_, found, err := r.Find(func(s *session) bool { return s.Owner == "u1" })
	require.NoError(t, err)

	found.Owner = "intruder"

	got, err := r.Get("s1")
	require.NoError(t, err)
	require.Equal(t, "u1", got.Owner)
}
