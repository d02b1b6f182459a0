package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k0sti/snowclaw-memory/internal/model"
)

var testNow = time.Unix(1_800_000_000, 0)

func fixedClock() time.Time { return testNow }

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"), WithClock(fixedClock))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Backend)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemStore(WithClock(fixedClock))) })
}

func claim(id, topic, summary string) model.Memory {
	return model.Memory{
		ID:         id,
		Tier:       model.Public(),
		Topic:      topic,
		Summary:    summary,
		Detail:     "",
		Source:     "npub1alice",
		Model:      "anthropic/claude-opus-4",
		Confidence: 0.8,
		Version:    1,
		CreatedAt:  testNow.Unix() - 60,
	}
}

func TestUpsertAndGet(t *testing.T) {
	backends(t, func(t *testing.T, s Backend) {
		ctx := context.Background()

		m := claim("a", "nostr/nip44", "NIP-44 encryption")
		m.Tier = model.Group("devs")
		m.Detail = "ChaCha20 with HMAC"
		m.Context = "from the nips repo"
		m.Tags = []string{"nostr", "crypto"}
		require.NoError(t, s.Upsert(ctx, m, []byte(`{"raw":true}`)))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, m, *got)

		raw, err := s.RawPayload(ctx, "a")
		require.NoError(t, err)
		assert.JSONEq(t, `{"raw":true}`, string(raw))
	})
}

func TestGetMissingIsNil(t *testing.T) {
	backends(t, func(t *testing.T, s Backend) {
		got, err := s.Get(context.Background(), "nope")
		require.NoError(t, err)
		assert.Nil(t, got)

		raw, err := s.RawPayload(context.Background(), "nope")
		require.NoError(t, err)
		assert.Nil(t, raw)
	})
}

func TestUpsertOverwritesInPlace(t *testing.T) {
	backends(t, func(t *testing.T, s Backend) {
		ctx := context.Background()
		require.NoError(t, s.Upsert(ctx, claim("a", "t", "first"), nil))
		require.NoError(t, s.Upsert(ctx, claim("a", "t", "second"), nil))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "second", got.Summary)

		hits, err := s.Search(ctx, SearchParams{Query: "first"})
		require.NoError(t, err)
		assert.Empty(t, hits, "old text must leave the search index")
	})
}

func TestUpsertRejectsInvalid(t *testing.T) {
	backends(t, func(t *testing.T, s Backend) {
		m := claim("a", "t", "s")
		m.Confidence = 1.5
		err := s.Upsert(context.Background(), m, nil)
		assert.ErrorIs(t, err, model.ErrInvalidMemory)
	})
}

func TestSupersedesKeepsBothVersions(t *testing.T) {
	backends(t, func(t *testing.T, s Backend) {
		ctx := context.Background()
		before, err := s.Count(ctx)
		require.NoError(t, err)

		v1 := claim("v1", "t", "old claim")
		v2 := claim("v2", "t", "new claim")
		v2.Supersedes = "v1"
		v2.Version = 2
		require.NoError(t, s.Upsert(ctx, v1, nil))
		require.NoError(t, s.Upsert(ctx, v2, nil))

		after, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, before+2, after)

		got, err := s.Get(ctx, "v2")
		require.NoError(t, err)
		assert.Equal(t, "v1", got.Supersedes)
		assert.Equal(t, 2, got.Version)

		old, err := s.Get(ctx, "v1")
		require.NoError(t, err)
		require.NotNil(t, old)
		assert.Equal(t, 1, old.Version)
	})
}

func TestVersionOrderEnforced(t *testing.T) {
	backends(t, func(t *testing.T, s Backend) {
		ctx := context.Background()
		v1 := claim("v1", "t", "s")
		v1.Version = 3
		require.NoError(t, s.Upsert(ctx, v1, nil))

		stale := claim("v2", "t", "s")
		stale.Supersedes = "v1"
		stale.Version = 3
		assert.ErrorIs(t, s.Upsert(ctx, stale, nil), ErrVersionOrder)

		// predecessor arriving after its successor
		succ := claim("w2", "t", "s")
		succ.Supersedes = "w1"
		succ.Version = 2
		require.NoError(t, s.Upsert(ctx, succ, nil))
		late := claim("w1", "t", "s")
		late.Version = 2
		assert.ErrorIs(t, s.Upsert(ctx, late, nil), ErrVersionOrder)
		late.Version = 1
		assert.NoError(t, s.Upsert(ctx, late, nil))
	})
}

func TestEvictStale(t *testing.T) {
	backends(t, func(t *testing.T, s Backend) {
		ctx := context.Background()
		ttl := time.Hour

		stale1 := claim("stale1", "t", "s")
		stale1.CreatedAt = testNow.Add(-2 * time.Hour).Unix()
		stale2 := claim("stale2", "t", "s")
		stale2.CreatedAt = testNow.Add(-ttl).Unix() - 1
		fresh := claim("fresh", "t", "s")
		fresh.CreatedAt = testNow.Add(-30 * time.Minute).Unix()
		edge := claim("edge", "t", "s")
		edge.CreatedAt = testNow.Add(-ttl).Unix()

		local := claim("local", "t", "s")
		local.CreatedAt = testNow.Add(-30 * 24 * time.Hour).Unix()

		for _, m := range []model.Memory{stale1, stale2, fresh, edge} {
			require.NoError(t, s.Upsert(ctx, m, []byte(`{"kind":30078}`)))
		}
		require.NoError(t, s.Upsert(ctx, local, nil))

		n, err := s.EvictStale(ctx, ttl)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		for _, id := range []string{"fresh", "edge", "local"} {
			got, err := s.Get(ctx, id)
			require.NoError(t, err)
			assert.NotNil(t, got, id)
		}
		gone, err := s.Get(ctx, "stale1")
		require.NoError(t, err)
		assert.Nil(t, gone)

		hits, err := s.Search(ctx, SearchParams{})
		require.NoError(t, err)
		assert.Len(t, hits, 3)
	})
}

func TestEmptyPayloadIsLocal(t *testing.T) {
	backends(t, func(t *testing.T, s Backend) {
		ctx := context.Background()
		old := claim("a", "t", "s")
		old.CreatedAt = testNow.Add(-48 * time.Hour).Unix()
		require.NoError(t, s.Upsert(ctx, old, []byte{}))

		raw, err := s.RawPayload(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, raw)

		n, err := s.EvictStale(ctx, time.Hour)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestExportImport(t *testing.T) {
	backends(t, func(t *testing.T, src Backend) {
		ctx := context.Background()
		g := claim("b", "t2", "beta")
		g.Tier = model.Group("devs")
		require.NoError(t, src.Upsert(ctx, claim("a", "t1", "alpha"), nil))
		require.NoError(t, src.Upsert(ctx, g, nil))

		all, err := src.ExportAll(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "a", all[0].ID)

		groupOnly, err := src.ExportAll(ctx, model.ScopeGroup)
		require.NoError(t, err)
		require.Len(t, groupOnly, 1)
		assert.Equal(t, "b", groupOnly[0].ID)

		dst := NewMemStore()
		n, err := Import(ctx, dst, all)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		got, err := dst.Get(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, g, *got)
	})
}

func TestStats(t *testing.T) {
	backends(t, func(t *testing.T, s Backend) {
		ctx := context.Background()
		v1 := claim("v1", "t", "s")
		v2 := claim("v2", "t", "s")
		v2.Supersedes, v2.Version, v2.Source = "v1", 2, "npub1bob"
		g := claim("g", "other", "s")
		g.Tier = model.Group("devs")
		for _, m := range []model.Memory{v1, v2, g} {
			require.NoError(t, s.Upsert(ctx, m, nil))
		}

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, st.Total)
		assert.Equal(t, 2, st.Public)
		assert.Equal(t, 1, st.Group)
		assert.Equal(t, 1, st.Superseded)
		assert.Equal(t, 3, st.Local)
		require.Len(t, st.Topics, 2)
		assert.Equal(t, TopicStats{Topic: "t", Count: 2, Sources: 2}, st.Topics[0])
	})
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	backends(t, func(t *testing.T, s Backend) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					id := string(rune('a'+w)) + string(rune('0'+i))
					assert.NoError(t, s.Upsert(ctx, claim(id, "t", "concurrent write"), nil))
					_, err := s.Search(ctx, SearchParams{Query: "concurrent"})
					assert.NoError(t, err)
				}
			}(w)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, err := s.EvictStale(ctx, 24*time.Hour)
				assert.NoError(t, err)
			}
		}()
		wg.Wait()

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 40, n)
	})
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}

func TestReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, claim("a", "t", "persisted"), nil))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)

	hits, err := s.Search(ctx, SearchParams{Query: "persisted"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestInMemorySQLite(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, claim("a", "t", "s"), nil))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
