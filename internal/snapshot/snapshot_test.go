package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func setupSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func setupRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test"), mr
}

func stores(t *testing.T) map[string]Store {
	rs, _ := setupRedis(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": setupSQLite(t),
		"redis":  rs,
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "corc-cart", Key("cart"))
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(ctx, Key("cart"))
			assert.ErrorIs(t, err, ErrKeyNotFound)

			require.NoError(t, s.Save(ctx, Key("cart"), []byte(`[1]`)))
			require.NoError(t, s.Save(ctx, Key("cart"), []byte(`[1,2]`)))

			data, err := s.Load(ctx, Key("cart"))
			require.NoError(t, err)
			assert.Equal(t, `[1,2]`, string(data))

			require.NoError(t, s.Delete(ctx, Key("cart")))
			_, err = s.Load(ctx, Key("cart"))
			assert.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestLoadJSON_MissingAndCorrupt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	log := zerolog.Nop()

	var out []entry
	assert.False(t, LoadJSON(ctx, s, Key("orders"), &out, log))
	assert.Nil(t, out)

	require.NoError(t, s.Save(ctx, Key("orders"), []byte(`{not json`)))
	assert.False(t, LoadJSON(ctx, s, Key("orders"), &out, log))
	assert.Nil(t, out)

	require.NoError(t, SaveJSON(ctx, s, Key("orders"), []entry{{ID: 1, Name: "a"}}))
	assert.True(t, LoadJSON(ctx, s, Key("orders"), &out, log))
	assert.Equal(t, []entry{{ID: 1, Name: "a"}}, out)
}

func TestLoadJSON_ReadFailureFallsBack(t *testing.T) {
	rs, mr := setupRedis(t)
	mr.Close()

	var out []entry
	assert.False(t, LoadJSON(context.Background(), rs, Key("cart"), &out, zerolog.Nop()))
}

func TestReadJSON_OnlyMissingKeyIsAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var out []entry
	ok, err := ReadJSON(ctx, s, Key("accounts"), &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SaveJSON(ctx, s, Key("accounts"), []entry{{ID: 1, Name: "a"}}))
	ok, err = ReadJSON(ctx, s, Key("accounts"), &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []entry{{ID: 1, Name: "a"}}, out)

	require.NoError(t, s.Save(ctx, Key("accounts"), []byte(`{not json`)))
	_, err = ReadJSON(ctx, s, Key("accounts"), &out)
	assert.Error(t, err)

	rs, mr := setupRedis(t)
	mr.Close()
	_, err = ReadJSON(ctx, rs, Key("accounts"), &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrKeyNotFound)
}

func TestSaveJSON_WriteFailureReturnsError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO snapshots").WillReturnError(errors.New("disk full"))

	s := NewSQLiteStore(db)
	err = SaveJSON(context.Background(), s, Key("cart"), []entry{{ID: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_LoadQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT value FROM snapshots").
		WithArgs(Key("user")).
		WillReturnError(errors.New("locked"))

	_, err = NewSQLiteStore(db).Load(context.Background(), Key("user"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrKeyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_MigrationsIdempotent(t *testing.T) {
	s := setupSQLite(t)
	assert.NoError(t, s.RunMigrations())
}

func TestRedisStore_Prefix(t *testing.T) {
	rs, mr := setupRedis(t)
	require.NoError(t, rs.Save(context.Background(), Key("wishlist"), []byte(`[]`)))
	assert.True(t, mr.Exists("test:corc-wishlist"))
}
