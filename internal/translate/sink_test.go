package translate

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/redis"
)

func TestRedisSink_StoresWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(config.RedisConfig{Addr: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	sink := NewRedisSink(client, time.Hour)
	at := time.Date(2017, 1, 26, 0, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Record(context.Background(), Translation{ID: "42", Source: "Good", Text: "Bon", TranslatedAt: at}))

	raw, err := mr.Get(Key("42"))
	require.NoError(t, err)
	var got Translation
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, "Bon", got.Text)
	assert.Equal(t, "Good", got.Source)
	assert.True(t, at.Equal(got.TranslatedAt))
	assert.Equal(t, time.Hour, mr.TTL(Key("42")))
}

func TestRedisSink_ServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client, err := redis.NewClient(config.RedisConfig{Addr: mr.Addr(), PoolSize: 1})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	mr.Close()

	sink := NewRedisSink(client, time.Hour)
	sink.timeout = 200 * time.Millisecond
	assert.Error(t, sink.Record(context.Background(), Translation{ID: "1", Text: "x"}))
}

type recordingExecer struct {
	queries []string
	args    [][]any
	fail    bool
}

func (r *recordingExecer) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if r.fail {
		return nil, errors.New("connection reset by peer")
	}
	r.queries = append(r.queries, query)
	r.args = append(r.args, args)
	return nil, nil
}

func TestPostgresSink_CreatesTableAndUpserts(t *testing.T) {
	db := &recordingExecer{}
	sink, err := NewPostgresSink(context.Background(), db)
	require.NoError(t, err)

	require.NoError(t, sink.Record(context.Background(), Translation{ID: "3", Source: "Nice", Text: "Sympa"}))

	require.Len(t, db.queries, 2)
	assert.Contains(t, db.queries[0], "CREATE TABLE IF NOT EXISTS translations")
	assert.True(t, strings.Contains(db.queries[1], "ON CONFLICT (id) DO UPDATE"))
	assert.Equal(t, "3", db.args[1][0])
	assert.Equal(t, "Sympa", db.args[1][2])
}

func TestPostgresSink_SetupFailure(t *testing.T) {
	_, err := NewPostgresSink(context.Background(), &recordingExecer{fail: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating translations table")
}
