package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements redisClient without a live server, letting Enqueue's
// success and fallback paths be tested directly.
type fakeRedis struct {
	pushErr error
	pushed  []string
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.pushErr != nil {
		cmd.SetErr(f.pushErr)
		return cmd
	}
	for _, v := range values {
		if s, ok := v.(string); ok {
			f.pushed = append(f.pushed, s)
		}
	}
	cmd.SetVal(int64(len(f.pushed)))
	return cmd
}

func (f *fakeRedis) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}

func (f *fakeRedis) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) LLen(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(f.pushed)))
	return cmd
}

type fakeInline struct {
	ran []Job
}

func (f *fakeInline) RunInline(ctx context.Context, job Job) error {
	f.ran = append(f.ran, job)
	return nil
}

func TestEnqueueSuccess(t *testing.T) {
	client := &fakeRedis{}
	inline := &fakeInline{}
	d := NewDispatcher(client, "runs", 10, inline, zerolog.Nop(), nil)

	require.NoError(t, d.Enqueue(context.Background(), Job{RunID: "r1"}))
	assert.Len(t, client.pushed, 1)
	assert.Empty(t, inline.ran, "expected no inline fallback on success")
}

func TestEnqueueFallsBackInlineOnRedisError(t *testing.T) {
	client := &fakeRedis{pushErr: errors.New("connection refused")}
	inline := &fakeInline{}
	d := NewDispatcher(client, "runs", 10, inline, zerolog.Nop(), nil)

	require.NoError(t, d.Enqueue(context.Background(), Job{RunID: "r2"}), "Enqueue should fall back, not error")
	require.Len(t, inline.ran, 1)
	assert.Equal(t, "r2", inline.ran[0].RunID)
}

func TestEnqueueFallbackErrorsWithoutInlineExecutor(t *testing.T) {
	client := &fakeRedis{pushErr: errors.New("connection refused")}
	d := NewDispatcher(client, "runs", 10, nil, zerolog.Nop(), nil)

	err := d.Enqueue(context.Background(), Job{RunID: "r3"})
	assert.Error(t, err, "expected an error when neither redis nor an inline executor are available")
}

func TestJobMarshalRoundTrip(t *testing.T) {
	j := Job{RunID: "r1", SuiteRef: "suite-a", VersionRef: "v1", Variables: map[string]any{"x": "y"}}
	data, err := j.Marshal()
	require.NoError(t, err)
	got, err := UnmarshalJob(data)
	require.NoError(t, err)

	assert.Equal(t, j.RunID, got.RunID)
	assert.Equal(t, j.SuiteRef, got.SuiteRef)
	assert.Equal(t, "y", got.Variables["x"])
}
