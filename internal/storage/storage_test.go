package storage

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-chart-service/internal/metrics"
	"sensor-chart-service/internal/series"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(mr.Addr(), "", 0, "sensor:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return mr, store
}

func newMemory(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenBadger("", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// backendContract checks the behaviour every backend must share
func backendContract(t *testing.T, b Backend) {
	val, err := b.Get("missing")
	require.NoError(t, err)
	assert.Equal(t, "", val)

	require.NoError(t, b.Set("Temperature_0", "1;2"))
	val, err = b.Get("Temperature_0")
	require.NoError(t, err)
	assert.Equal(t, "1;2", val)

	require.NoError(t, b.Delete("Temperature_0"))
	val, err = b.Get("Temperature_0")
	require.NoError(t, err)
	assert.Equal(t, "", val)

	// deleting a missing key is not an error
	assert.NoError(t, b.Delete("Temperature_0"))

	n, err := b.GetCounter(ReadingsTotalKey)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	for i := 1; i <= 3; i++ {
		n, err = b.IncrementCounter(ReadingsTotalKey)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}

	assert.NoError(t, b.Ping())
}

func TestRedisStore(t *testing.T) {
	_, store := newRedis(t)
	assert.Equal(t, BackendRedis, store.Name())
	backendContract(t, store)
}

func TestRedisStore_UsesPrefix(t *testing.T) {
	mr, store := newRedis(t)
	require.NoError(t, store.Set("Voltage_0", "0;3.3"))

	got, err := mr.Get("sensor:Voltage_0")
	require.NoError(t, err)
	assert.Equal(t, "0;3.3", got)
	assert.False(t, mr.Exists("Voltage_0"))
}

func TestRedisStore_ConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(addr, "", 0, "")
	assert.Error(t, err)
}

func TestBadgerStore_InMemory(t *testing.T) {
	store := newMemory(t)
	assert.Equal(t, BackendMemory, store.Name())
	backendContract(t, store)
}

func TestBadgerStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenBadger(dir, false, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, store.Name())
	require.NoError(t, store.Set("Humidity_0", "5;40"))
	require.NoError(t, store.Close())

	reopened, err := OpenBadger(dir, false, nil)
	require.NoError(t, err)
	defer reopened.Close()
	val, err := reopened.Get("Humidity_0")
	require.NoError(t, err)
	assert.Equal(t, "5;40", val)
}

func TestOpen(t *testing.T) {
	b, err := Open(Options{Backend: BackendMemory}, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, b.Name())
	require.NoError(t, b.Close())

	_, err = Open(Options{Backend: "etcd"}, nil)
	assert.Error(t, err)
}

func TestOpenWithRetry_GivesUp(t *testing.T) {
	start := time.Now()
	_, err := OpenWithRetry(Options{Backend: "etcd"}, 1, nil)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestInstrumented_CountsOperations(t *testing.T) {
	store := Instrument(newMemory(t))

	before := testutil.ToFloat64(metrics.StorageOps.WithLabelValues(BackendMemory, "set", "ok"))
	require.NoError(t, store.Set("k", "v"))
	require.NoError(t, store.Set("k", "w"))
	after := testutil.ToFloat64(metrics.StorageOps.WithLabelValues(BackendMemory, "set", "ok"))
	assert.Equal(t, before+2, after)

	getsBefore := testutil.ToFloat64(metrics.StorageOps.WithLabelValues(BackendMemory, "get", "ok"))
	_, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, getsBefore+1, testutil.ToFloat64(metrics.StorageOps.WithLabelValues(BackendMemory, "get", "ok")))
}

func TestSeriesRoundTrip_OverRedis(t *testing.T) {
	_, store := newRedis(t)
	t0 := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)

	src := series.New("Temperature", store, nil)
	for i := 0; i < 10; i++ {
		src.AddPoint(series.Instant(t0.Add(time.Duration(i)*time.Minute)), 20+float64(i)/10)
	}

	dst := series.New("Temperature", store, nil)
	require.NoError(t, dst.Recover())
	require.Equal(t, 10, dst.Len())
	for i := 0; i < 10; i++ {
		assert.True(t, src.At(i).Equal(dst.At(i)), "point %d", i)
	}

	deleted, err := dst.ClearStorage()
	require.NoError(t, err)
	assert.Equal(t, 10, deleted)

	empty := series.New("Temperature", store, nil)
	require.NoError(t, empty.Recover())
	assert.Equal(t, 0, empty.Len())
}
