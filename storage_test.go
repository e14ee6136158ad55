package oram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStorageInitializedToDummies(t *testing.T) {
	st := NewMemStorage(8, 4, 16)
	require.Equal(t, uint64(8), st.NumBuckets())
	require.Equal(t, 4, st.BucketSize())
	require.Equal(t, 16, st.BlockSize())

	for i := uint64(0); i < st.NumBuckets(); i++ {
		bucket, err := st.ReadBucket(i)
		require.NoError(t, err)
		require.Len(t, bucket, 4)
		for j := range bucket {
			assert.Equal(t, 1, bucket[j].ctIsDummy())
			assert.Equal(t, make([]byte, 16), bucket[j].Value)
		}
	}
}

func TestMemStorageCopySemantics(t *testing.T) {
	st := NewMemStorage(4, 2, 4)

	bucket, err := st.ReadBucket(1)
	require.NoError(t, err)
	bucket[0].Address = 42
	bucket[0].Value[0] = 0xff

	again, err := st.ReadBucket(1)
	require.NoError(t, err)
	assert.Equal(t, 1, again[0].ctIsDummy(), "mutating a read bucket must not reach storage")
	assert.Equal(t, byte(0), again[0].Value[0])

	bucket[0].Leaf = 3
	require.NoError(t, st.WriteBucket(1, bucket))
	bucket[0].Value[1] = 0xee

	stored, err := st.ReadBucket(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), stored[0].Address)
	assert.Equal(t, byte(0xff), stored[0].Value[0])
	assert.Equal(t, byte(0), stored[0].Value[1], "mutating a written bucket must not reach storage")
}

func TestMemStorageOutOfRange(t *testing.T) {
	st := NewMemStorage(4, 2, 4)

	_, err := st.ReadBucket(4)
	require.Error(t, err)

	bucket := []Block{newDummyBlock(4), newDummyBlock(4)}
	require.Error(t, st.WriteBucket(99, bucket))
}

func TestMemStorageRejectsMalformedBuckets(t *testing.T) {
	st := NewMemStorage(4, 2, 4)

	require.Error(t, st.WriteBucket(0, []Block{newDummyBlock(4)}), "wrong slot count")
	require.Error(t, st.WriteBucket(0, []Block{newDummyBlock(4), newDummyBlock(8)}), "wrong value size")
}

func TestCountingStorage(t *testing.T) {
	recorder := &traceRecorder{enabled: true}
	st := newCountingStorage(NewMemStorage(4, 2, 4), 1, recorder)

	bucket, err := st.ReadBucket(2)
	require.NoError(t, err)
	require.NoError(t, st.WriteBucket(2, bucket))
	_, err = st.ReadBucket(3)
	require.NoError(t, err)

	assert.Equal(t, Stats{PhysicalReads: 2, PhysicalWrites: 1}, st.stats())
	assert.Equal(t, []TraceEntry{
		{Level: 1, Bucket: 2, Write: false},
		{Level: 1, Bucket: 2, Write: true},
		{Level: 1, Bucket: 3, Write: false},
	}, recorder.entries)

	st.resetStats()
	assert.Equal(t, Stats{}, st.stats())
}

func TestTraceRecorderDisabled(t *testing.T) {
	recorder := &traceRecorder{}
	st := newCountingStorage(NewMemStorage(2, 1, 1), 0, recorder)

	_, err := st.ReadBucket(0)
	require.NoError(t, err)

	assert.Empty(t, recorder.entries)
	assert.Equal(t, Stats{PhysicalReads: 1}, st.stats(), "counters run even with tracing off")
}
