package csvlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spectools/wavemeter/internal/domain"
)

func sampleAt(ms int, value float64) domain.Sample {
	return domain.Sample{Elapsed: time.Duration(ms) * time.Millisecond, Value: value}
}

func TestSink_ExactFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Append(sampleAt(100, 532.0012)))
	require.NoError(t, s.Append(sampleAt(200, 532.0015)))
	require.NoError(t, s.Append(sampleAt(300, 532.0009)))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Time (s), Wavelength\n0.10, 532.0012\n0.20, 532.0015\n0.30, 532.0009\n", string(data))
}

func TestSink_HeaderOnlyWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path, WithGuard(false))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Header+"\n", string(data))
}

func TestSink_NPlusOneLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path, WithSync(false))
	require.NoError(t, err)

	const n = 57
	for i := 1; i <= n; i++ {
		require.NoError(t, s.Append(sampleAt(i*100, 500+float64(i)/10)))
	}
	assert.Equal(t, n, s.Rows())

	// rows are on disk before Close
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	assert.Len(t, lines, n+1)
	require.NoError(t, s.Close())

	samples, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, samples, n)
	for i := 1; i < len(samples); i++ {
		assert.Greater(t, samples[i].Elapsed, samples[i-1].Elapsed)
	}
}

func TestSink_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	require.NoError(t, err)

	in := []domain.Sample{
		{Elapsed: 101234567 * time.Nanosecond, Value: 532.00123},
		{Elapsed: 203 * time.Millisecond, Value: 632.99157},
		{Elapsed: 12*time.Second + 345*time.Millisecond, Value: 1550.12},
	}
	for _, smp := range in {
		require.NoError(t, s.Append(smp))
	}
	require.NoError(t, s.Close())

	out, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i].ElapsedSeconds(), out[i].ElapsedSeconds(), 0.005)
		assert.InDelta(t, in[i].Value, out[i].Value, 0.00005)
	}
}

func TestSink_CloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(sampleAt(100, 1)))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Time (s), Wavelength\n0.10, 1.0000\n", string(data))
}

func TestSink_AppendAfterClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Append(sampleAt(100, 1)), domain.ErrIO)
}

func TestSink_RejectsOutOfOrder(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), FileName), WithGuard(false))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(sampleAt(200, 1)))
	for _, sample := range []domain.Sample{sampleAt(200, 2), sampleAt(100, 3)} {
		err := s.Append(sample)
		assert.ErrorIs(t, err, domain.ErrOutOfOrder)
		assert.NotErrorIs(t, err, domain.ErrIO)
	}
	assert.Equal(t, 1, s.Rows())

	require.NoError(t, s.Append(sampleAt(300, 4)))
	assert.Equal(t, 2, s.Rows())
}

func TestOpen_DoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("precious\n"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, domain.ErrIO)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "precious\n", string(data))
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope", FileName))
	assert.ErrorIs(t, err, domain.ErrIO)
}

func TestSink_RemovedFileFailsAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(sampleAt(100, 1)))
	require.NoError(t, os.Remove(path))

	ms := 200
	assert.Eventually(t, func() bool {
		ms += 100
		return s.Append(sampleAt(ms, 2)) != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRead_RejectsForeignHeader(t *testing.T) {
	_, err := Read(strings.NewReader("t,v\n1,2\n"))
	assert.Error(t, err)

	_, err = Read(strings.NewReader(""))
	assert.Error(t, err)
}
