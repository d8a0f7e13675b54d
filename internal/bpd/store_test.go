package bpd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fjacquet/ebics-mt940/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBPD = "HIBPA:5:3:3+39+280:10090000+Berliner Volksbank+1+1+300+1000'" +
	"HIKOM:6:4:3+280:10090000+1+3:https?://hbci.example.de'" +
	"HISHV:7:3:3+N+RDH:3+PIN:1'"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
		warned  bool
	}{
		{"first segment", sampleBPD, 39, false, false},
		{"postbank", "HIBPA:6:3:4+54+280:53070394+Postbank+0+1+300+9999'", 54, false, false},
		{"not first", "HIKOM:6:4:3+280:1'HIBPA:5:3:3+7+280:1+Bank+1+1+300'", 7, false, false},
		{"malformed skipped", "HIBPA:5:3:3+x'HIBPA:6:3:3+12+280:1+Bank+1+1+300'", 12, false, true},
		{"none", "HIKOM:6:4:3+280:1'", 0, true, false},
		{"empty", "", 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := logging.NewMockLogger()
			got, err := ParseVersion(tt.raw, log)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoVersion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.warned, log.HasEntry("WARN", "Couldn't parse segment"))
		})
	}
}

func TestSplitSegments_ReleaseCharacter(t *testing.T) {
	segs := SplitSegments("HNHBK:1:3+it?'s'HNSHK:2:4+x'")
	assert.Equal(t, []string{"HNHBK:1:3+it?'s", "HNSHK:2:4+x"}, segs)
}

// storeContract runs the behaviour every backend shares.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, 280, 10090000)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Version(ctx, 280, 10090000)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, 280, 10090000, sampleBPD))
	got, ok, err := s.Get(ctx, 280, 10090000)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sampleBPD, got)

	v, ok, err := s.Version(ctx, 280, 10090000)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 39, v)

	updated := "HIBPA:5:3:3+40+280:10090000+Berliner Volksbank+1+1+300+1000'"
	require.NoError(t, s.Save(ctx, 280, 10090000, updated))
	v, _, err = s.Version(ctx, 280, 10090000)
	require.NoError(t, err)
	assert.Equal(t, 40, v)

	require.NoError(t, s.Delete(ctx, 280, 10090000))
	_, ok, err = s.Get(ctx, 280, 10090000)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, 280, 10090000), "deleting twice is fine")
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore(logging.NewMockLogger()))
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "bpd"), logging.NewMockLogger())
	require.NoError(t, err)
	storeContract(t, s)
}

func TestFileStore_MigratesLegacyFileName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "280_10090000.bpd"), []byte(sampleBPD), 0o600))
	log := logging.NewMockLogger()
	s, err := NewFileStore(dir, log)
	require.NoError(t, err)

	got, ok, err := s.Get(context.Background(), 280, 10090000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleBPD, got)

	assert.FileExists(t, filepath.Join(dir, "10090000.bpd"))
	assert.NoFileExists(t, filepath.Join(dir, "280_10090000.bpd"))
	assert.True(t, log.HasEntry("INFO", "Migrated legacy BPD file"))
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, Options{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore(ctx, Options{Backend: BackendFile, Directory: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = NewStore(ctx, Options{Backend: BackendFile}, nil)
	assert.Error(t, err)

	_, err = NewStore(ctx, Options{Backend: "redis"}, nil)
	assert.ErrorContains(t, err, "unknown backend")
}
