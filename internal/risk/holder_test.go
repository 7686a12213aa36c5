package risk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wellness-agent/internal/domain"
)

type fakeSource struct {
	data    string
	version string
	err     error
	calls   int
}

func (f *fakeSource) Load(_ context.Context) ([]byte, string, error) {
	f.calls++
	return []byte(f.data), f.version, f.err
}

type fakeVersionedGetter struct {
	val     string
	version int64
	err     error
	name    string
}

func (f *fakeVersionedGetter) GetParameterVersion(_ context.Context, name string) (string, int64, error) {
	f.name = name
	return f.val, f.version, f.err
}

func TestHolder_StartsWithInitialTable(t *testing.T) {
	h, err := NewHolder(DefaultLexicon(), nil)
	require.NoError(t, err)
	require.Equal(t, "builtin", h.Version())
	require.Equal(t, domain.LevelCritical, h.Classify("I want to end it all", nil).Level)
	require.Error(t, h.Reload(context.Background()))
}

func TestHolder_ReloadSwapsTable(t *testing.T) {
	src := &fakeSource{data: minimalLexicon, version: "v2"}
	h, err := NewHolder(DefaultLexicon(), src)
	require.NoError(t, err)

	before := h.Analyzer()
	require.NoError(t, h.Reload(context.Background()))
	require.Equal(t, "v2", h.Version())
	require.NotSame(t, before, h.Analyzer())
	require.Equal(t, []domain.TriggerCategory{"BOREDOM"}, h.Classify("so bored", nil).Triggers)
}

func TestHolder_ReloadSameVersionKeepsAnalyzer(t *testing.T) {
	src := &fakeSource{data: minimalLexicon, version: "v2"}
	h, err := NewHolder(DefaultLexicon(), src)
	require.NoError(t, err)
	require.NoError(t, h.Reload(context.Background()))
	a := h.Analyzer()
	require.NoError(t, h.Reload(context.Background()))
	require.Same(t, a, h.Analyzer())
}

func TestHolder_InvalidReloadKeepsPrevious(t *testing.T) {
	src := &fakeSource{data: "categories: [", version: "broken"}
	h, err := NewHolder(DefaultLexicon(), src)
	require.NoError(t, err)
	require.Error(t, h.Reload(context.Background()))
	require.Equal(t, "builtin", h.Version())

	src.err = errors.New("ssm down")
	require.Error(t, h.Reload(context.Background()))
	require.Equal(t, domain.LevelCritical, h.Classify("I want to end it all", nil).Level)
}

func TestHolder_RefreshHonoursInterval(t *testing.T) {
	src := &fakeSource{data: minimalLexicon, version: "v2"}
	h, err := NewHolder(DefaultLexicon(), src, WithRefreshInterval(time.Minute))
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	h.current.Load().loadedAt = now

	h.Refresh(context.Background())
	require.Zero(t, src.calls)

	now = now.Add(2 * time.Minute)
	h.Refresh(context.Background())
	require.Equal(t, 1, src.calls)
	require.Equal(t, "v2", h.Version())
}

func TestHolder_RefreshFailureIsLogged(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	h, err := NewHolder(DefaultLexicon(), src, WithRefreshInterval(time.Nanosecond))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	h.Refresh(context.Background())
	require.Equal(t, "builtin", h.Version())
}

func TestHolder_FailedRefreshWaitsForNextInterval(t *testing.T) {
	src := &fakeSource{err: errors.New("ssm down")}
	h, err := NewHolder(DefaultLexicon(), src, WithRefreshInterval(time.Minute))
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	h.current.Load().loadedAt = now

	now = now.Add(2 * time.Minute)
	for i := 0; i < 100; i++ {
		h.Refresh(context.Background())
	}
	require.Equal(t, 1, src.calls)
	require.Equal(t, "builtin", h.Version())

	now = now.Add(30 * time.Second)
	h.Refresh(context.Background())
	require.Equal(t, 1, src.calls)

	now = now.Add(31 * time.Second)
	h.Refresh(context.Background())
	require.Equal(t, 2, src.calls)

	src.err = nil
	src.data, src.version = minimalLexicon, "v3"
	now = now.Add(time.Minute)
	h.Refresh(context.Background())
	require.Equal(t, 3, src.calls)
	require.Equal(t, "v3", h.Version())
}

type slowSource struct{}

func (slowSource) Load(ctx context.Context) ([]byte, string, error) {
	<-ctx.Done()
	return nil, "", ctx.Err()
}

func TestHolder_RefreshIsBounded(t *testing.T) {
	h, err := NewHolder(DefaultLexicon(), slowSource{},
		WithRefreshInterval(time.Nanosecond), WithLoadTimeout(20*time.Millisecond))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	start := time.Now()
	h.Refresh(context.Background())
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, "builtin", h.Version())
}

func TestParamSource(t *testing.T) {
	_, err := NewParamSource(nil, "/p")
	require.Error(t, err)
	g := &fakeVersionedGetter{val: minimalLexicon, version: 7}
	_, err = NewParamSource(g, " ")
	require.Error(t, err)

	src, err := NewParamSource(g, "/wellness/risk/lexicon")
	require.NoError(t, err)
	data, version, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, minimalLexicon, string(data))
	require.Equal(t, "ssm:7", version)
	require.Equal(t, "/wellness/risk/lexicon", g.name)
}

func TestFileSource(t *testing.T) {
	_, err := NewFileSource("")
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	src, err := NewFileSource(path)
	require.NoError(t, err)
	_, _, err = src.Load(context.Background())
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(minimalLexicon), 0o600))
	data, v1, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, minimalLexicon, string(data))

	require.NoError(t, os.WriteFile(path, []byte(minimalLexicon+"\n# edit\n"), 0o600))
	_, v2, err := src.Load(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, v1, v2)
}

func TestHolder_WatchFileReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, defaultLexiconYAML, 0o600))
	src, err := NewFileSource(path)
	require.NoError(t, err)
	h, err := NewHolder(DefaultLexicon(), src)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.WatchFile(ctx, path))

	require.NoError(t, os.WriteFile(path, []byte(minimalLexicon), 0o600))
	require.Eventually(t, func() bool {
		return h.Analyzer().Lexicon().Version == 2
	}, 5*time.Second, 20*time.Millisecond)
}
