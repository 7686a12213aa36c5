package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"wellness-agent/internal/domain"
)

// Source yields raw lexicon YAML plus an opaque version used to skip
// reloading unchanged content.
type Source interface {
	Load(ctx context.Context) (data []byte, version string, err error)
}

type snapshot struct {
	analyzer *Analyzer
	version  string
	loadedAt time.Time
}

// Holder owns the active lexicon. Readers get an immutable Analyzer; a
// reload builds a new one and swaps it in. A reload that fails to load or
// validate leaves the previous table in place.
type Holder struct {
	source  Source
	refresh time.Duration
	logger  *slog.Logger
	now     func() time.Time

	loadTimeout time.Duration

	reloadMu sync.Mutex
	current  atomic.Pointer[snapshot]
	// lastAttempt is the UnixNano time Refresh last tried a reload.
	lastAttempt atomic.Int64
}

const defaultLoadTimeout = 2 * time.Second

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithRefreshInterval makes Refresh reload once the table is older than d.
func WithRefreshInterval(d time.Duration) HolderOption {
	return func(h *Holder) { h.refresh = d }
}

// WithLoadTimeout bounds each reload started by Refresh.
func WithLoadTimeout(d time.Duration) HolderOption {
	return func(h *Holder) {
		if d > 0 {
			h.loadTimeout = d
		}
	}
}

// WithLogger sets the logger used for reload failures.
func WithLogger(l *slog.Logger) HolderOption {
	return func(h *Holder) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHolder starts with initial and reloads from src (which may be nil for a
// fixed table).
func NewHolder(initial *Lexicon, src Source, opts ...HolderOption) (*Holder, error) {
	a, err := NewAnalyzer(initial)
	if err != nil {
		return nil, err
	}
	h := &Holder{source: src, logger: slog.Default(), now: time.Now, loadTimeout: defaultLoadTimeout}
	for _, opt := range opts {
		opt(h)
	}
	h.current.Store(&snapshot{analyzer: a, version: "builtin", loadedAt: h.now()})
	return h, nil
}

// Analyzer returns the active analyzer.
func (h *Holder) Analyzer() *Analyzer {
	return h.current.Load().analyzer
}

// Version returns the version string of the active table.
func (h *Holder) Version() string {
	return h.current.Load().version
}

// Classify is shorthand for h.Analyzer().Classify.
func (h *Holder) Classify(text string, history []string) domain.RiskClassification {
	return h.Analyzer().Classify(text, history)
}

// Reload fetches the source and swaps in the new table if its version
// changed.
func (h *Holder) Reload(ctx context.Context) error {
	if h.source == nil {
		return errors.New("risk: holder has no source")
	}
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	prev := h.current.Load()
	data, version, err := h.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("risk: load lexicon: %w", err)
	}
	if version != "" && version == prev.version {
		h.current.Store(&snapshot{analyzer: prev.analyzer, version: prev.version, loadedAt: h.now()})
		return nil
	}
	lex, err := ParseLexicon(data)
	if err != nil {
		return err
	}
	h.current.Store(&snapshot{analyzer: &Analyzer{lex: lex}, version: version, loadedAt: h.now()})
	h.logger.Info("risk lexicon reloaded", "version", version, "lexicon_version", lex.Version)
	return nil
}

// Refresh reloads when the refresh interval has elapsed since the last load
// or the last attempt, so a failing source is tried at most once per
// interval. Failures are logged and the current table stays active.
func (h *Holder) Refresh(ctx context.Context) {
	if h.source == nil || h.refresh <= 0 {
		return
	}
	now := h.now()
	if now.Sub(h.current.Load().loadedAt) < h.refresh {
		return
	}
	last := h.lastAttempt.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < h.refresh {
		return
	}
	// One caller per interval; concurrent requests keep the current table.
	if !h.lastAttempt.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.loadTimeout)
	defer cancel()
	if err := h.Reload(ctx); err != nil {
		h.logger.Error("risk lexicon reload failed; keeping previous table", "err", err, "version", h.Version())
	}
}
