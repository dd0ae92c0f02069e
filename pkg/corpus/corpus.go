// Package corpus loads the devotional-day catalog and the reference-volume
// excerpt pool into an immutable in-memory snapshot.
//
// The snapshot is swapped atomically on reindex, never edited in place, so
// concurrent readers always observe a complete corpus. Reindex is a
// single-writer operation: a second trigger while one rebuild is in flight
// is rejected instead of queued.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/creativcreature/euongelion-sub003/pkg/domain"
)

// ErrReindexInFlight reports a reindex trigger while a rebuild is running.
var ErrReindexInFlight = errors.New("corpus reindex already in flight")

// CandidateList groups one series' candidates with its metadata.
type CandidateList struct {
	Meta       SeriesMeta
	Candidates []domain.CuratedCandidate
}

// Snapshot is one immutable view of both corpora.
type Snapshot struct {
	Candidates  []domain.CuratedCandidate
	Series      map[string]SeriesMeta
	SeriesOrder []string
	Reference   []ReferenceLine
	LoadedAt    time.Time
}

// Corpus owns the current snapshot and the reindex lifecycle.
type Corpus struct {
	source Source

	snap       atomic.Pointer[Snapshot]
	rebuildMu  sync.Mutex
	rebuilding atomic.Bool
}

// New builds a corpus over the given document source. The snapshot starts
// empty; call Load before serving.
func New(source Source) *Corpus {
	c := &Corpus{source: source}
	c.snap.Store(&Snapshot{Series: map[string]SeriesMeta{}})
	return c
}

// Load performs the initial build. Unlike Reindex it is expected to run once
// at startup, but it shares the single-writer guard for safety.
func (c *Corpus) Load(ctx context.Context) error {
	return c.Reindex(ctx)
}

// Reindex rebuilds both corpora and swaps the snapshot atomically.
// Returns ErrReindexInFlight when another rebuild is running.
func (c *Corpus) Reindex(ctx context.Context) error {
	if !c.rebuilding.CompareAndSwap(false, true) {
		return ErrReindexInFlight
	}
	defer c.rebuilding.Store(false)
	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()

	paths, err := c.source.List(ctx)
	if err != nil {
		return fmt.Errorf("list corpus documents: %w", err)
	}

	var (
		entries   []seriesEntry
		reference []ReferenceLine
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		entries, err = loadCatalog(groupCtx, c.source, paths)
		return err
	})
	group.Go(func() error {
		var err error
		reference, err = loadReference(groupCtx, c.source, paths)
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}

	lists, metas := candidatesFromEntries(entries)
	snapshot := &Snapshot{
		Series:    make(map[string]SeriesMeta, len(metas)),
		Reference: reference,
		LoadedAt:  time.Now().UTC(),
	}
	for _, list := range lists {
		snapshot.Series[list.Meta.Slug] = list.Meta
		snapshot.SeriesOrder = append(snapshot.SeriesOrder, list.Meta.Slug)
		snapshot.Candidates = append(snapshot.Candidates, list.Candidates...)
	}
	c.snap.Store(snapshot)
	return nil
}

// Snapshot returns the current immutable view.
func (c *Corpus) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Candidates returns the read-only candidate slice. Callers must not mutate it.
func (c *Corpus) Candidates() []domain.CuratedCandidate {
	return c.snap.Load().Candidates
}

// CandidatesForSeries returns the candidates for one series in day order.
func (c *Corpus) CandidatesForSeries(slug string) []domain.CuratedCandidate {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil
	}
	var out []domain.CuratedCandidate
	for _, candidate := range c.snap.Load().Candidates {
		if candidate.SeriesSlug == slug {
			out = append(out, candidate)
		}
	}
	return out
}

// Empty reports whether the current snapshot holds no candidates.
func (c *Corpus) Empty() bool {
	return len(c.snap.Load().Candidates) == 0
}

var daySuffix = regexp.MustCompile(`-day-(\d+)$`)

// ResolveDevotional maps a devotional slug ("identity" or
// "identity-crisis-day-1") to a concrete candidate in the local corpus.
func (c *Corpus) ResolveDevotional(slug string) (domain.CuratedCandidate, bool) {
	slug = strings.TrimSpace(strings.ToLower(slug))
	if slug == "" {
		return domain.CuratedCandidate{}, false
	}
	snapshot := c.snap.Load()

	seriesSlug := slug
	dayNumber := 0
	if match := daySuffix.FindStringSubmatch(slug); match != nil {
		seriesSlug = strings.TrimSuffix(slug, match[0])
		dayNumber, _ = strconv.Atoi(match[1])
	}

	var first *domain.CuratedCandidate
	for i := range snapshot.Candidates {
		candidate := &snapshot.Candidates[i]
		if candidate.SeriesSlug != seriesSlug && !strings.HasPrefix(candidate.SeriesSlug, seriesSlug) {
			continue
		}
		if dayNumber > 0 {
			if candidate.DayNumber == dayNumber {
				return *candidate, true
			}
			continue
		}
		if first == nil || candidate.DayNumber < first.DayNumber {
			first = candidate
		}
	}
	if first != nil {
		return *first, true
	}
	return domain.CuratedCandidate{}, false
}

// SeriesMetaFor returns metadata for one series slug.
func (c *Corpus) SeriesMetaFor(slug string) (SeriesMeta, bool) {
	meta, ok := c.snap.Load().Series[slug]
	return meta, ok
}
