// Package reconstruct implements the Session Reconstructor (C12): a
// chronological replay of a project's chunks over a resolved time window,
// truncated to a token budget from whichever end the caller prefers to
// drop first.
package reconstruct

import (
	"context"
	"sort"
	"time"

	"github.com/causantic/causantic/internal/causanticerr"
	"github.com/causantic/causantic/internal/model"
)

// ChunkLookup is the subset of the Chunk Store the reconstructor needs.
type ChunkLookup interface {
	ListBySession(ctx context.Context, sessionID string) ([]*model.Chunk, error)
	InTimeRange(ctx context.Context, project string, from, to time.Time) ([]*model.Chunk, error)
	SessionSummaries(ctx context.Context, project string, from, to time.Time) ([]model.SessionSummary, error)
}

// Options selects exactly one window-resolution mode: SessionID, the
// From/To pair, DaysBack, or PreviousSession (which additionally requires
// CurrentSessionID). KeepNewest controls which end gets truncated first
// when the window's total tokens exceed MaxTokens; callers that want the
// spec's documented default of true must set it explicitly, since this
// package's Options carries no implicit default.
type Options struct {
	SessionID         string
	From, To          time.Time
	DaysBack          int
	PreviousSession   bool
	CurrentSessionID  string
	Project           string
	MaxTokens         int
	KeepNewest        bool
	now               func() time.Time // overridable for tests; defaults to time.Now
}

// Reconstruct resolves the requested time window, fetches every chunk in
// it for the project in chronological order, truncates to MaxTokens from
// whichever end KeepNewest indicates, and reports session-boundary
// crossings.
func Reconstruct(ctx context.Context, chunks ChunkLookup, opts Options) (model.ReconstructResult, error) {
	if opts.PreviousSession && opts.CurrentSessionID == "" {
		return model.ReconstructResult{}, causanticerr.InvalidInput("previous_session requires current_session_id", nil)
	}

	now := opts.now
	if now == nil {
		now = time.Now
	}

	var list []*model.Chunk
	var from, to time.Time

	switch {
	case opts.SessionID != "":
		chunksInSession, err := chunks.ListBySession(ctx, opts.SessionID)
		if err != nil {
			return model.ReconstructResult{}, err
		}
		list = chunksInSession
		if len(list) > 0 {
			from, to = list[0].StartTime, list[len(list)-1].EndTime
		}

	case opts.PreviousSession:
		currentChunks, err := chunks.ListBySession(ctx, opts.CurrentSessionID)
		if err != nil {
			return model.ReconstructResult{}, err
		}
		if len(currentChunks) == 0 {
			return model.ReconstructResult{}, nil
		}
		currentStart := currentChunks[0].StartTime

		summaries, err := chunks.SessionSummaries(ctx, opts.Project, time.Time{}, time.Time{})
		if err != nil {
			return model.ReconstructResult{}, err
		}
		var prev *model.SessionSummary
		for i := range summaries {
			sm := &summaries[i]
			if sm.SessionID == opts.CurrentSessionID {
				continue
			}
			if !sm.FirstSeen.Before(currentStart) {
				continue
			}
			if prev == nil || sm.FirstSeen.After(prev.FirstSeen) {
				prev = sm
			}
		}
		if prev == nil {
			return model.ReconstructResult{}, nil
		}

		fetched, err := chunks.ListBySession(ctx, prev.SessionID)
		if err != nil {
			return model.ReconstructResult{}, err
		}
		list = fetched
		from, to = prev.FirstSeen, prev.LastSeen

	case opts.DaysBack > 0:
		to = now()
		from = to.Add(-time.Duration(opts.DaysBack) * 24 * time.Hour)
		fetched, err := chunks.InTimeRange(ctx, opts.Project, from, to)
		if err != nil {
			return model.ReconstructResult{}, err
		}
		list = fetched

	default:
		from, to = opts.From, opts.To
		fetched, err := chunks.InTimeRange(ctx, opts.Project, from, to)
		if err != nil {
			return model.ReconstructResult{}, err
		}
		list = fetched
	}

	sort.SliceStable(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })

	kept, truncated := applyBudget(list, opts.MaxTokens, opts.KeepNewest)

	result := model.ReconstructResult{
		Chunks:         kept,
		Sessions:       sessionsOf(kept),
		TotalTokens:    sumTokens(kept),
		Truncated:      truncated,
		TimeRangeStart: from,
		TimeRangeEnd:   to,
	}
	return result, nil
}

// applyBudget truncates chunks from the older end when keepNewest, or the
// newer end otherwise, stopping once total tokens would exceed maxTokens.
// A maxTokens <= 0 means unbounded. Output order is always chronological
// ascending regardless of which end was dropped.
func applyBudget(chunks []*model.Chunk, maxTokens int, keepNewest bool) ([]*model.Chunk, bool) {
	if maxTokens <= 0 || len(chunks) == 0 {
		return chunks, false
	}

	total := sumTokens(chunks)
	if total <= maxTokens {
		return chunks, false
	}

	if keepNewest {
		// Walk from the newest chunk backward, keeping as many as fit.
		budget := maxTokens
		start := len(chunks)
		for start > 0 {
			cost := chunks[start-1].ApproxTokens
			if cost > budget {
				break
			}
			budget -= cost
			start--
		}
		return chunks[start:], true
	}

	budget := maxTokens
	end := 0
	for end < len(chunks) {
		cost := chunks[end].ApproxTokens
		if cost > budget {
			break
		}
		budget -= cost
		end++
	}
	return chunks[:end], true
}

func sumTokens(chunks []*model.Chunk) int {
	total := 0
	for _, c := range chunks {
		total += c.ApproxTokens
	}
	return total
}

// sessionsOf summarizes the kept chunks' session boundaries in the order
// they appear, one entry per distinct session_id, used both to report the
// sessions touched and to let callers render boundary markers between
// adjacent chunks from different sessions.
func sessionsOf(chunks []*model.Chunk) []model.SessionSummary {
	order := []string{}
	bySession := map[string]*model.SessionSummary{}

	for _, c := range chunks {
		sm, ok := bySession[c.SessionID]
		if !ok {
			sm = &model.SessionSummary{SessionID: c.SessionID, ProjectSlug: c.ProjectSlug, FirstSeen: c.StartTime, LastSeen: c.EndTime}
			bySession[c.SessionID] = sm
			order = append(order, c.SessionID)
		}
		sm.ChunkCount++
		if c.StartTime.Before(sm.FirstSeen) {
			sm.FirstSeen = c.StartTime
		}
		if c.EndTime.After(sm.LastSeen) {
			sm.LastSeen = c.EndTime
		}
	}

	out := make([]model.SessionSummary, len(order))
	for i, id := range order {
		out[i] = *bySession[id]
	}
	return out
}
