package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/altiplano-labs/archivador/internal/intent"
	"github.com/altiplano-labs/archivador/internal/media"
	"github.com/google/uuid"
)

const allLimit = 20

// MediaQuerier is the query surface the resolver needs from the repository.
type MediaQuerier interface {
	LatestMedia(ctx context.Context, userID uuid.UUID, mediaType string) (*media.File, error)
	MediaByDateRange(ctx context.Context, userID uuid.UUID, from, to time.Time, mediaType string) ([]media.File, error)
	AllMedia(ctx context.Context, userID uuid.UUID, mediaType string, limit int) ([]media.File, error)
	SearchMedia(ctx context.Context, userID uuid.UUID, tokens []string) ([]media.File, error)
}

// Resolver executes the query strategy matching a classified intent and
// returns candidates most-recent first. An empty result is not an error.
type Resolver struct {
	repo MediaQuerier
	loc  *time.Location
	now  func() time.Time
}

func NewResolver(repo MediaQuerier, loc *time.Location) *Resolver {
	if repo == nil {
		panic("retrieval: media querier cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{repo: repo, loc: loc, now: time.Now}
}

// Resolve picks exactly one strategy, in priority order: semantic search,
// then latest, then calendar-day windows, then the bounded "all" listing.
// A present search query overrides the structural filters entirely.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, in intent.Intent) ([]media.File, error) {
	if in.SearchQuery != "" {
		return r.repo.SearchMedia(ctx, userID, strings.Fields(in.SearchQuery))
	}

	switch in.Timeframe {
	case intent.TimeframeLatest:
		f, err := r.repo.LatestMedia(ctx, userID, in.FileType)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, nil
		}
		return []media.File{*f}, nil

	case intent.TimeframeToday:
		from, to := r.dayWindow(0)
		return r.repo.MediaByDateRange(ctx, userID, from, to, in.FileType)

	case intent.TimeframeYesterday:
		from, to := r.dayWindow(-1)
		return r.repo.MediaByDateRange(ctx, userID, from, to, in.FileType)

	case intent.TimeframeAll, "":
		return r.repo.AllMedia(ctx, userID, in.FileType, allLimit)

	default:
		return nil, fmt.Errorf("retrieval: unknown timeframe %q", in.Timeframe)
	}
}

// dayWindow returns the local calendar-day bounds [00:00:00.000, 23:59:59.999]
// for today shifted by offset days.
func (r *Resolver) dayWindow(offsetDays int) (time.Time, time.Time) {
	now := r.now().In(r.loc)
	start := time.Date(now.Year(), now.Month(), now.Day()+offsetDays, 0, 0, 0, 0, r.loc)
	end := start.Add(24*time.Hour - time.Millisecond)
	return start, end
}
