package rentalService

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nikhil/doussel/internal/cache"
)

// Cached summaries are keyed by a per-scope generation. A lease or expense
// write can move any month of its owner and team, so writers replace the
// generation instead of deleting month keys one by one.

func summaryGenerationKey(scope, id string) string {
	return "finance:gen:" + scope + ":" + id
}

func summaryGeneration(ctx context.Context, c cache.CacheInterface, scope, id string) string {
	gen, err := c.Get(ctx, summaryGenerationKey(scope, id))
	if err != nil || gen == "" {
		return "0"
	}
	return gen
}

func summaryCacheKey(scope, id, gen string, year, month int) string {
	return fmt.Sprintf("finance:%s:%s:%s:%04d-%02d", scope, id, gen, year, month)
}

// InvalidateSummaries retires every cached financial summary of an owner and,
// when teamID is set, of that team.
func InvalidateSummaries(ctx context.Context, c cache.CacheInterface, ownerID string, teamID *string) error {
	gen := uuid.NewString()
	if ownerID != "" {
		if err := c.Set(ctx, summaryGenerationKey("owner", ownerID), gen, 0); err != nil {
			return err
		}
	}
	if teamID != nil && *teamID != "" {
		return c.Set(ctx, summaryGenerationKey("team", *teamID), gen, 0)
	}
	return nil
}

func (rs *RentalService) invalidateSummaries(ctx context.Context, ownerID string, teamID *string) {
	if err := InvalidateSummaries(ctx, rs.Cache, ownerID, teamID); err != nil {
		rs.Log.Warn("Failed to invalidate financial summary", "error", err, "owner_id", ownerID)
	}
}
