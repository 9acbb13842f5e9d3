package favoriteService

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/metrics"
	"github.com/nikhil/doussel/internal/models"
	"github.com/nikhil/doussel/internal/ratelimit"
	"github.com/nikhil/doussel/pkg/utils"
)

// Favorites limits
const (
	MaxSyncPerRequest  = 50
	MaxPerUser         = 100
	SuspiciousAttempts = 100
	maxUserAgentLength = 500
)

// SyncWindows bound how often one user may sync.
var SyncWindows = []ratelimit.Window{
	{Limit: 3, Period: time.Hour},
	{Limit: 10, Period: 24 * time.Hour},
}

type FavoriteService struct {
	DB      *sqlx.DB
	Limiter ratelimit.Limiter
	Log     *logger.Logger
	Now     func() time.Time
}

func NewFavoriteService(db *sqlx.DB, limiter ratelimit.Limiter) *FavoriteService {
	return &FavoriteService{
		DB:      db,
		Limiter: limiter,
		Log:     logger.NewLogger("favorite-service"),
		Now:     time.Now,
	}
}

// AddFavorite saves a property for the user. Adding twice is a no-op.
func (fs *FavoriteService) AddFavorite(ctx context.Context, userID, propertyID string) error {
	var exists int
	if err := database.Get(ctx, fs.DB, &exists, "SELECT COUNT(*) FROM properties WHERE id = ?", propertyID); err != nil {
		return err
	}
	if exists == 0 {
		return apperrors.NotFound("property")
	}

	var already int
	if err := database.Get(ctx, fs.DB, &already,
		"SELECT COUNT(*) FROM favorites WHERE user_id = ? AND property_id = ?", userID, propertyID); err != nil {
		return err
	}
	if already > 0 {
		return nil
	}

	var count int
	if err := database.Get(ctx, fs.DB, &count, "SELECT COUNT(*) FROM favorites WHERE user_id = ?", userID); err != nil {
		return err
	}
	if count >= MaxPerUser {
		return apperrors.Validation("you cannot keep more than %d favorites", MaxPerUser)
	}

	_, err := database.Exec(ctx, fs.DB,
		"INSERT INTO favorites (user_id, property_id, created_at) VALUES (?, ?, ?)",
		userID, propertyID, fs.Now().UTC())
	return err
}

func (fs *FavoriteService) RemoveFavorite(ctx context.Context, userID, propertyID string) error {
	result, err := database.Exec(ctx, fs.DB,
		"DELETE FROM favorites WHERE user_id = ? AND property_id = ?", userID, propertyID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFound("favorite")
	}
	return nil
}

// ListFavorites returns the user's saved properties, newest first.
func (fs *FavoriteService) ListFavorites(ctx context.Context, userID string) ([]models.Favorite, error) {
	items := []models.Favorite{}
	err := database.Select(ctx, fs.DB, &items,
		"SELECT user_id, property_id, created_at FROM favorites WHERE user_id = ? ORDER BY created_at DESC", userID)
	return items, err
}

// SyncRequest carries the favorites an anonymous visitor collected before login.
type SyncRequest struct {
	PropertyIDs []string `json:"property_ids"`
	IPAddress   string   `json:"-"`
	UserAgent   string   `json:"-"`
}

// SyncFavorites merges anonymous favorites into the user's account. A rate
// limited sync is reported through the result, not as an error.
func (fs *FavoriteService) SyncFavorites(ctx context.Context, userID string, req SyncRequest) (*models.SyncResult, error) {
	now := fs.Now()
	if res := fs.Limiter.Allow(ctx, ratelimit.Key("favorites-sync", userID), now, SyncWindows...); !res.Allowed {
		metrics.RecordFavoritesSync("rate_limited")
		fs.Log.Warn("Favorites sync rate limited", "user_id", userID, "retry_after", res.RetryAfter)
		return &models.SyncResult{
			RateLimited: true,
			RetryAfter:  int(res.RetryAfter.Seconds()),
			Error:       "Limite de synchronisation atteinte. Réessayez plus tard.",
		}, nil
	}

	attempted := len(req.PropertyIDs)
	ids := req.PropertyIDs
	trimmed := 0
	if attempted > MaxSyncPerRequest {
		trimmed = attempted - MaxSyncPerRequest
		ids = ids[attempted-MaxSyncPerRequest:]
	}

	valid := map[string]bool{}
	if len(ids) > 0 {
		query, args, err := database.In("SELECT id FROM properties WHERE id IN (?)", ids)
		if err != nil {
			return nil, err
		}
		var found []string
		if err := database.Select(ctx, fs.DB, &found, query, args...); err != nil {
			metrics.RecordFavoritesSync("error")
			return nil, err
		}
		for _, id := range found {
			valid[id] = true
		}
	}

	var existing []string
	if err := database.Select(ctx, fs.DB, &existing, "SELECT property_id FROM favorites WHERE user_id = ?", userID); err != nil {
		metrics.RecordFavoritesSync("error")
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, id := range existing {
		have[id] = true
	}

	duplicates := 0
	seen := map[string]bool{}
	var fresh []string
	for _, id := range ids {
		switch {
		case have[id] || seen[id]:
			duplicates++
		case valid[id]:
			fresh = append(fresh, id)
		}
		seen[id] = true
	}

	slots := MaxPerUser - len(existing)
	if slots < 0 {
		slots = 0
	}
	toInsert := fresh
	if len(toInsert) > slots {
		toInsert = toInsert[:slots]
	}

	synced := 0
	if len(toInsert) > 0 {
		err := database.WithTx(ctx, fs.DB, func(tx *sqlx.Tx) error {
			for _, id := range toInsert {
				if _, err := database.Exec(ctx, tx,
					"INSERT INTO favorites (user_id, property_id, created_at) VALUES (?, ?, ?)",
					userID, id, now.UTC()); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			fs.Log.Error("Failed to insert synced favorites", "error", err, "user_id", userID)
		} else {
			synced = len(toInsert)
		}
	}

	fs.writeSyncLog(ctx, userID, req, attempted, synced, trimmed > 0, now)
	fs.Log.Info("Favorites synced", "user_id", userID, "attempted", attempted, "synced", synced,
		"duplicates", duplicates, "invalid", len(ids)-len(valid), "trimmed", trimmed)
	metrics.RecordFavoritesSync("ok")

	return &models.SyncResult{
		Success:    true,
		Synced:     synced,
		Duplicates: duplicates,
		Trimmed:    trimmed + len(fresh) - len(toInsert),
	}, nil
}

// writeSyncLog records the attempt for abuse detection; failures are only logged.
func (fs *FavoriteService) writeSyncLog(ctx context.Context, userID string, req SyncRequest, attempted, synced int, wasTrimmed bool, now time.Time) {
	var trimmedTo, ip, agent interface{}
	if wasTrimmed {
		trimmedTo = MaxSyncPerRequest
	}
	if req.IPAddress != "" {
		ip = req.IPAddress
	}
	if req.UserAgent != "" {
		agent = utils.Truncate(req.UserAgent, maxUserAgentLength)
	}
	suspicious := attempted > SuspiciousAttempts
	if suspicious {
		fs.Log.Warn("Suspicious favorites sync", "user_id", userID, "attempted", attempted)
	}
	_, err := database.Exec(ctx, fs.DB, `
		INSERT INTO favorites_sync_logs (id, user_id, attempted_count, synced_count, trimmed_to, is_suspicious,
			ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, attempted, synced, trimmedTo, suspicious, ip, agent, now.UTC())
	if err != nil {
		fs.Log.Warn("Failed to write favorites sync log", "error", err)
	}
}
