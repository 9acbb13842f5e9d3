package propertyService

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/apperrors"
	"github.com/nikhil/doussel/internal/cache"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/models"
	"github.com/nikhil/doussel/internal/plans"
	notificationService "github.com/nikhil/doussel/internal/service/notifications"
	teamService "github.com/nikhil/doussel/internal/service/team"
	profileService "github.com/nikhil/doussel/internal/service/users"
	"github.com/nikhil/doussel/pkg/utils"
)

// TeamAccess is the part of the team service listings depend on.
type TeamAccess interface {
	Authorize(ctx context.Context, teamID, userID, perm string) (string, error)
	Load(ctx context.Context, teamID string) (*models.Team, error)
}

type PropertyService struct {
	DB       *sqlx.DB
	Cache    cache.CacheInterface
	CacheTTL time.Duration
	Teams    TeamAccess
	Notifier notificationService.Notifier
	Log      *logger.Logger
	Now      func() time.Time
}

// PropertyInput is the create/update payload.
type PropertyInput struct {
	TeamID       *string  `json:"team_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	PropertyType string   `json:"property_type"`
	Price        int64    `json:"price"`
	City         string   `json:"city"`
	District     string   `json:"district"`
	Address      string   `json:"address"`
	Surface      int      `json:"surface"`
	Rooms        int      `json:"rooms"`
	Bedrooms     int      `json:"bedrooms"`
	Images       []string `json:"images"`
}

// SearchFilter drives the public catalogue search.
type SearchFilter struct {
	Category     string
	PropertyType string
	City         string
	MinPrice     int64
	MaxPrice     int64
	MinRooms     int
	Q            string
	Sort         string
	Page         int
	PerPage      int
}

// Moderation decisions
const (
	DecisionApprove = "approved"
	DecisionReject  = "rejected"
)

func NewPropertyService(db *sqlx.DB, c cache.CacheInterface, ttl time.Duration, teams TeamAccess, notifier notificationService.Notifier) *PropertyService {
	return &PropertyService{
		DB:       db,
		Cache:    c,
		CacheTTL: ttl,
		Teams:    teams,
		Notifier: notifier,
		Log:      logger.NewLogger("property-service"),
		Now:      time.Now,
	}
}

func propertyCacheKey(id string) string { return "property:" + id }

func (in *PropertyInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.City = strings.TrimSpace(in.City)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" {
		return apperrors.Validation("title is required")
	}
	if len(in.Title) > 200 {
		return apperrors.Validation("title must be at most 200 characters")
	}
	if in.Price <= 0 {
		return apperrors.Validation("price must be positive")
	}
	if in.City == "" {
		return apperrors.Validation("city is required")
	}
	if in.Category != models.CategorySale && in.Category != models.CategoryRent {
		return apperrors.Validation("category must be %q or %q", models.CategorySale, models.CategoryRent)
	}
	if in.Surface < 0 || in.Rooms < 0 || in.Bedrooms < 0 {
		return apperrors.Validation("surface and room counts cannot be negative")
	}
	return nil
}

func (in *PropertyInput) imagesJSON() (string, error) {
	images := in.Images
	if images == nil {
		images = []string{}
	}
	raw, err := json.Marshal(images)
	return string(raw), err
}

// checkTeamQuota verifies the actor may list for the team and that the
// team's plan still has room.
func (ps *PropertyService) checkTeamQuota(ctx context.Context, teamID, actorID string) error {
	if _, err := ps.Teams.Authorize(ctx, teamID, actorID, teamService.PermPropertiesEdit); err != nil {
		return err
	}
	team, err := ps.Teams.Load(ctx, teamID)
	if err != nil {
		return err
	}
	var count int
	if err := database.Get(ctx, ps.DB, &count, "SELECT COUNT(*) FROM properties WHERE team_id = ?", teamID); err != nil {
		return err
	}
	plan := plans.Get(team.SubscriptionTier)
	if !plans.Allows(plan.MaxProperties, count) {
		return fmt.Errorf("%w: %s plan allows %d properties", apperrors.ErrQuotaExceeded, plan.Name, plan.MaxProperties)
	}
	return nil
}

// CreateProperty stores a new listing awaiting moderation.
func (ps *PropertyService) CreateProperty(ctx context.Context, ownerID string, in PropertyInput) (*models.Property, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.TeamID != nil && *in.TeamID != "" {
		if err := ps.checkTeamQuota(ctx, *in.TeamID, ownerID); err != nil {
			return nil, err
		}
	} else {
		in.TeamID = nil
	}
	images, err := in.imagesJSON()
	if err != nil {
		return nil, err
	}

	now := ps.Now().UTC()
	p := &models.Property{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		TeamID:           in.TeamID,
		Title:            in.Title,
		Description:      in.Description,
		Category:         in.Category,
		PropertyType:     strings.TrimSpace(in.PropertyType),
		Price:            in.Price,
		City:             in.City,
		District:         strings.TrimSpace(in.District),
		Address:          strings.TrimSpace(in.Address),
		Surface:          in.Surface,
		Rooms:            in.Rooms,
		Bedrooms:         in.Bedrooms,
		Images:           []byte(images),
		ValidationStatus: models.ValidationPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err = database.Exec(ctx, ps.DB, `
		INSERT INTO properties (id, owner_id, team_id, title, description, category, property_type, price,
			city, district, address, surface, rooms, bedrooms, images, validation_status, views_count,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.TeamID, p.Title, p.Description, p.Category, p.PropertyType, p.Price,
		p.City, p.District, p.Address, p.Surface, p.Rooms, p.Bedrooms, images, p.ValidationStatus, 0,
		now, now)
	if err != nil {
		ps.Log.Error("Failed to insert property", "error", err)
		return nil, err
	}

	if p.TeamID != nil {
		if err := teamService.WriteAudit(ctx, ps.DB, teamService.AuditEntry{
			TeamID: *p.TeamID, UserID: ownerID, Action: "property.created",
			ResourceType: "property", ResourceID: p.ID, Data: map[string]interface{}{"title": p.Title},
		}, now); err != nil {
			ps.Log.Warn("Failed to write audit log", "error", err)
		}
	}

	if _, err := ps.Notifier.NotifyAdmins(ctx, notificationService.Input{
		Type:         models.NotifyInfo,
		Title:        "Nouvelle annonce à modérer",
		Message:      fmt.Sprintf("%s (%s)", p.Title, p.City),
		ResourcePath: "/admin/moderation",
	}); err != nil {
		ps.Log.Warn("Failed to notify admins", "error", err, "property_id", p.ID)
	}

	ps.Log.Info("Property created", "property_id", p.ID, "owner_id", ownerID)
	return p, nil
}

// load reads a listing through the cache.
func (ps *PropertyService) load(ctx context.Context, id string) (*models.Property, error) {
	if cached, err := ps.Cache.Get(ctx, propertyCacheKey(id)); err == nil {
		var p models.Property
		if err := json.Unmarshal([]byte(cached), &p); err == nil {
			return &p, nil
		}
	}

	var p models.Property
	if err := database.Get(ctx, ps.DB, &p, "SELECT "+models.PropertyColumns+" FROM properties WHERE id = ?", id); err != nil {
		return nil, apperrors.FromSQL(err, "property")
	}
	if data, err := json.Marshal(p); err == nil {
		if err := ps.Cache.Set(ctx, propertyCacheKey(id), string(data), ps.CacheTTL); err != nil {
			ps.Log.Warn("Failed to cache property", "error", err)
		}
	}
	return &p, nil
}

func (ps *PropertyService) invalidate(ctx context.Context, id string) {
	if err := ps.Cache.Delete(ctx, propertyCacheKey(id)); err != nil {
		ps.Log.Warn("Failed to invalidate property cache", "error", err, "property_id", id)
	}
}

// GetProperty returns a listing. Unapproved listings are only visible to
// their owner and to moderators.
func (ps *PropertyService) GetProperty(ctx context.Context, viewerID string, viewerRoles []string, id string) (*models.Property, error) {
	p, err := ps.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsPublic() || (viewerID != "" && viewerID == p.OwnerID) ||
		profileService.HasPermission(viewerRoles, "admin.moderation.view") {
		return p, nil
	}
	return nil, apperrors.NotFound("property")
}

// UpdateProperty lets the owner edit a listing, which then goes back to moderation.
func (ps *PropertyService) UpdateProperty(ctx context.Context, ownerID, id string, in PropertyInput) (*models.Property, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := ps.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, apperrors.Forbidden("only the owner can edit this listing")
	}
	images, err := in.imagesJSON()
	if err != nil {
		return nil, err
	}

	now := ps.Now().UTC()
	_, err = database.Exec(ctx, ps.DB, `
		UPDATE properties SET title = ?, description = ?, category = ?, property_type = ?, price = ?,
			city = ?, district = ?, address = ?, surface = ?, rooms = ?, bedrooms = ?, images = ?,
			validation_status = ?, rejection_reason = NULL, updated_at = ?
		WHERE id = ?`,
		in.Title, in.Description, in.Category, strings.TrimSpace(in.PropertyType), in.Price,
		in.City, strings.TrimSpace(in.District), strings.TrimSpace(in.Address), in.Surface, in.Rooms,
		in.Bedrooms, images, models.ValidationPending, now, id)
	if err != nil {
		ps.Log.Error("Failed to update property", "error", err, "property_id", id)
		return nil, err
	}
	ps.invalidate(ctx, id)

	p.Title, p.Description, p.Category = in.Title, in.Description, in.Category
	p.PropertyType, p.Price, p.City = strings.TrimSpace(in.PropertyType), in.Price, in.City
	p.District, p.Address = strings.TrimSpace(in.District), strings.TrimSpace(in.Address)
	p.Surface, p.Rooms, p.Bedrooms = in.Surface, in.Rooms, in.Bedrooms
	p.Images = []byte(images)
	p.ValidationStatus = models.ValidationPending
	p.RejectionReason = nil
	p.UpdatedAt = now
	return p, nil
}

// DeleteProperty removes a listing; owners and admins only.
func (ps *PropertyService) DeleteProperty(ctx context.Context, actorID string, actorRoles []string, id string) error {
	p, err := ps.load(ctx, id)
	if err != nil {
		return err
	}
	if p.OwnerID != actorID && !profileService.HasPermission(actorRoles, "admin.properties.delete") {
		return apperrors.Forbidden("only the owner or an admin can delete this listing")
	}
	if _, err := database.Exec(ctx, ps.DB, "DELETE FROM properties WHERE id = ?", id); err != nil {
		return err
	}
	ps.invalidate(ctx, id)
	ps.Log.Audit("Property deleted", "property_id", id, "by", actorID)
	return nil
}

var sortOrders = map[string]string{
	"":           "created_at DESC",
	"newest":     "created_at DESC",
	"price_asc":  "price ASC, created_at DESC",
	"price_desc": "price DESC, created_at DESC",
}

// SearchProperties lists approved listings matching the filter.
func (ps *PropertyService) SearchProperties(ctx context.Context, f SearchFilter) (*models.PaginationResponse, error) {
	order, ok := sortOrders[f.Sort]
	if !ok {
		return nil, apperrors.Validation("unknown sort %q", f.Sort)
	}
	if f.MinPrice > 0 && f.MaxPrice > 0 && f.MinPrice > f.MaxPrice {
		return nil, apperrors.Validation("min_price cannot exceed max_price")
	}

	where := []string{"validation_status = ?"}
	args := []interface{}{models.ValidationApproved}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.PropertyType != "" {
		where = append(where, "property_type = ?")
		args = append(args, f.PropertyType)
	}
	if city := strings.TrimSpace(f.City); city != "" {
		where = append(where, "LOWER(city) = ?")
		args = append(args, strings.ToLower(city))
	}
	if f.MinPrice > 0 {
		where = append(where, "price >= ?")
		args = append(args, f.MinPrice)
	}
	if f.MaxPrice > 0 {
		where = append(where, "price <= ?")
		args = append(args, f.MaxPrice)
	}
	if f.MinRooms > 0 {
		where = append(where, "rooms >= ?")
		args = append(args, f.MinRooms)
	}
	if q := strings.TrimSpace(f.Q); q != "" {
		like := "%" + utils.EscapeLike(strings.ToLower(q)) + "%"
		where = append(where, "(LOWER(title) LIKE ? ESCAPE '!' OR LOWER(city) LIKE ? ESCAPE '!' OR LOWER(district) LIKE ? ESCAPE '!')")
		args = append(args, like, like, like)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := database.Get(ctx, ps.DB, &total, "SELECT COUNT(*) FROM properties WHERE "+clause, args...); err != nil {
		return nil, err
	}

	page, perPage, offset := models.Paginate(f.Page, f.PerPage)
	items := []models.Property{}
	err := database.Select(ctx, ps.DB, &items,
		"SELECT "+models.PropertyColumns+" FROM properties WHERE "+clause+" ORDER BY "+order+" LIMIT ? OFFSET ?",
		append(args, perPage, offset)...)
	if err != nil {
		return nil, err
	}
	return &models.PaginationResponse{Items: items, TotalCount: total, Page: page, PerPage: perPage}, nil
}

// ListOwnerProperties returns every listing of an owner whatever its status.
func (ps *PropertyService) ListOwnerProperties(ctx context.Context, ownerID string) ([]models.Property, error) {
	items := []models.Property{}
	err := database.Select(ctx, ps.DB, &items,
		"SELECT "+models.PropertyColumns+" FROM properties WHERE owner_id = ? ORDER BY created_at DESC", ownerID)
	return items, err
}

// ListPendingModeration returns the moderation queue, oldest first.
func (ps *PropertyService) ListPendingModeration(ctx context.Context, roles []string) ([]models.Property, error) {
	if !profileService.HasPermission(roles, "admin.moderation.view") {
		return nil, apperrors.Forbidden("moderators only")
	}
	items := []models.Property{}
	err := database.Select(ctx, ps.DB, &items,
		"SELECT "+models.PropertyColumns+" FROM properties WHERE validation_status = ? ORDER BY created_at ASC",
		models.ValidationPending)
	return items, err
}

// ModerateProperty approves or rejects a listing and tells its owner.
func (ps *PropertyService) ModerateProperty(ctx context.Context, moderatorID string, roles []string, id, decision, reason string) (*models.Property, error) {
	reason = strings.TrimSpace(reason)
	switch decision {
	case DecisionApprove:
		if !profileService.HasPermission(roles, "admin.moderation.approve") {
			return nil, apperrors.Forbidden("moderators only")
		}
	case DecisionReject:
		if !profileService.HasPermission(roles, "admin.moderation.reject") {
			return nil, apperrors.Forbidden("moderators only")
		}
		if reason == "" {
			return nil, apperrors.Validation("a rejection reason is required")
		}
	default:
		return nil, apperrors.Validation("decision must be %q or %q", DecisionApprove, DecisionReject)
	}

	p, err := ps.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var rejection interface{}
	if decision == DecisionReject {
		rejection = reason
	}
	now := ps.Now().UTC()
	if _, err := database.Exec(ctx, ps.DB,
		"UPDATE properties SET validation_status = ?, rejection_reason = ?, updated_at = ? WHERE id = ?",
		decision, rejection, now, id); err != nil {
		return nil, err
	}
	ps.invalidate(ctx, id)

	p.ValidationStatus = decision
	p.UpdatedAt = now
	p.RejectionReason = nil
	if decision == DecisionReject {
		p.RejectionReason = &reason
	}

	note := notificationService.Input{
		UserID:       p.OwnerID,
		Type:         models.NotifySuccess,
		Title:        "Annonce approuvée",
		Message:      fmt.Sprintf("Votre annonce \"%s\" est maintenant en ligne.", p.Title),
		ResourcePath: "/properties/" + p.ID,
	}
	if decision == DecisionReject {
		note.Type = models.NotifyWarning
		note.Title = "Annonce refusée"
		note.Message = fmt.Sprintf("Votre annonce \"%s\" a été refusée : %s", p.Title, reason)
	}
	if _, err := ps.Notifier.NotifyUser(ctx, note); err != nil {
		ps.Log.Warn("Failed to notify owner", "error", err, "property_id", id)
	}

	if p.TeamID != nil {
		if err := teamService.WriteAudit(ctx, ps.DB, teamService.AuditEntry{
			TeamID: *p.TeamID, UserID: moderatorID, Action: "property." + decision,
			ResourceType: "property", ResourceID: p.ID, Data: map[string]interface{}{"reason": reason},
		}, now); err != nil {
			ps.Log.Warn("Failed to write audit log", "error", err)
		}
	}
	ps.Log.Audit("Property moderated", "property_id", id, "decision", decision, "by", moderatorID)
	return p, nil
}
