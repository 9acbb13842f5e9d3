package teamService

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
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
	"github.com/nikhil/doussel/pkg/utils"
)

const invitationTTL = 7 * 24 * time.Hour

// TeamService handles team-related operations
type TeamService struct {
	DB       *sqlx.DB
	Cache    cache.CacheInterface
	CacheTTL time.Duration
	Log      *logger.Logger
	Now      func() time.Time
}

// CreateTeamRequest represents the request body for team creation
type CreateTeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateTeamRequest represents the request body for team updates
type UpdateTeamRequest struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	DefaultBillingDay int    `json:"default_billing_day"`
}

func (r *CreateTeamRequest) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" || len(r.Name) > 100 {
		return apperrors.Validation("name must be between 1 and 100 characters")
	}
	if len(r.Description) > 500 {
		return apperrors.Validation("description must be at most 500 characters")
	}
	return nil
}

// NewTeamService initializes a new team service
func NewTeamService(db *sqlx.DB, c cache.CacheInterface, cacheTTL time.Duration) *TeamService {
	return &TeamService{
		DB:       db,
		Cache:    c,
		CacheTTL: cacheTTL,
		Log:      logger.NewLogger("team-service"),
		Now:      time.Now,
	}
}

func teamCacheKey(teamID string) string { return "team:" + teamID }

// CreateTeam creates a team and makes the creator its owner.
func (ts *TeamService) CreateTeam(ctx context.Context, userID string, req CreateTeamRequest) (*models.Team, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := ts.Now().UTC()
	team := &models.Team{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Slug:              utils.Slugify(req.Name) + "-" + uuid.NewString()[:6],
		Description:       req.Description,
		SubscriptionTier:  plans.DefaultTier,
		DefaultBillingDay: 5,
		Currency:          "XOF",
		Status:            "active",
		CreatedBy:         userID,
		CreatedAt:         now,
		UpdatedAt:         now,
		Role:              models.TeamRoleOwner,
	}

	err := database.WithTx(ctx, ts.DB, func(tx *sqlx.Tx) error {
		if _, err := database.Exec(ctx, tx, `
			INSERT INTO teams (id, name, slug, description, subscription_tier, default_billing_day, currency, status, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			team.ID, team.Name, team.Slug, team.Description, team.SubscriptionTier, team.DefaultBillingDay,
			team.Currency, team.Status, team.CreatedBy, now, now); err != nil {
			return fmt.Errorf("insert team: %w", err)
		}

		if _, err := database.Exec(ctx, tx, `
			INSERT INTO team_members (id, team_id, user_id, role, status, invited_by, joined_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), team.ID, userID, models.TeamRoleOwner, models.MemberActive, userID, now, now, now); err != nil {
			return fmt.Errorf("add owner: %w", err)
		}

		return WriteAudit(ctx, tx, AuditEntry{
			TeamID: team.ID, UserID: userID, Action: "team.created",
			ResourceType: "team", ResourceID: team.ID, Data: map[string]string{"name": team.Name},
		}, now)
	})
	if err != nil {
		ts.Log.Error("Failed to create team", "error", err, "user_id", userID)
		return nil, err
	}

	ts.Log.Info("Team created", "team_id", team.ID, "user_id", userID)
	return team, nil
}

// ListUserTeams returns the teams the user is an active member of.
func (ts *TeamService) ListUserTeams(ctx context.Context, userID string, page, perPage int) (*models.PaginationResponse, error) {
	page, perPage, offset := models.Paginate(page, perPage)

	var totalCount int
	if err := database.Get(ctx, ts.DB, &totalCount, `
		SELECT COUNT(*) FROM team_members tm
		WHERE tm.user_id = ? AND tm.status = ?`, userID, models.MemberActive); err != nil {
		ts.Log.Error("Failed to count teams", "error", err)
		return nil, err
	}

	teams := []models.Team{}
	if err := database.Select(ctx, ts.DB, &teams, `
		SELECT t.id, t.name, t.slug, t.description, t.subscription_tier, t.default_billing_day, t.currency,
			t.status, t.created_by, t.created_at, t.updated_at, tm.role
		FROM teams t
		JOIN team_members tm ON t.id = tm.team_id
		WHERE tm.user_id = ? AND tm.status = ?
		ORDER BY t.created_at DESC
		LIMIT ? OFFSET ?`, userID, models.MemberActive, perPage, offset); err != nil {
		ts.Log.Error("Failed to query teams", "error", err)
		return nil, err
	}

	return &models.PaginationResponse{Items: teams, TotalCount: totalCount, Page: page, PerPage: perPage}, nil
}

// Membership returns the role of an active member, or ErrForbidden.
func (ts *TeamService) Membership(ctx context.Context, teamID, userID string) (string, error) {
	var role string
	err := database.Get(ctx, ts.DB, &role,
		`SELECT role FROM team_members WHERE team_id = ? AND user_id = ? AND status = ?`,
		teamID, userID, models.MemberActive)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.Forbidden("you are not a member of this team")
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// Authorize checks that userID is an active member whose role grants perm.
func (ts *TeamService) Authorize(ctx context.Context, teamID, userID, perm string) (string, error) {
	role, err := ts.Membership(ctx, teamID, userID)
	if err != nil {
		return "", err
	}
	if !RoleHasPermission(role, perm) {
		ts.Log.Warn("Insufficient team permissions", "team_id", teamID, "user_id", userID, "role", role, "permission", perm)
		return role, apperrors.Forbidden("missing permission " + perm)
	}
	return role, nil
}

// Load fetches a team without membership checks, through the cache.
func (ts *TeamService) Load(ctx context.Context, teamID string) (*models.Team, error) {
	if cached, err := ts.Cache.Get(ctx, teamCacheKey(teamID)); err == nil {
		var team models.Team
		if err := json.Unmarshal([]byte(cached), &team); err == nil {
			return &team, nil
		}
	}

	var team models.Team
	err := database.Get(ctx, ts.DB, &team, `
		SELECT id, name, slug, description, subscription_tier, default_billing_day, currency, status,
			created_by, created_at, updated_at
		FROM teams WHERE id = ?`, teamID)
	if err != nil {
		return nil, apperrors.FromSQL(err, "team")
	}

	if data, err := json.Marshal(team); err == nil {
		if err := ts.Cache.Set(ctx, teamCacheKey(teamID), string(data), ts.CacheTTL); err != nil {
			ts.Log.Warn("Failed to cache team", "error", err)
		}
	}
	return &team, nil
}

// GetTeam retrieves a team the user belongs to.
func (ts *TeamService) GetTeam(ctx context.Context, userID, teamID string) (*models.Team, error) {
	role, err := ts.Membership(ctx, teamID, userID)
	if err != nil {
		return nil, err
	}
	team, err := ts.Load(ctx, teamID)
	if err != nil {
		return nil, err
	}
	team.Role = role
	return team, nil
}

// UpdateTeam updates a team's name, description and default billing day.
func (ts *TeamService) UpdateTeam(ctx context.Context, userID, teamID string, req UpdateTeamRequest) (*models.Team, error) {
	create := CreateTeamRequest{Name: req.Name, Description: req.Description}
	if err := create.validate(); err != nil {
		return nil, err
	}
	if req.DefaultBillingDay == 0 {
		req.DefaultBillingDay = 5
	}
	if req.DefaultBillingDay < 1 || req.DefaultBillingDay > 28 {
		return nil, apperrors.Validation("default_billing_day must be between 1 and 28")
	}

	if _, err := ts.Authorize(ctx, teamID, userID, PermTeamEdit); err != nil {
		return nil, err
	}

	now := ts.Now().UTC()
	err := database.WithTx(ctx, ts.DB, func(tx *sqlx.Tx) error {
		result, err := database.Exec(ctx, tx,
			`UPDATE teams SET name = ?, description = ?, default_billing_day = ?, updated_at = ? WHERE id = ?`,
			create.Name, create.Description, req.DefaultBillingDay, now, teamID)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return apperrors.NotFound("team")
		}
		return WriteAudit(ctx, tx, AuditEntry{
			TeamID: teamID, UserID: userID, Action: "team.updated", ResourceType: "team", ResourceID: teamID,
			Data: map[string]interface{}{"name": create.Name, "default_billing_day": req.DefaultBillingDay},
		}, now)
	})
	if err != nil {
		ts.Log.Error("Failed to update team", "error", err, "team_id", teamID)
		return nil, err
	}

	if err := ts.Cache.Delete(ctx, teamCacheKey(teamID)); err != nil {
		ts.Log.Warn("Failed to invalidate cache", "error", err, "team_id", teamID)
	}

	ts.Log.Info("Team updated", "team_id", teamID, "updated_by", userID)
	return ts.GetTeam(ctx, userID, teamID)
}

// CountSeats counts active members plus pending, unexpired invitations.
func (ts *TeamService) CountSeats(ctx context.Context, teamID string) (int, error) {
	var members, pending int
	if err := database.Get(ctx, ts.DB, &members,
		`SELECT COUNT(*) FROM team_members WHERE team_id = ? AND status = ?`, teamID, models.MemberActive); err != nil {
		return 0, err
	}
	if err := database.Get(ctx, ts.DB, &pending,
		`SELECT COUNT(*) FROM team_invitations WHERE team_id = ? AND status = ? AND expires_at > ?`,
		teamID, "pending", ts.Now().UTC()); err != nil {
		return 0, err
	}
	return members + pending, nil
}

// InviteMember creates an invitation token valid for 7 days.
func (ts *TeamService) InviteMember(ctx context.Context, actorID, teamID, email, role string) (*models.TeamInvitation, error) {
	email = utils.NormalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, apperrors.Validation("a valid email is required")
	}
	if !ValidRole(role) || role == models.TeamRoleOwner {
		return nil, apperrors.Validation("invalid role %q", role)
	}
	if _, err := ts.Authorize(ctx, teamID, actorID, PermMembersInvite); err != nil {
		return nil, err
	}

	team, err := ts.Load(ctx, teamID)
	if err != nil {
		return nil, err
	}
	seats, err := ts.CountSeats(ctx, teamID)
	if err != nil {
		return nil, err
	}
	plan := plans.Get(team.SubscriptionTier)
	if !plans.Allows(plan.MaxTeamMembers, seats) {
		return nil, fmt.Errorf("%w: the %s plan allows %d members", apperrors.ErrQuotaExceeded, plan.Name, plan.MaxTeamMembers)
	}

	var existing int
	if err := database.Get(ctx, ts.DB, &existing, `
		SELECT COUNT(*) FROM team_members tm JOIN users u ON u.id = tm.user_id
		WHERE tm.team_id = ? AND LOWER(u.email) = ? AND tm.status = ?`, teamID, email, models.MemberActive); err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: %s is already a member", apperrors.ErrConflict, email)
	}

	now := ts.Now().UTC()
	inv := &models.TeamInvitation{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		Email:     email,
		Role:      role,
		Token:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		Status:    "pending",
		InvitedBy: actorID,
		ExpiresAt: now.Add(invitationTTL),
		CreatedAt: now,
	}
	err = database.WithTx(ctx, ts.DB, func(tx *sqlx.Tx) error {
		if _, err := database.Exec(ctx, tx, `
			INSERT INTO team_invitations (id, team_id, email, role, token, status, invited_by, expires_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, inv.TeamID, inv.Email, inv.Role, inv.Token, inv.Status, inv.InvitedBy, inv.ExpiresAt, now); err != nil {
			return err
		}
		return WriteAudit(ctx, tx, AuditEntry{
			TeamID: teamID, UserID: actorID, Action: "member.invited", ResourceType: "invitation", ResourceID: inv.ID,
			Data: map[string]string{"email": email, "role": role},
		}, now)
	})
	if err != nil {
		ts.Log.Error("Failed to create invitation", "error", err, "team_id", teamID)
		return nil, err
	}
	ts.Log.Info("Member invited", "team_id", teamID, "role", role)
	return inv, nil
}

// AcceptInvitation turns a pending invitation into an active membership.
func (ts *TeamService) AcceptInvitation(ctx context.Context, token, userID string) (*models.TeamMember, error) {
	var inv models.TeamInvitation
	err := database.Get(ctx, ts.DB, &inv, `
		SELECT id, team_id, email, role, token, status, invited_by, expires_at, accepted_at, created_at
		FROM team_invitations WHERE token = ?`, token)
	if err != nil {
		return nil, apperrors.FromSQL(err, "invitation")
	}
	if inv.Status != "pending" {
		return nil, fmt.Errorf("%w: invitation already %s", apperrors.ErrConflict, inv.Status)
	}

	now := ts.Now().UTC()
	if now.After(inv.ExpiresAt) {
		if _, err := database.Exec(ctx, ts.DB, `UPDATE team_invitations SET status = ? WHERE id = ?`, "expired", inv.ID); err != nil {
			ts.Log.Warn("Failed to expire invitation", "error", err)
		}
		return nil, apperrors.Validation("invitation expired")
	}

	var email string
	if err := database.Get(ctx, ts.DB, &email, `SELECT email FROM users WHERE id = ?`, userID); err != nil {
		return nil, apperrors.FromSQL(err, "user")
	}
	if utils.NormalizeEmail(email) != inv.Email {
		return nil, apperrors.Forbidden("invitation was sent to another email")
	}

	member := &models.TeamMember{
		TeamID:    inv.TeamID,
		UserID:    userID,
		Role:      inv.Role,
		Status:    models.MemberActive,
		InvitedBy: &inv.InvitedBy,
		JoinedAt:  &now,
	}
	err = database.WithTx(ctx, ts.DB, func(tx *sqlx.Tx) error {
		var existingID string
		err := database.Get(ctx, tx, &existingID, `SELECT id FROM team_members WHERE team_id = ? AND user_id = ?`, inv.TeamID, userID)
		switch {
		case err == nil:
			member.ID = existingID
			_, err = database.Exec(ctx, tx, `
				UPDATE team_members SET role = ?, status = ?, invited_by = ?, joined_at = ?, removed_at = NULL, updated_at = ?
				WHERE id = ?`, inv.Role, models.MemberActive, inv.InvitedBy, now, now, existingID)
		case errors.Is(err, sql.ErrNoRows):
			member.ID = uuid.NewString()
			_, err = database.Exec(ctx, tx, `
				INSERT INTO team_members (id, team_id, user_id, role, status, invited_by, joined_at, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				member.ID, inv.TeamID, userID, inv.Role, models.MemberActive, inv.InvitedBy, now, now, now)
		}
		if err != nil {
			return err
		}

		if _, err := database.Exec(ctx, tx,
			`UPDATE team_invitations SET status = ?, accepted_at = ? WHERE id = ?`, "accepted", now, inv.ID); err != nil {
			return err
		}
		return WriteAudit(ctx, tx, AuditEntry{
			TeamID: inv.TeamID, UserID: userID, Action: "member.joined", ResourceType: "member", ResourceID: member.ID,
			Data: map[string]string{"role": inv.Role},
		}, now)
	})
	if err != nil {
		ts.Log.Error("Failed to accept invitation", "error", err, "team_id", inv.TeamID)
		return nil, err
	}
	return member, nil
}

// ListMembers returns active and suspended members with their user details.
func (ts *TeamService) ListMembers(ctx context.Context, actorID, teamID string) ([]models.TeamMember, error) {
	if _, err := ts.Membership(ctx, teamID, actorID); err != nil {
		return nil, err
	}
	members := []models.TeamMember{}
	err := database.Select(ctx, ts.DB, &members, `
		SELECT tm.id, tm.team_id, tm.user_id, tm.role, tm.status, tm.invited_by, tm.joined_at, u.email, u.full_name
		FROM team_members tm JOIN users u ON u.id = tm.user_id
		WHERE tm.team_id = ? AND tm.status IN (?, ?)
		ORDER BY tm.joined_at`, teamID, models.MemberActive, models.MemberSuspended)
	return members, err
}

func (ts *TeamService) requireOwner(ctx context.Context, teamID, actorID string) error {
	role, err := ts.Membership(ctx, teamID, actorID)
	if err != nil {
		return err
	}
	if role != models.TeamRoleOwner {
		return apperrors.Forbidden("only the team owner can manage members")
	}
	return nil
}

func (ts *TeamService) memberRole(ctx context.Context, teamID, userID string) (string, error) {
	var role string
	err := database.Get(ctx, ts.DB, &role,
		`SELECT role FROM team_members WHERE team_id = ? AND user_id = ? AND status IN (?, ?)`,
		teamID, userID, models.MemberActive, models.MemberSuspended)
	if err != nil {
		return "", apperrors.FromSQL(err, "member")
	}
	return role, nil
}

// ChangeMemberRole lets the owner change another member's role.
func (ts *TeamService) ChangeMemberRole(ctx context.Context, actorID, teamID, memberUserID, role string) error {
	if !ValidRole(role) || role == models.TeamRoleOwner {
		return apperrors.Validation("invalid role %q", role)
	}
	if err := ts.requireOwner(ctx, teamID, actorID); err != nil {
		return err
	}
	current, err := ts.memberRole(ctx, teamID, memberUserID)
	if err != nil {
		return err
	}
	if current == models.TeamRoleOwner {
		return apperrors.Forbidden("the owner's role cannot be changed")
	}

	now := ts.Now().UTC()
	return database.WithTx(ctx, ts.DB, func(tx *sqlx.Tx) error {
		if _, err := database.Exec(ctx, tx,
			`UPDATE team_members SET role = ?, updated_at = ? WHERE team_id = ? AND user_id = ?`,
			role, now, teamID, memberUserID); err != nil {
			return err
		}
		return WriteAudit(ctx, tx, AuditEntry{
			TeamID: teamID, UserID: actorID, Action: "member.role_changed", ResourceType: "member", ResourceID: memberUserID,
			Data: map[string]string{"from": current, "to": role},
		}, now)
	})
}

// RemoveMember marks a member as removed. The owner cannot be removed.
func (ts *TeamService) RemoveMember(ctx context.Context, actorID, teamID, memberUserID string) error {
	if err := ts.requireOwner(ctx, teamID, actorID); err != nil {
		return err
	}
	current, err := ts.memberRole(ctx, teamID, memberUserID)
	if err != nil {
		return err
	}
	if current == models.TeamRoleOwner {
		return apperrors.Forbidden("the owner cannot be removed")
	}

	now := ts.Now().UTC()
	err = database.WithTx(ctx, ts.DB, func(tx *sqlx.Tx) error {
		if _, err := database.Exec(ctx, tx,
			`UPDATE team_members SET status = ?, removed_at = ?, updated_at = ? WHERE team_id = ? AND user_id = ?`,
			models.MemberRemoved, now, now, teamID, memberUserID); err != nil {
			return err
		}
		return WriteAudit(ctx, tx, AuditEntry{
			TeamID: teamID, UserID: actorID, Action: "member.removed", ResourceType: "member", ResourceID: memberUserID,
		}, now)
	})
	if err == nil {
		ts.Log.Audit("Team member removed", "team_id", teamID, "member_id", memberUserID, "by", actorID)
	}
	return err
}

// ListAuditLog returns the latest audit entries of a team.
func (ts *TeamService) ListAuditLog(ctx context.Context, actorID, teamID string, limit int) ([]models.AuditLog, error) {
	if _, err := ts.Authorize(ctx, teamID, actorID, PermAuditView); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	logs := []models.AuditLog{}
	err := database.Select(ctx, ts.DB, &logs, `
		SELECT id, team_id, user_id, action, resource_type, resource_id, new_data, created_at
		FROM team_audit_logs WHERE team_id = ?
		ORDER BY created_at DESC LIMIT ?`, teamID, limit)
	return logs, err
}
