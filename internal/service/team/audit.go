package teamService

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/database"
)

// AuditEntry is one row of team_audit_logs.
type AuditEntry struct {
	TeamID       string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Data         interface{}
}

// WriteAudit inserts an audit row using q, which may be a transaction.
func WriteAudit(ctx context.Context, q sqlx.ExtContext, entry AuditEntry, now time.Time) error {
	var data interface{}
	if entry.Data != nil {
		raw, err := json.Marshal(entry.Data)
		if err != nil {
			return err
		}
		data = string(raw)
	}
	_, err := database.Exec(ctx, q, `
		INSERT INTO team_audit_logs (id, team_id, user_id, action, resource_type, resource_id, new_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), entry.TeamID, nullable(entry.UserID), entry.Action,
		nullable(entry.ResourceType), nullable(entry.ResourceID), data, now)
	return err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
