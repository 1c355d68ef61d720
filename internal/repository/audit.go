package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/economy-ledger/internal/models"
)

const insertAuditLog = `
INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

func (q *Queries) InsertAuditLog(ctx context.Context, rec models.AuditRecord) error {
	metadata := rec.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	_, err := q.db.Exec(ctx, insertAuditLog,
		rec.EntityType, rec.EntityID, rec.ActorID, rec.Action, rec.PrevState, rec.NextState, metadata, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
