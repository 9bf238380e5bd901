package store

import "context"

// AuditStore keeps an append-only trail of ledger mutations: bill creation,
// payment claims, confirmations, rejections, deletions and reminder sends.
type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, actorID, action, entityType, entityID, data string) error {
	query := `
		INSERT INTO audit_log (actor_id, action, entity_type, entity_id, data)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.ExecContext(ctx, query, actorID, action, entityType, entityID, data)
	return err
}

type AuditRow struct {
	ID         int64  `db:"id"`
	ActorID    string `db:"actor_id"`
	Action     string `db:"action"`
	EntityType string `db:"entity_type"`
	EntityID   string `db:"entity_id"`
	Data       string `db:"data"`
	CreatedAt  any    `db:"created_at"`
}

func (s *AuditStore) List(ctx context.Context, limit, offset int) ([]AuditRow, error) {
	var rows []AuditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_id, action, entity_type, entity_id, data, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
