package store

import (
	"context"

	"splitledger/internal/models"
)

// GroupStore is a read-only view over group membership. Membership
// management belongs to the surrounding application; the ledger only asks
// who is in a group.
type GroupStore struct {
	db DB
}

func NewGroupStore(db DB) *GroupStore {
	return &GroupStore{db: db}
}

func (s *GroupStore) GetByID(ctx context.Context, groupID string) (models.Group, error) {
	var group models.Group
	err := s.db.GetContext(ctx, &group, `
		SELECT id, name, created_at
		FROM groups
		WHERE id = $1
	`, groupID)
	if err != nil {
		return models.Group{}, err
	}
	return group, nil
}

func (s *GroupStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)
	`, groupID, userID)
	return exists, err
}

func (s *GroupStore) ListMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	var memberIDs []string
	err := s.db.SelectContext(ctx, &memberIDs, `
		SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY user_id
	`, groupID)
	if err != nil {
		return nil, err
	}
	return memberIDs, nil
}
