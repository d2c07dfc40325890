package chat

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// ownerScope constrains a query to the caller's side of the ownership
// boundary: an identity matches only its own rows, no identity matches only
// ownerless rows. Rows are never visible across that boundary.
func ownerScope(q *gorm.DB, owner *uint64) *gorm.DB {
	if owner != nil {
		return q.Where("user_id = ?", *owner)
	}
	return q.Where("user_id IS NULL")
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSession(ctx context.Context, owner *uint64, sessionID string) (*Session, error) {
	var s Session
	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if err := ownerScope(q, owner).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns the caller's sessions, most recently touched first.
func (r *Repo) ListSessions(ctx context.Context, owner *uint64) ([]Session, error) {
	var out []Session
	q := ownerScope(r.db.WithContext(ctx), owner).Order("updated_at DESC")
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) UpdateSession(ctx context.Context, id uint64, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// DeleteSession removes a session and all of its messages in one transaction.
func (r *Repo) DeleteSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", s.SessionID).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(s).Error
	})
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListSessionMessages returns the full history in creation order.
func (r *Repo) ListSessionMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) GetMessageByMessageID(ctx context.Context, messageID string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// AppendAssistantMessage inserts the generated message and bumps the session
// aggregates in one transaction, so the counters cannot drift from the
// message rows even when turns interleave.
func (r *Repo) AppendAssistantMessage(ctx context.Context, sessionPK uint64, m *Message, turnTokens int, turnCost float64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&Session{}).
			Where("id = ?", sessionPK).
			Updates(map[string]any{
				"total_tokens": gorm.Expr("total_tokens + ?", turnTokens),
				"total_cost":   gorm.Expr("total_cost + ?", turnCost),
				"updated_at":   time.Now().UTC(),
			}).Error
	})
}

// UsageTotals sums the aggregates across the caller's sessions.
func (r *Repo) UsageTotals(ctx context.Context, owner *uint64) (int64, float64, error) {
	var row struct {
		TotalTokens int64
		TotalCost   float64
	}
	q := ownerScope(r.db.WithContext(ctx).Model(&Session{}), owner)
	if err := q.Select("COALESCE(SUM(total_tokens),0) AS total_tokens, COALESCE(SUM(total_cost),0) AS total_cost").
		Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return row.TotalTokens, row.TotalCost, nil
}
