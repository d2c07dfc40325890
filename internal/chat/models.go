package chat

import "time"

// Session is a conversation. UserID is nil for anonymous sessions; anonymous
// sessions are only ever visible to requests that carry no identity.
type Session struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID   string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"id"`
	UserID      *uint64   `gorm:"index" json:"user_id"`
	Title       string    `gorm:"type:varchar(100);not null" json:"title"`
	Model       string    `gorm:"type:varchar(32);not null" json:"model"`
	TotalTokens int       `gorm:"not null;default:0" json:"total_tokens"`
	TotalCost   float64   `gorm:"not null;default:0" json:"total_cost"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"id"`
	SessionID string    `gorm:"type:varchar(26);index;not null" json:"session_id"`
	UserID    *uint64   `json:"user_id"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Tokens    int       `gorm:"not null;default:0" json:"tokens"`
	Cost      float64   `gorm:"not null;default:0" json:"cost"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
