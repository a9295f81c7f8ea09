package models

import "time"

// Notification is one in-app message row. Email delivery is a downstream
// consumer of EmailReq; the dispatcher only creates rows.
type Notification struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Title     string     `db:"title" json:"title"`
	Body      string     `db:"body" json:"body"`
	Link      string     `db:"link" json:"link"`
	Role      Role       `db:"role" json:"role"`
	EmailReq  bool       `db:"email_req" json:"email_req"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
