package models

import "time"

// User represents an operator account. Accounts and sessions are managed by
// the companion web application; this service only checks that the subject of
// a presented token still exists.
type User struct {
	UserID   int        `gorm:"primaryKey;column:user_id" json:"user_id"`
	Email    string     `gorm:"column:email" json:"email"`
	RoleID   int        `gorm:"column:role_id" json:"role_id"`
	CreateAt time.Time  `gorm:"column:create_at" json:"create_at"`
	UpdateAt time.Time  `gorm:"column:update_at" json:"update_at"`
	DeleteAt *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`
}

// TableName overrides the table name used by User to `users`.
func (User) TableName() string {
	return "users"
}
