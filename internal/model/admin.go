package model

import (
	"strings"
	"time"
)

// Admin is an operator account. Operators reset wallet sessions and read
// the answer key; they never take the quiz.
type Admin struct {
	ID           int
	Email        string
	Name         string
	PasswordHash string
	RoleID       int
	RoleName     string
	LastLoginAt  *time.Time
	CreatedAt    time.Time
}

// AdminProfile is the public view of an operator.
type AdminProfile struct {
	ID          int        `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	RoleID      int        `json:"role_id"`
	RoleName    string     `json:"role_name"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func (a *Admin) Profile() AdminProfile {
	return AdminProfile{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		RoleID:      a.RoleID,
		RoleName:    a.RoleName,
		LastLoginAt: a.LastLoginAt,
	}
}

// NormalizeEmail lowercases and trims an operator email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AdminLoginRequest is the payload for admin authentication.
type AdminLoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}
