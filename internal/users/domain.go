package users

import "time"

// User represents a user account for management. Password hashes never
// leave the repository layer.
type User struct {
	ID          int64
	Email       string
	FirstName   string
	LastName    string
	IsActive    bool
	IsSuperuser bool
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateUserInput carries the fields for a new account.
type CreateUserInput struct {
	Email       string
	FirstName   string
	LastName    string
	Password    string
	IsSuperuser bool
}

// UpdateUserInput is a partial update; nil fields are left unchanged.
type UpdateUserInput struct {
	FirstName *string
	LastName  *string
	Password  *string
}
