package domain

import "time"

// Roles assignable to an account. Self-registered accounts are always CUSTOMER;
// elevated roles are provisioned through back-office tooling.
const (
	RoleCustomer = "CUSTOMER"
	RoleEmployee = "EMPLOYEE"
	RoleAdmin    = "ADMIN"
)

// User is the credential record held by the external user store.
type User struct {
	UserID           string     `json:"id" dynamodbav:"user_id"`
	Username         string     `json:"username" dynamodbav:"username"`
	Email            string     `json:"email" dynamodbav:"email"`
	Phone            *string    `json:"phone,omitempty" dynamodbav:"phone"`
	PasswordHash     string     `json:"-" dynamodbav:"password_hash"`
	Role             string     `json:"role" dynamodbav:"role"`
	TwoFactorEnabled bool       `json:"two_factor_enabled" dynamodbav:"two_factor_enabled"`
	Enable           bool       `json:"enable" dynamodbav:"enable"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty" dynamodbav:"deleted_at"`
	CreatedAt        time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt        time.Time  `json:"updated" dynamodbav:"updated_at"`
}

type RegisterRequest struct {
	Username  string  `json:"username" validate:"required,min=3,max=64"`
	Password  string  `json:"password" validate:"required,min=8,max=72"`
	Email     string  `json:"email" validate:"required,email"`
	Phone     *string `json:"phone"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
}
