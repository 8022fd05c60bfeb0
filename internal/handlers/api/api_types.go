package api

import (
	"strconv"
	"time"

	"github.com/quantalab/labauth/model"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type createAccountRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
}

type updateAccountRequest struct {
	Role     *string `json:"role"`
	Disabled *bool   `json:"disabled"`
	Password *string `json:"password"`
}

type userInfo struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

type accountInfo struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	Disabled      bool       `json:"disabled"`
	EmailVerified bool       `json:"emailVerified"`
	LockedUntil   *time.Time `json:"lockedUntil,omitempty"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func newAccountInfo(account *model.Account) accountInfo {
	return accountInfo{
		ID:            strconv.FormatUint(account.ID, 10),
		Email:         account.Email,
		Role:          account.Role,
		Disabled:      account.Disabled,
		EmailVerified: account.EmailVerified,
		LockedUntil:   account.LockedUntil,
		LastLoginAt:   account.LastLoginAt,
		CreatedAt:     account.CreatedAt,
	}
}

type loginSuccessResponse struct {
	Success bool     `json:"success"`
	User    userInfo `json:"user"`
}

type loginFailureResponse struct {
	Success                   bool   `json:"success"`
	Error                     string `json:"error"`
	RequiresEmailVerification bool   `json:"requiresEmailVerification,omitempty"`
	IsLocked                  bool   `json:"isLocked,omitempty"`
	LockoutExpiry             string `json:"lockoutExpiry,omitempty"`
}

type okResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
