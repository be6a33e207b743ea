package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/api"
	"github.com/canteenhq/canteen/cassandra"
	"github.com/canteenhq/canteen/metrics"
)

// UserRepository is the identity store surface the handlers consume.
type UserRepository interface {
	Get(ctx context.Context, studentID string) (bool, cassandra.User, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	Add(ctx context.Context, u cassandra.User) error
	UpdatePassword(ctx context.Context, studentID string, hashed string) error
}

// Handlers serves the /auth routes.
type Handlers struct {
	users     UserRepository
	authority *TokenAuthority
	limiter   canteen.Limiter
	rlConfig  RateLimitConfig
}

func NewHandlers(users UserRepository, authority *TokenAuthority, limiter canteen.Limiter, rlConfig RateLimitConfig) *Handlers {
	return &Handlers{users: users, authority: authority, limiter: limiter, rlConfig: rlConfig}
}

// Register mounts the auth routes plus health and metrics. Only login is
// rate limited.
func (h *Handlers) Register(router *gin.Engine) {
	router.GET("/", api.Root("identity-provider"))
	router.GET("/health", api.Health("identity-provider"))
	router.GET("/metrics", metrics.Handler())
	router.POST("/auth/login", RateLimitLogin(h.limiter, h.rlConfig), h.Login)
	router.POST("/auth/refresh", h.Refresh)
	router.POST("/auth/register", h.RegisterUser)
	router.POST("/auth/change-password", h.ChangePassword)
}

type loginRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Password  string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Login validates credentials and issues the token pair.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	found, user, err := h.users.Get(c.Request.Context(), req.StudentID)
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	if !found || !VerifyPassword(req.Password, user.HashedPassword) {
		metrics.LoginAttempts.WithLabelValues("denied").Inc()
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid student ID or password."})
		return
	}
	if !user.IsActive {
		metrics.LoginAttempts.WithLabelValues("disabled").Inc()
		c.JSON(http.StatusForbidden, gin.H{"detail": "Account is disabled."})
		return
	}

	resp, err := h.issuePair(user)
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	metrics.LoginAttempts.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh rotates the token pair from a valid refresh token. Access tokens
// are rejected here by the type check.
func (h *Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	claims, err := h.authority.Verify(req.RefreshToken, TokenTypeRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid or expired refresh token."})
		return
	}

	found, user, err := h.users.Get(c.Request.Context(), claims.Subject)
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	if !found || !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "User not found."})
		return
	}

	resp, err := h.issuePair(user)
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) issuePair(user cassandra.User) (tokenResponse, error) {
	access, err := h.authority.IssueAccess(user.StudentID, user.StudentID, user.IsAdmin)
	if err != nil {
		return tokenResponse{}, err
	}
	refresh, err := h.authority.IssueRefresh(user.StudentID)
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(h.authority.AccessTTL().Seconds()),
	}, nil
}

type registerRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FullName  string `json:"full_name" binding:"required"`
	IsAdmin   bool   `json:"is_admin"`
}

type userView struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	IsAdmin   bool   `json:"is_admin"`
	IsActive  bool   `json:"is_active"`
}

// RegisterUser creates a new student account.
func (h *Handlers) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	exists, _, err := h.users.Get(c.Request.Context(), req.StudentID)
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	taken := false
	if !exists {
		taken, err = h.users.EmailTaken(c.Request.Context(), req.Email)
		if err != nil {
			api.AbortWithError(c, err)
			return
		}
	}
	if exists || taken {
		c.JSON(http.StatusConflict, gin.H{"detail": "Student ID or email already registered."})
		return
	}

	hashed, err := HashPassword(req.Password)
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	user := cassandra.User{
		ID:             canteen.NewUUID(),
		StudentID:      req.StudentID,
		Email:          req.Email,
		HashedPassword: hashed,
		FullName:       req.FullName,
		IsAdmin:        req.IsAdmin,
		IsActive:       true,
	}
	if err := h.users.Add(c.Request.Context(), user); err != nil {
		api.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, userView{
		ID:        user.ID.String(),
		StudentID: user.StudentID,
		Email:     user.Email,
		FullName:  user.FullName,
		IsAdmin:   user.IsAdmin,
		IsActive:  user.IsActive,
	})
}

type changePasswordRequest struct {
	StudentID       string `json:"student_id" binding:"required"`
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// ChangePassword verifies the current password before storing the new hash.
func (h *Handlers) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	found, user, err := h.users.Get(c.Request.Context(), req.StudentID)
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	if !found || !VerifyPassword(req.CurrentPassword, user.HashedPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid ID or current password."})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"detail": "Account is disabled."})
		return
	}

	hashed, err := HashPassword(req.NewPassword)
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	if err := h.users.UpdatePassword(c.Request.Context(), req.StudentID, hashed); err != nil {
		api.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
