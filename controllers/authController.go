package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"civicsync/middlewares"
	"civicsync/models"
	"civicsync/store"
	authUtils "civicsync/utils"
)

// AuthController registers and signs in users.
type AuthController struct {
	users      store.UserStore
	secret     string
	domain     string
	production bool
	now        func() time.Time
}

func NewAuthController(users store.UserStore, secret, domain string, production bool) *AuthController {
	return &AuthController{
		users:      users,
		secret:     secret,
		domain:     domain,
		production: production,
		now:        time.Now,
	}
}

func userResponse(user *models.User) gin.H {
	return gin.H{
		"id":        user.ID,
		"name":      user.Name,
		"email":     user.Email,
		"role":      user.Role,
		"createdAt": user.CreatedAt,
	}
}

func (a *AuthController) setTokenCookie(c *gin.Context, token string, maxAge int) {
	domain := a.domain
	// For production, don't set domain to allow cross-origin cookies
	if a.production {
		domain = ""
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middlewares.TokenCookie,
		Value:    token,
		MaxAge:   maxAge,
		Path:     "/",
		Domain:   domain,
		Secure:   a.production,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})
}

func (a *AuthController) signIn(c *gin.Context, status int, user *models.User) {
	token, err := authUtils.GenerateToken(a.secret, user.ID.Hex(), string(user.Role), a.now())
	if err != nil {
		log.WithError(err).Error("Error generating token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	a.setTokenCookie(c, token, int(authUtils.TokenTTL.Seconds()))
	c.JSON(status, gin.H{
		"token": token,
		"user":  userResponse(user),
	})
}

// RegisterUser handles user registration
func (a *AuthController) RegisterUser(c *gin.Context) {
	var input struct {
		Name     string `json:"name" binding:"required,max=50"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := a.now()
	user := models.User{
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Password:  input.Password,
		Role:      models.RoleCitizen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := user.HashPassword(); err != nil {
		log.WithError(err).Error("Error hashing password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := a.users.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			c.JSON(http.StatusConflict, gin.H{"error": "User with this email already exists"})
			return
		}
		log.WithError(err).Error("Error inserting user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	a.signIn(c, http.StatusCreated, &user)
}

// LoginUser handles user login
func (a *AuthController) LoginUser(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := a.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).Error("Error looking up user")
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if !user.ComparePassword(input.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	a.signIn(c, http.StatusOK, user)
}

// GetMe retrieves the authenticated user's information
func (a *AuthController) GetMe(c *gin.Context) {
	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := a.users.GetUser(ctx, userID)
	if err != nil {
		respondStoreError(c, err, "User not found", "Failed to retrieve user")
		return
	}

	c.JSON(http.StatusOK, userResponse(user))
}

// LogoutUser clears the auth_token cookie
func (a *AuthController) LogoutUser(c *gin.Context) {
	a.setTokenCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// SeedAdmin creates the first admin account unless email is already taken.
func SeedAdmin(ctx context.Context, users store.UserStore, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	existing, err := users.GetUserByEmail(ctx, email)
	if err == nil {
		if !existing.IsAdmin() {
			log.Warnf("Admin email %s belongs to a citizen account, not promoting it", email)
		}
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	now := time.Now()
	admin := models.User{
		Name:      "Administrator",
		Email:     email,
		Password:  password,
		Role:      models.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := admin.HashPassword(); err != nil {
		return err
	}
	if err := users.CreateUser(ctx, &admin); err != nil {
		return err
	}
	log.Infof("Seeded admin account %s", email)
	return nil
}
