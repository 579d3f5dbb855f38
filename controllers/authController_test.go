package controllers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/mock/gomock"

	"civicsync/controllers"
	"civicsync/middlewares"
	"civicsync/models"
	"civicsync/store"
	"civicsync/store/mocks"
	authUtils "civicsync/utils"
)

func newAuthFixture(t *testing.T) (*mocks.MockStore, *gin.Engine) {
	s := mocks.NewMockStore(gomock.NewController(t))
	ac := controllers.NewAuthController(s, testSecret, "localhost", false)

	r := gin.New()
	r.POST("/api/auth/register", ac.RegisterUser)
	r.POST("/api/auth/login", ac.LoginUser)
	r.POST("/api/auth/logout", ac.LogoutUser)
	r.GET("/api/auth/me", middlewares.AuthMiddleware(testSecret), ac.GetMe)
	return s, r
}

func TestRegisterUser(t *testing.T) {
	s, r := newAuthFixture(t)
	userID := primitive.NewObjectID()

	s.EXPECT().CreateUser(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, user *models.User) error {
		assert.Equal(t, "ada@example.com", user.Email)
		assert.Equal(t, models.RoleCitizen, user.Role)
		assert.True(t, user.ComparePassword("hunter22"))
		user.ID = userID
		return nil
	})

	w := doJSON(r, http.MethodPost, "/api/auth/register", "", gin.H{
		"name":     "Ada",
		"email":    "Ada@Example.com",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		Token string `json:"token"`
	}
	decode(t, w, &body)
	claims, err := authUtils.ParseToken(testSecret, body.Token)
	require.NoError(t, err)
	assert.Equal(t, userID.Hex(), claims.UserID)
	assert.Equal(t, "citizen", claims.Role)
	assert.Contains(t, w.Header().Get("Set-Cookie"), middlewares.TokenCookie+"=")
	assert.NotContains(t, w.Body.String(), "hunter22")
}

func TestRegisterUserDuplicate(t *testing.T) {
	s, r := newAuthFixture(t)

	s.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(store.ErrDuplicateEmail)
	w := doJSON(r, http.MethodPost, "/api/auth/register", "", gin.H{
		"name":     "Ada",
		"email":    "ada@example.com",
		"password": "hunter22",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodPost, "/api/auth/register", "", gin.H{"email": "ada@example.com", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginUser(t *testing.T) {
	s, r := newAuthFixture(t)
	user := &models.User{ID: primitive.NewObjectID(), Email: "ada@example.com", Password: "hunter22", Role: models.RoleAdmin}
	require.NoError(t, user.HashPassword())

	s.EXPECT().GetUserByEmail(gomock.Any(), "ada@example.com").Return(user, nil).Times(2)

	w := doJSON(r, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "hunter22"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)

	s.EXPECT().GetUserByEmail(gomock.Any(), "ghost@example.com").Return(nil, store.ErrNotFound)
	w = doJSON(r, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ghost@example.com", "password": "hunter22"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetMeAndLogout(t *testing.T) {
	s, r := newAuthFixture(t)
	userID := primitive.NewObjectID()

	s.EXPECT().GetUser(gomock.Any(), userID).Return(&models.User{ID: userID, Name: "Ada", Role: models.RoleCitizen}, nil)
	w := doJSON(r, http.MethodGet, "/api/auth/me", bearer(t, userID, "citizen"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Ada"`)

	w = doJSON(r, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestSeedAdmin(t *testing.T) {
	s := mocks.NewMockStore(gomock.NewController(t))
	ctx := context.Background()

	require.NoError(t, controllers.SeedAdmin(ctx, s, "", "secret"))

	s.EXPECT().GetUserByEmail(gomock.Any(), "admin@city.gov").Return(nil, store.ErrNotFound)
	s.EXPECT().CreateUser(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, user *models.User) error {
		assert.True(t, user.IsAdmin())
		assert.True(t, user.ComparePassword("secret"))
		return nil
	})
	require.NoError(t, controllers.SeedAdmin(ctx, s, "Admin@City.gov", "secret"))

	s.EXPECT().GetUserByEmail(gomock.Any(), "admin@city.gov").Return(&models.User{Role: models.RoleAdmin}, nil)
	require.NoError(t, controllers.SeedAdmin(ctx, s, "admin@city.gov", "secret"))
}
