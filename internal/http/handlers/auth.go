package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/medledger/internal/authz"
	"github.com/geocoder89/medledger/internal/domain/user"
	"github.com/geocoder89/medledger/internal/users"
	"github.com/gin-gonic/gin"
)

// bcrypt at the default cost plus one lookup
const loginTimeout = 3 * time.Second

type Authenticator interface {
	Login(ctx context.Context, email, password string) (users.LoginResult, error)
	Get(ctx context.Context, actor authz.Actor, id int64) (user.User, error)
}

type AuthHandler struct {
	users Authenticator
}

func NewAuthHandler(users Authenticator) *AuthHandler {
	return &AuthHandler{users: users}
}

// Login exchanges credentials for a bearer token. Wrong email and wrong
// password answer identically.
func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), loginTimeout)
	defer cancel()

	res, err := h.users.Login(cctx, req.Email, req.Password)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, res)
}

// Me returns the caller's own profile.
func (h *AuthHandler) Me(ctx *gin.Context) {
	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	u, err := h.users.Get(cctx, actor, actor.ID)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, u)
}
