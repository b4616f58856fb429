package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/medledger/internal/authz"
	"github.com/geocoder89/medledger/internal/domain/user"
	"github.com/geocoder89/medledger/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type UserService interface {
	Register(ctx context.Context, req user.CreateUserRequest) (user.User, error)
	List(ctx context.Context, actor authz.Actor) ([]user.User, error)
	Get(ctx context.Context, actor authz.Actor, id int64) (user.User, error)
	Update(ctx context.Context, actor authz.Actor, id int64, req user.UpdateUserRequest) (user.User, error)
	Delete(ctx context.Context, actor authz.Actor, id int64) error
}

type UsersHandler struct {
	svc UserService
}

func NewUsersHandler(svc UserService) *UsersHandler {
	return &UsersHandler{svc: svc}
}

const storeTimeout = 3 * time.Second

// requestScope bounds the store calls of one handler and resolves the actor.
func requestScope(ctx *gin.Context) (context.Context, context.CancelFunc, authz.Actor, bool) {
	actor, ok := middlewares.ActorFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return nil, nil, authz.Actor{}, false
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)

	return cctx, cancel, actor, true
}

func (h *UsersHandler) Register(ctx *gin.Context) {
	var req user.CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	u, err := h.svc.Register(cctx, req)

	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, u)
}

func (h *UsersHandler) List(ctx *gin.Context) {
	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	out, err := h.svc.List(cctx, actor)

	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"items": out, "count": len(out)})
}

func (h *UsersHandler) Get(ctx *gin.Context) {
	id, ok := ParseID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	u, err := h.svc.Get(cctx, actor, id)

	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *UsersHandler) Update(ctx *gin.Context) {
	id, ok := ParseID(ctx, "id")
	if !ok {
		return
	}

	var req user.UpdateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	u, err := h.svc.Update(cctx, actor, id, req)

	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *UsersHandler) Delete(ctx *gin.Context) {
	id, ok := ParseID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	if err := h.svc.Delete(cctx, actor, id); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
