// Package users owns accounts: registration, login, profile changes, deletion,
// and turning a verified token back into an actor.
package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/medledger/internal/apperr"
	"github.com/geocoder89/medledger/internal/auth"
	"github.com/geocoder89/medledger/internal/authz"
	"github.com/geocoder89/medledger/internal/cache"
	"github.com/geocoder89/medledger/internal/domain/user"
	"github.com/geocoder89/medledger/internal/observability"
	"github.com/geocoder89/medledger/internal/security"
)

type Store interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByID(ctx context.Context, id int64) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	List(ctx context.Context) ([]user.User, error)
	Update(ctx context.Context, id int64, c user.Changes) (user.User, error)
	IsReferenced(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) error
}

type TokenIssuer interface {
	Issue(subjectID int64, role, name string) (string, time.Time, error)
}

type LoginResult struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Role        user.Role `json:"role"`
	UserID      int64     `json:"userId"`
}

const actorCacheTTL = 30 * time.Second

type Service struct {
	store  Store
	hasher Hasher
	tokens TokenIssuer
	actors *cache.Cache[int64, authz.Actor]
	prom   *observability.Prom
	log    *slog.Logger

	// burned on unknown emails so both login failures cost one bcrypt compare
	decoyOnce sync.Once
	decoyHash string
}

// prom may be nil.
func NewService(store Store, hasher Hasher, tokens TokenIssuer, prom *observability.Prom, log *slog.Logger) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		actors: cache.New[int64, authz.Actor](actorCacheTTL),
		prom:   prom,
		log:    log,
	}
}

// WithActorCacheTTL replaces the actor cache lifetime. A ttl of zero or less
// turns the cache off so every request reads the role from the store.
func (s *Service) WithActorCacheTTL(ttl time.Duration) *Service {
	if ttl <= 0 {
		s.actors = nil
		return s
	}

	s.actors = cache.New[int64, authz.Actor](ttl)
	return s
}

func (s *Service) Register(ctx context.Context, req user.CreateUserRequest) (user.User, error) {
	if req.Role != user.RolePatient && req.Role != user.RoleDoctor {
		return user.User{}, apperr.Validation("invalid_role", "role must be patient or doctor")
	}

	hash, err := s.hasher.Hash(req.Password)

	if err != nil {
		return user.User{}, apperr.Internal("could not register user", err)
	}

	u, err := s.store.Create(ctx, user.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        normalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         req.Role,
	})

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return user.User{}, apperr.Conflict("email_taken", "a user with this email already exists")
		}
		return user.User{}, apperr.Internal("could not register user", err)
	}

	s.log.InfoContext(ctx, "user registered", "user_id", u.ID, "role", u.Role)

	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	invalid := apperr.Unauthenticated("invalid_credentials", "invalid email or password")

	u, err := s.store.GetByEmail(ctx, normalizeEmail(email))

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.burnCompare(password)
			s.log.WarnContext(ctx, "login failed", "reason", "unknown_email")
			return LoginResult{}, invalid
		}
		return LoginResult{}, apperr.Internal("could not log in", err)
	}

	if err := s.hasher.Verify(password, u.PasswordHash); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			s.log.WarnContext(ctx, "login failed", "reason", "bad_password", "user_id", u.ID)
			return LoginResult{}, invalid
		}
		return LoginResult{}, apperr.Internal("could not log in", err)
	}

	token, exp, err := s.tokens.Issue(u.ID, string(u.Role), u.Name)

	if err != nil {
		return LoginResult{}, apperr.Internal("could not issue token", err)
	}

	return LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   exp,
		Role:        u.Role,
		UserID:      u.ID,
	}, nil
}

func (s *Service) List(ctx context.Context, actor authz.Actor) ([]user.User, error) {
	if err := s.check(ctx, actor, authz.Decide(authz.ActionListUsers, authz.CanListUsers(actor))); err != nil {
		return nil, err
	}

	out, err := s.store.List(ctx)

	if err != nil {
		return nil, apperr.Internal("could not list users", err)
	}

	return out, nil
}

func (s *Service) Get(ctx context.Context, actor authz.Actor, id int64) (user.User, error) {
	if err := s.check(ctx, actor, authz.Decide(authz.ActionViewUser, authz.CanViewUser(actor, id))); err != nil {
		return user.User{}, err
	}

	return s.find(ctx, id)
}

// Update applies the non-empty fields of req. A role change needs an admin.
func (s *Service) Update(ctx context.Context, actor authz.Actor, id int64, req user.UpdateUserRequest) (user.User, error) {
	if err := s.check(ctx, actor, authz.Decide(authz.ActionUpdateUser, authz.CanUpdateUser(actor, id))); err != nil {
		return user.User{}, err
	}

	var c user.Changes

	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		c.Email = normalizeEmail(*req.Email)
	}
	if req.Role != nil && *req.Role != "" {
		if !req.Role.Valid() {
			return user.User{}, apperr.Validation("invalid_role", "unknown role")
		}
		if err := s.check(ctx, actor, authz.Decide(authz.ActionChangeRole, authz.CanChangeRole(actor))); err != nil {
			return user.User{}, err
		}
		c.Role = *req.Role
	}

	if c.Empty() {
		return user.User{}, apperr.Validation("no_changes", "at least one field must be provided")
	}

	if c.Role != "" {
		if err := s.guardRoleChange(ctx, id, c.Role); err != nil {
			return user.User{}, err
		}
	}

	u, err := s.store.Update(ctx, id, c)

	if err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			return user.User{}, apperr.NotFound("user_not_found", "user not found")
		case errors.Is(err, user.ErrEmailTaken):
			return user.User{}, apperr.Conflict("email_taken", "a user with this email already exists")
		}
		return user.User{}, apperr.Internal("could not update user", err)
	}

	s.forgetActor(id)

	return u, nil
}

// guardRoleChange refuses to move a user out of the role its records were
// filed under: a record's patient stays a patient and its doctor a doctor.
func (s *Service) guardRoleChange(ctx context.Context, id int64, to user.Role) error {
	current, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	if current.Role == to {
		return nil
	}

	referenced, err := s.store.IsReferenced(ctx, id)
	if err != nil {
		return apperr.Internal("could not update user", err)
	}

	if referenced {
		return apperr.Forbidden("user_referenced", "cannot change the role of a user referenced by medical records")
	}

	return nil
}

// Delete refuses users that records still point at.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id int64) error {
	if err := s.check(ctx, actor, authz.Decide(authz.ActionDeleteUser, authz.CanDeleteUser(actor))); err != nil {
		return err
	}

	if _, err := s.find(ctx, id); err != nil {
		return err
	}

	referenced, err := s.store.IsReferenced(ctx, id)

	if err != nil {
		return apperr.Internal("could not delete user", err)
	}

	if referenced {
		return apperr.Forbidden("user_referenced", "user is still referenced by medical records")
	}

	err = s.store.Delete(ctx, id)

	switch {
	case err == nil:
	case errors.Is(err, user.ErrNotFound):
		return apperr.NotFound("user_not_found", "user not found")
	case errors.Is(err, user.ErrReferenced):
		return apperr.Forbidden("user_referenced", "user is still referenced by medical records")
	default:
		return apperr.Internal("could not delete user", err)
	}

	s.forgetActor(id)
	s.log.InfoContext(ctx, "user deleted", "user_id", id)

	return nil
}

// ResolveActor reads the subject's current role from the store. A token that
// outlived its user is rejected.
func (s *Service) ResolveActor(ctx context.Context, claims *auth.Claims) (authz.Actor, error) {
	id, err := claims.SubjectID()

	if err != nil {
		return authz.Actor{}, apperr.Unauthenticated("invalid_token", "invalid token subject")
	}

	if s.actors != nil {
		if a, ok := s.actors.Get(id); ok {
			return a, nil
		}
	}

	u, err := s.store.GetByID(ctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return authz.Actor{}, apperr.Unauthenticated("unknown_subject", "user no longer exists")
		}
		return authz.Actor{}, apperr.Internal("could not resolve user", err)
	}

	a := authz.Actor{ID: u.ID, Role: u.Role}
	if s.actors != nil {
		s.actors.Set(id, a)
	}

	return a, nil
}

func (s *Service) forgetActor(id int64) {
	if s.actors != nil {
		s.actors.Delete(id)
	}
}

func (s *Service) find(ctx context.Context, id int64) (user.User, error) {
	u, err := s.store.GetByID(ctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, apperr.NotFound("user_not_found", "user not found")
		}
		return user.User{}, apperr.Internal("could not load user", err)
	}

	return u, nil
}

func (s *Service) check(ctx context.Context, actor authz.Actor, d authz.Decision) error {
	if d.Allowed {
		return nil
	}

	if s.prom != nil {
		s.prom.ObserveDenial(d.Action)
	}

	s.log.InfoContext(ctx, "authorization denied", "action", d.Action, "decision", d.Label(), "subject_id", actor.ID)

	return apperr.Forbidden("forbidden", "you are not allowed to "+strings.ReplaceAll(d.Action, "_", " "))
}

func (s *Service) burnCompare(password string) {
	s.decoyOnce.Do(func() {
		s.decoyHash, _ = s.hasher.Hash("medledger-decoy-password")
	})

	if s.decoyHash != "" {
		_ = s.hasher.Verify(password, s.decoyHash)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
