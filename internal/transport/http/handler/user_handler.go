package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-user-service/internal/core/cache"
	"go-user-service/internal/domain"
	"go-user-service/internal/feature/user"
	"go-user-service/internal/roles"
	mdw "go-user-service/internal/transport/http/middleware"
	resp "go-user-service/internal/transport/http/response"
	"go-user-service/pkg/utils"
)

const pageSize = 25

// lookupTTL bounds staleness of the public profile lookup; writes are
// not invalidated, entries just age out.
const lookupTTL = 30 * time.Second

// UserHandler serves the user CRUD surface. Authorization happens at
// the top of each handler against the principal the JWT middleware
// attached; nothing propagates past the handler boundary.
type UserHandler struct {
	store      domain.UserStore
	roles      *roles.Registry
	cache      *cache.Cache // optional, used by Lookup
	log        *zap.Logger
	avatarHost string
}

func NewUserHandler(store domain.UserStore, reg *roles.Registry, ca *cache.Cache, l *zap.Logger, avatarHost string) *UserHandler {
	return &UserHandler{store: store, roles: reg, cache: ca, log: l, avatarHost: avatarHost}
}

// Read returns one sanitized user. Allowed when the principal is the
// target, or holds the admin subrole.
func (h *UserHandler) Read(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		writeErr(c, h.log, BadRequest("Missing user id"))
		return
	}
	p := mdw.Principal(c)
	if p.UID != id && !h.roles.Can(p.Subroles, roles.ActionRead) {
		writeErr(c, h.log, Forbidden("forbidden"))
		return
	}
	u, err := h.store.ByID(c.Request.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeErr(c, h.log, NotFound("User not found"))
		return
	}
	if err != nil {
		writeErr(c, h.log, Internal("read user failed", err))
		return
	}
	c.JSON(http.StatusOK, resp.OK(u.Public()))
}

// Me returns the sanitized record of the acting principal.
func (h *UserHandler) Me(c *gin.Context) {
	p := mdw.Principal(c)
	u, err := h.store.ByID(c.Request.Context(), p.UID)
	if errors.Is(err, domain.ErrNotFound) {
		writeErr(c, h.log, NotFound("User not found"))
		return
	}
	if err != nil {
		writeErr(c, h.log, Internal("read user failed", err))
		return
	}
	c.JSON(http.StatusOK, resp.OK(u.Public()))
}

// List pages users 25 at a time, ordered by username ascending, with
// an optional case-insensitive substring match on username.
func (h *UserHandler) List(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	q := c.Query("q")
	us, err := h.store.Search(c.Request.Context(), q, (page-1)*pageSize, pageSize)
	if err != nil {
		writeErr(c, h.log, Internal("list users failed", err))
		return
	}
	c.JSON(http.StatusOK, resp.OK(user.PublicAll(us)))
}

// Create persists a new user from the allow-listed payload fields.
// Requires the create permission.
func (h *UserHandler) Create(c *gin.Context) {
	p := mdw.Principal(c)
	if !h.roles.Can(p.Subroles, roles.ActionCreate) {
		writeErr(c, h.log, Forbidden("forbidden"))
		return
	}
	var in user.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}

	m := &user.Model{ID: utils.NewID()}
	user.ApplyCreate(m, &in, h.avatarHost)
	m.Role = h.roles.DefaultRole()
	m.Subroles = h.roles.SubrolesFor(m.Role)

	if err := h.store.Create(c.Request.Context(), m); err != nil {
		writeErr(c, h.log, createErr(err))
		return
	}

	h.log.Info("user created",
		zap.String("id", m.ID),
		zap.String("username", m.Username),
		zap.String("actor", p.UID),
	)
	c.JSON(http.StatusCreated, resp.Created(m.Public()))
}

// Update overwrites the allow-listed profile fields of the record
// named by the payload id. The principal owns the request; there is
// no role gate on this path.
func (h *UserHandler) Update(c *gin.Context) {
	var in user.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}
	if strings.TrimSpace(in.ID) == "" {
		writeErr(c, h.log, BadRequest("Missing user id"))
		return
	}

	u, err := h.store.ByID(c.Request.Context(), in.ID)
	if errors.Is(err, domain.ErrNotFound) {
		writeErr(c, h.log, NotFound("User not found"))
		return
	}
	if err != nil {
		writeErr(c, h.log, Internal("read user failed", err))
		return
	}

	user.ApplyUpdate(u, &in, h.avatarHost)
	if err := h.store.Save(c.Request.Context(), u); err != nil {
		writeErr(c, h.log, createErr(err))
		return
	}
	c.JSON(http.StatusOK, resp.OK(u.Public()))
}

// Delete removes a user by id. Requires the delete permission; a
// nonexistent id is not an error.
func (h *UserHandler) Delete(c *gin.Context) {
	p := mdw.Principal(c)
	if !h.roles.Can(p.Subroles, roles.ActionDelete) {
		writeErr(c, h.log, Forbidden("forbidden"))
		return
	}
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeErr(c, h.log, Internal("delete user failed", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// Lookup resolves a comma-separated id list to sanitized profiles.
// The endpoint is public: it only ever serves the declared public
// projection, and results ride a short-TTL cache.
func (h *UserHandler) Lookup(c *gin.Context) {
	raw := c.Query("ids")
	ids := make([]string, 0, 8)
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			ids = append(ids, s)
		}
	}
	if len(ids) == 0 {
		c.JSON(http.StatusOK, resp.OK([]user.Public{}))
		return
	}

	load := func(ctx context.Context) (*[]user.Public, error) {
		us, err := h.store.ByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		pub := user.PublicAll(us)
		return &pub, nil
	}

	var pub *[]user.Public
	var err error
	if h.cache != nil {
		pub, err = cache.GetOrLoadJSON(h.cache, c.Request.Context(),
			"users:lookup:"+strings.Join(ids, ","), lookupTTL, load)
	} else {
		pub, err = load(c.Request.Context())
	}
	if err != nil {
		writeErr(c, h.log, Internal("lookup users failed", err))
		return
	}
	if pub == nil {
		c.JSON(http.StatusOK, resp.OK([]user.Public{}))
		return
	}
	c.JSON(http.StatusOK, resp.OK(*pub))
}

// createErr maps store write failures: constraint violations are the
// client's fault, everything else is ours.
func createErr(err error) error {
	switch {
	case errors.Is(err, domain.ErrDuplicateUsername):
		return BadRequest("Username is taken")
	case errors.Is(err, domain.ErrDuplicateEmail):
		return BadRequest("Email is taken")
	case errors.Is(err, domain.ErrValidation):
		return BadRequest("Invalid user record")
	default:
		return Internal("save user failed", err)
	}
}
