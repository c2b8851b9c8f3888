package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-user-service/internal/domain"
	"go-user-service/internal/roles"
	mdw "go-user-service/internal/transport/http/middleware"
	"go-user-service/pkg/utils"
)

// AdminHandler serves the admin-only maintenance surface. Unlike the
// rest of the API this path gates on role equality with the
// configured admin role, not on subrole membership.
type AdminHandler struct {
	store domain.UserStore
	roles *roles.Registry
	log   *zap.Logger
}

func NewAdminHandler(store domain.UserStore, reg *roles.Registry, l *zap.Logger) *AdminHandler {
	return &AdminHandler{store: store, roles: reg, log: l}
}

func (h *AdminHandler) requireAdmin(c *gin.Context) bool {
	p := mdw.Principal(c)
	if p == nil || p.Role != h.roles.AdminRole() {
		writeErr(c, h.log, Forbidden("forbidden"))
		return false
	}
	return true
}

type adminUpdateIn struct {
	ID          string  `json:"id" binding:"required"`
	Username    *string `json:"username" binding:"omitempty,max=64"`
	Email       *string `json:"email" binding:"omitempty,email"`
	DisplayName *string `json:"displayName" binding:"omitempty,max=64"`
	FirstName   *string `json:"firstName" binding:"omitempty,max=64"`
	LastName    *string `json:"lastName" binding:"omitempty,max=64"`
	Role        *string `json:"role"`
	Password    *string `json:"password"`
}

// Update applies a partial field update to the record named by the
// payload id. A role change recomputes subroles; a password is hashed
// before persisting. Responds 204 with no body.
func (h *AdminHandler) Update(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	var in adminUpdateIn
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}

	fields := map[string]any{}
	if in.Username != nil {
		fields["username"] = strings.TrimSpace(*in.Username)
	}
	if in.Email != nil {
		fields["email"] = strings.TrimSpace(*in.Email)
	}
	if in.DisplayName != nil {
		fields["display_name"] = strings.TrimSpace(*in.DisplayName)
	}
	if in.FirstName != nil {
		fields["first_name"] = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		fields["last_name"] = strings.TrimSpace(*in.LastName)
	}
	if in.Role != nil {
		fields["role"] = *in.Role
		fields["subroles"] = h.roles.SubrolesFor(*in.Role)
	}
	if in.Password != nil {
		hash, err := utils.HashPassword(*in.Password)
		if err != nil {
			writeErr(c, h.log, Internal("hash password failed", err))
			return
		}
		fields["password"] = hash
	}

	if err := h.store.UpdateFields(c.Request.Context(), in.ID, fields); err != nil {
		writeErr(c, h.log, Internal("update user failed", err))
		return
	}
	c.Status(http.StatusNoContent)
}

type roleIn struct {
	Role string `json:"role" binding:"required"`
}

// UpdateRole sets one user's role and the subroles derived from it,
// and reports the store outcome to the caller.
func (h *AdminHandler) UpdateRole(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	var in roleIn
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}
	if !h.roles.Known(in.Role) {
		writeErr(c, h.log, BadRequest("Unknown role"))
		return
	}
	err := h.store.UpdateFields(c.Request.Context(), c.Param("id"), map[string]any{
		"role":     in.Role,
		"subroles": h.roles.SubrolesFor(in.Role),
	})
	if err != nil {
		writeErr(c, h.log, Internal("update role failed", err))
		return
	}
	c.Status(http.StatusNoContent)
}

type flushIn struct {
	Role     string   `json:"role" binding:"required"`
	Subroles []string `json:"subroles" binding:"required"`
}

// FlushSubroles bulk-replaces the subroles of every user holding the
// parent role. The update runs fire-and-forget: failure is observable
// only in the logs, and a reader may briefly see users mid-transition.
func (h *AdminHandler) FlushSubroles(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	var in flushIn
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}

	go func() {
		n, err := h.store.FlushSubroles(context.Background(), in.Role, in.Subroles)
		if err != nil {
			h.log.Error("flush subroles failed", zap.String("role", in.Role), zap.Error(err))
			return
		}
		h.log.Info("subroles flushed", zap.String("role", in.Role), zap.Int64("users", n))
	}()
	c.Status(http.StatusNoContent)
}

type removeIn struct {
	Subroles []string `json:"subroles" binding:"required"`
}

// RemoveSubroles strips each label from every user carrying it. Each
// label is an independent operation; one failing is logged and does
// not block the rest.
func (h *AdminHandler) RemoveSubroles(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	var in removeIn
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}

	go func() {
		for _, label := range in.Subroles {
			n, err := h.store.RemoveSubrole(context.Background(), label)
			if err != nil {
				h.log.Error("remove subrole failed", zap.String("subrole", label), zap.Error(err))
				continue
			}
			h.log.Info("subrole removed", zap.String("subrole", label), zap.Int64("users", n))
		}
	}()
	c.Status(http.StatusNoContent)
}
