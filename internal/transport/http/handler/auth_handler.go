package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-user-service/internal/core/auth"
	"go-user-service/internal/core/mail"
	"go-user-service/internal/domain"
	"go-user-service/internal/feature/user"
	"go-user-service/internal/roles"
	mdw "go-user-service/internal/transport/http/middleware"
	resp "go-user-service/internal/transport/http/response"
	"go-user-service/pkg/utils"
)

// AuthHandler serves registration, login and the credential flows
// (change / verify / reset). Mail failures during the verify and
// reset request endpoints surface as 500; during registration they
// only add a warning to the 201 body.
type AuthHandler struct {
	store      domain.UserStore
	roles      *roles.Registry
	mailer     mail.Mailer
	policy     *user.Policy
	jwter      *auth.JWTer
	log        *zap.Logger
	avatarHost string

	registerEnabled     bool
	requireVerification bool
	tokenTTL            time.Duration
}

type AuthOpts struct {
	RegisterEnabled     bool
	RequireVerification bool
	TokenTTL            time.Duration
	AvatarHost          string
}

func NewAuthHandler(store domain.UserStore, reg *roles.Registry, m mail.Mailer, policy *user.Policy, j *auth.JWTer, l *zap.Logger, o AuthOpts) *AuthHandler {
	return &AuthHandler{
		store:               store,
		roles:               reg,
		mailer:              m,
		policy:              policy,
		jwter:               j,
		log:                 l,
		avatarHost:          o.AvatarHost,
		registerEnabled:     o.RegisterEnabled,
		requireVerification: o.RequireVerification,
		tokenTTL:            o.TokenTTL,
	}
}

type registerIn struct {
	user.CreateInput
	Password string `json:"password" binding:"required"`
}

// Register creates an account from an anonymous request. The role is
// forced to the default; a verification token is attached when email
// verification is required.
func (h *AuthHandler) Register(c *gin.Context) {
	if !h.registerEnabled {
		writeErr(c, h.log, Forbidden("User registration is disabled"))
		return
	}
	var in registerIn
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}
	if err := h.policy.Validate(in.Password); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		writeErr(c, h.log, Internal("hash password failed", err))
		return
	}

	m := &user.Model{ID: utils.NewID(), Password: hash}
	user.ApplyCreate(m, &in.CreateInput, h.avatarHost)
	m.Role = h.roles.DefaultRole()
	m.Subroles = h.roles.SubrolesFor(m.Role)
	if h.requireVerification {
		expires := time.Now().Add(h.tokenTTL)
		m.VerificationToken = utils.NewToken()
		m.VerificationExpires = &expires
	} else {
		m.Verified = true
	}

	if err := h.store.Create(c.Request.Context(), m); err != nil {
		writeErr(c, h.log, createErr(err))
		return
	}
	h.log.Info("user registered", zap.String("id", m.ID), zap.String("username", m.Username))

	body := gin.H{"user": m.Public()}
	if h.requireVerification {
		if err := h.mailer.SendEmailVerify(m.Email, m.Username, m.VerificationToken); err != nil {
			// Registration stands; the user can request a resend.
			h.log.Warn("verification email failed", zap.String("id", m.ID), zap.Error(err))
			body["warning"] = "Verification email could not be sent"
		}
	}
	c.JSON(http.StatusCreated, resp.Created(body))
}

type loginIn struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and issues a JWT carrying the user's
// role and subroles.
func (h *AuthHandler) Login(c *gin.Context) {
	var in loginIn
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}
	u, err := h.store.ByUsername(c.Request.Context(), strings.TrimSpace(in.Username))
	if errors.Is(err, domain.ErrNotFound) {
		writeErr(c, h.log, BadRequest("Incorrect Username/Password"))
		return
	}
	if err != nil {
		writeErr(c, h.log, Internal("read user failed", err))
		return
	}
	if !utils.CheckPassword(in.Password, u.Password) {
		writeErr(c, h.log, BadRequest("Incorrect Username/Password"))
		return
	}
	tok, err := h.jwter.Issue(u.ID, u.Role, u.Subroles)
	if err != nil {
		writeErr(c, h.log, Internal("issue token failed", err))
		return
	}
	c.JSON(http.StatusOK, resp.OK(gin.H{"token": tok, "user": u.Public()}))
}

type changePasswordIn struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// ChangePassword swaps the principal's password after verifying the
// old one.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var in changePasswordIn
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}
	p := mdw.Principal(c)
	u, err := h.store.ByID(c.Request.Context(), p.UID)
	if err != nil {
		writeErr(c, h.log, Internal("read user failed", err))
		return
	}
	if !utils.CheckPassword(in.OldPassword, u.Password) {
		writeErr(c, h.log, BadRequest("Incorrect Username/Password"))
		return
	}
	if err := h.policy.Validate(in.NewPassword); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}
	hash, err := utils.HashPassword(in.NewPassword)
	if err != nil {
		writeErr(c, h.log, Internal("hash password failed", err))
		return
	}
	u.Password = hash
	if err := h.store.Save(c.Request.Context(), u); err != nil {
		writeErr(c, h.log, Internal("save user failed", err))
		return
	}
	c.JSON(http.StatusOK, resp.OK(u.Public()))
}

// VerifyEmail consumes a verification token: clears the expiry and
// marks the account verified.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Param("token")
	u, err := h.store.ByVerificationToken(c.Request.Context(), token)
	if errors.Is(err, domain.ErrNotFound) {
		writeErr(c, h.log, BadRequest("Token invalid"))
		return
	}
	if err != nil {
		writeErr(c, h.log, Internal("read user failed", err))
		return
	}
	if u.VerificationExpires == nil || time.Now().After(*u.VerificationExpires) {
		writeErr(c, h.log, BadRequest("Token has expired"))
		return
	}
	u.VerificationExpires = nil
	u.Verified = true
	if err := h.store.Save(c.Request.Context(), u); err != nil {
		writeErr(c, h.log, Internal("save user failed", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// ResendVerification issues a fresh verification token for the
// principal and mails it.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	p := mdw.Principal(c)
	u, err := h.store.ByID(c.Request.Context(), p.UID)
	if err != nil {
		writeErr(c, h.log, Internal("read user failed", err))
		return
	}
	expires := time.Now().Add(h.tokenTTL)
	u.VerificationToken = utils.NewToken()
	u.VerificationExpires = &expires
	if err := h.store.Save(c.Request.Context(), u); err != nil {
		writeErr(c, h.log, Internal("save user failed", err))
		return
	}
	if err := h.mailer.SendEmailVerify(u.Email, u.Username, u.VerificationToken); err != nil {
		writeErr(c, h.log, Internal("send verification email failed", err))
		return
	}
	c.Status(http.StatusNoContent)
}

type forgotIn struct {
	Email string `json:"email"`
}

// RequestPasswordReset issues a reset token for the account matching
// the email and mails it. Zero or multiple matches read as not found.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var in forgotIn
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}
	if strings.TrimSpace(in.Email) == "" {
		writeErr(c, h.log, BadRequest("Missing email"))
		return
	}
	us, err := h.store.ByEmail(c.Request.Context(), strings.TrimSpace(in.Email))
	if err != nil {
		writeErr(c, h.log, Internal("read user failed", err))
		return
	}
	if len(us) != 1 {
		writeErr(c, h.log, BadRequest("Email not found"))
		return
	}

	u := &us[0]
	expires := time.Now().Add(h.tokenTTL)
	u.ResetToken = utils.NewToken()
	u.ResetExpires = &expires
	if err := h.store.Save(c.Request.Context(), u); err != nil {
		writeErr(c, h.log, Internal("save user failed", err))
		return
	}
	if err := h.mailer.SendPasswordReset(u.Email, u.Username, u.ResetToken); err != nil {
		writeErr(c, h.log, Internal("send reset email failed", err))
		return
	}
	c.Status(http.StatusNoContent)
}

type resetIn struct {
	Password string `json:"password"`
	Token    string `json:"token"`
}

// ResetPassword consumes a reset token: sets the new password, clears
// the reset fields and marks the account verified.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var in resetIn
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}
	if in.Password == "" {
		writeErr(c, h.log, BadRequest("Missing password"))
		return
	}
	if in.Token == "" {
		writeErr(c, h.log, BadRequest("Token invalid"))
		return
	}
	if err := h.policy.Validate(in.Password); err != nil {
		writeErr(c, h.log, BadRequest(err.Error()))
		return
	}

	us, err := h.store.ByResetToken(c.Request.Context(), in.Token)
	if err != nil {
		writeErr(c, h.log, Internal("read user failed", err))
		return
	}
	if len(us) != 1 {
		writeErr(c, h.log, BadRequest("Token invalid"))
		return
	}
	u := &us[0]
	if u.ResetExpires == nil || time.Now().After(*u.ResetExpires) {
		writeErr(c, h.log, BadRequest("Token has expired"))
		return
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		writeErr(c, h.log, Internal("hash password failed", err))
		return
	}
	u.Password = hash
	u.ResetToken = ""
	u.ResetExpires = nil
	u.Verified = true
	if err := h.store.Save(c.Request.Context(), u); err != nil {
		writeErr(c, h.log, Internal("save user failed", err))
		return
	}
	c.Status(http.StatusNoContent)
}
