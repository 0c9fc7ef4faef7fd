package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"espresso-tracker/internal/backup"
	"espresso-tracker/internal/domain"
	"espresso-tracker/internal/mail"
	"espresso-tracker/internal/service"
	"espresso-tracker/internal/token"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	users   service.UserService
	entries service.EntryService
	tokens  *token.Manager
	mailer  mail.Mailer
	backups backup.Service
	bucket  string
	prefix  string
	dbPath  string
	baseURL string
	logger  *logrus.Logger
}

func NewHandler(
	users service.UserService,
	entries service.EntryService,
	tokens *token.Manager,
	mailer mail.Mailer,
	backups backup.Service,
	bucket, prefix, dbPath, baseURL string,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		users:   users,
		entries: entries,
		tokens:  tokens,
		mailer:  mailer,
		backups: backups,
		bucket:  bucket,
		prefix:  prefix,
		dbPath:  dbPath,
		baseURL: baseURL,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		api.POST("/auth/register", h.register)
		api.POST("/auth/login", h.login)
		api.POST("/auth/forgot-password", h.forgotPassword)
		api.POST("/auth/reset-password", h.resetPassword)

		api.GET("/entries", optionalAuth(h.tokens), h.listEntries)
		api.GET("/entries/:id", optionalAuth(h.tokens), h.getEntry)
		api.GET("/coffees", h.listCoffees)

		authed := api.Group("", requireAuth(h.tokens))
		{
			authed.GET("/auth/me", h.me)
			authed.POST("/entries", h.createEntry)
			authed.PUT("/entries/:id", h.updateEntry)
			authed.DELETE("/entries/:id", h.deleteEntry)
			authed.POST("/backups", h.createBackup)
			authed.GET("/backups", h.listBackups)
		}
	}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case err == service.ErrDuplicateEmail:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case isDomainValidation(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.internalError(c, "register user", err)
		}
		return
	}

	h.respondWithToken(c, http.StatusCreated, user)
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if err == service.ErrInvalidCredentials {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "authenticate user", err)
		return
	}

	h.respondWithToken(c, http.StatusOK, user)
}

func (h *Handler) respondWithToken(c *gin.Context, status int, user *domain.User) {
	signed, err := h.tokens.IssueAccess(user.ID)
	if err != nil {
		h.internalError(c, "issue access token", err)
		return
	}
	c.JSON(status, gin.H{
		"token": signed,
		"user":  userToResponse(user),
	})
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.internalError(c, "load user", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, userToResponse(user))
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

const forgotPasswordReply = "if that email exists, a password reset link has been sent"

// forgotPassword always answers the same way so responses never confirm
// whether an address is registered. Mail trouble is logged server-side only.
func (h *Handler) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		h.logger.WithError(err).Error("look up account for password reset")
	}
	if user != nil {
		h.sendResetMail(c, user.Email)
	}

	c.JSON(http.StatusAccepted, gin.H{"message": forgotPasswordReply})
}

func (h *Handler) sendResetMail(c *gin.Context, email string) {
	signed, err := h.tokens.IssueReset(email)
	if err != nil {
		h.logger.WithError(err).Error("issue reset token")
		return
	}

	if h.mailer == nil {
		h.logger.Warn("mailer not configured, skipping password reset mail")
		return
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", h.baseURL, signed)
	body := fmt.Sprintf(`To reset your password, visit the following link:
%s

This link will expire in 1 hour.

If you did not request a password reset, please ignore this email.
`, resetURL)

	if err := h.mailer.Send(c.Request.Context(), email, "Reset Your Password - Espresso Tracker", body); err != nil {
		h.logger.WithError(err).Error("send password reset mail")
	}
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email, err := h.tokens.VerifyReset(req.Token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired reset token"})
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		h.internalError(c, "load user for reset", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired reset token"})
		return
	}

	if err := h.users.UpdatePassword(c.Request.Context(), user.ID, req.Password); err != nil {
		if isDomainValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "update password", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password updated, please log in"})
}

type entryRequest struct {
	Coffee         string   `json:"coffee" binding:"required"`
	GrinderSetting string   `json:"grinder_setting" binding:"required"`
	InputWeight    *float64 `json:"input_weight" binding:"required"`
	OutputWeight   *float64 `json:"output_weight" binding:"required"`
	TasteComment   string   `json:"taste_comment"`
}

func (r entryRequest) toUpdate() service.EntryUpdate {
	return service.EntryUpdate{
		Coffee:         r.Coffee,
		GrinderSetting: r.GrinderSetting,
		InputWeight:    *r.InputWeight,
		OutputWeight:   *r.OutputWeight,
		TasteComment:   r.TasteComment,
	}
}

func (h *Handler) createEntry(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.entries.AddEntry(c.Request.Context(), currentUserID(c), req.toUpdate())
	if err != nil {
		h.internalError(c, "add entry", err)
		return
	}

	c.JSON(http.StatusCreated, entryToResponse(*entry))
}

func (h *Handler) getEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}

	entry, err := h.entries.GetEntry(c.Request.Context(), id)
	if err != nil {
		h.internalError(c, "get entry", err)
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}

	viewer := viewerID(c)
	c.JSON(http.StatusOK, gin.H{
		"entry":    entryToResponse(*entry),
		"is_owner": viewer != nil && *viewer == entry.UserID,
	})
}

func (h *Handler) updateEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}

	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.entries.UpdateEntry(c.Request.Context(), id, currentUserID(c), req.toUpdate()); err != nil {
		h.entryMutationError(c, "update entry", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": id})
}

func (h *Handler) deleteEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}

	if err := h.entries.DeleteEntry(c.Request.Context(), id, currentUserID(c)); err != nil {
		h.entryMutationError(c, "delete entry", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) entryMutationError(c *gin.Context, op string, err error) {
	switch err {
	case service.ErrEntryNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case service.ErrNotOwner:
		c.JSON(http.StatusForbidden, gin.H{"error": "you can only modify your own entries"})
	default:
		h.internalError(c, op, err)
	}
}

func (h *Handler) listEntries(c *gin.Context) {
	mine, community, err := h.entries.ListEntries(c.Request.Context(), viewerID(c), c.Query("coffee"))
	if err != nil {
		h.internalError(c, "list entries", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mine":      entriesToResponse(mine),
		"community": entriesToResponse(community),
	})
}

func (h *Handler) listCoffees(c *gin.Context) {
	coffees, err := h.entries.Coffees(c.Request.Context())
	if err != nil {
		h.internalError(c, "list coffees", err)
		return
	}
	if coffees == nil {
		coffees = []string{}
	}
	c.JSON(http.StatusOK, coffees)
}

func (h *Handler) createBackup(c *gin.Context) {
	if h.backups == nil || h.bucket == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backup storage not configured"})
		return
	}

	location, err := h.backups.UploadFile(c.Request.Context(), h.dbPath, backup.UploadOptions{
		Bucket:    h.bucket,
		KeyPrefix: h.prefix,
	})
	if err != nil {
		h.internalError(c, "upload backup", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"location": location})
}

func (h *Handler) listBackups(c *gin.Context) {
	if h.backups == nil || h.bucket == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backup storage not configured"})
		return
	}

	objects, err := h.backups.ListObjects(c.Request.Context(), h.bucket, h.prefix)
	if err != nil {
		h.internalError(c, "list backups", err)
		return
	}

	resp := make([]BackupObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.logger.WithError(err).Errorf("%s failed", op)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func entryID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
		return 0, false
	}
	return id, true
}

// isDomainValidation reports whether err is one of the plain validation
// errors raised by the services, which map to 400 rather than 500.
func isDomainValidation(err error) bool {
	switch err.Error() {
	case "email is required",
		"invalid email format",
		"password is required",
		"password must be at least 6 characters",
		"coffee is required",
		"grinder setting is required":
		return true
	}
	return false
}

type UserResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type EntryResponse struct {
	ID              int64   `json:"id"`
	UserID          int64   `json:"user_id"`
	Coffee          string  `json:"coffee"`
	GrinderSetting  string  `json:"grinder_setting"`
	InputWeight     float64 `json:"input_weight"`
	OutputWeight    float64 `json:"output_weight"`
	TasteComment    string  `json:"taste_comment"`
	ExtractionRatio float64 `json:"extraction_ratio"`
	CreatedAt       string  `json:"created_at"`
}

type BackupObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func userToResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}

// entryToResponse attaches the derived extraction ratio; it is computed on
// every read and never stored.
func entryToResponse(entry domain.Entry) EntryResponse {
	return EntryResponse{
		ID:              entry.ID,
		UserID:          entry.UserID,
		Coffee:          entry.Coffee,
		GrinderSetting:  entry.GrinderSetting,
		InputWeight:     entry.InputWeight,
		OutputWeight:    entry.OutputWeight,
		TasteComment:    entry.TasteComment,
		ExtractionRatio: domain.ExtractionRatio(entry.InputWeight, entry.OutputWeight),
		CreatedAt:       entry.CreatedAt.Format(time.RFC3339),
	}
}

func entriesToResponse(entries []domain.Entry) []EntryResponse {
	resp := make([]EntryResponse, len(entries))
	for i := range entries {
		resp[i] = entryToResponse(entries[i])
	}
	return resp
}

func objectToResponse(obj backup.ObjectInfo) BackupObjectResponse {
	resp := BackupObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}
