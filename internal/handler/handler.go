package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lessonhub/internal/auth"
	"lessonhub/internal/org"
	"lessonhub/internal/scheduling"
)

// Handler wires the booking engine to the HTTP surface.
type Handler struct {
	svc     *scheduling.Service
	orgRepo *org.Repository
	logger  *zap.Logger

	jwtIssuer  string
	jwtKey     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// New creates the handler set.
func New(svc *scheduling.Service, orgRepo *org.Repository, logger *zap.Logger, jwtIssuer, jwtKey string, accessTTL, refreshTTL time.Duration) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc:        svc,
		orgRepo:    orgRepo,
		logger:     logger,
		jwtIssuer:  jwtIssuer,
		jwtKey:     jwtKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Register attaches all routes. Mutations are POST-only; gin's
// HandleMethodNotAllowed (set in main) turns other methods into 405s.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/v1/auth/token", h.issueToken)

	member := r.Group("/v1", auth.MemberAuth(h.jwtKey, h.jwtIssuer))
	member.GET("/durations", h.listDurations)
	member.GET("/availability", h.availability)
	member.GET("/schedules", h.listSchedules)
	member.POST("/schedules", h.createSchedule)
	member.POST("/schedules/:id/delete", h.deleteSchedule)
	member.GET("/schedules/:id/remaining", h.seriesRemaining)

	admin := member.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/schedules", h.createSchedule)
	admin.POST("/schedules/recurring", h.createRecurring)
	admin.POST("/schedules/:id/delete", h.deleteSchedule)
	admin.POST("/schedules/:id/move", h.moveSchedule)
	admin.GET("/settings", h.getSettings)
	admin.POST("/settings", h.updateSetting)
}

// issueToken exchanges a member id for a signed token pair. In production
// this sits behind the identity provider; it is the development seam.
func (h *Handler) issueToken(c *gin.Context) {
	var req struct {
		MemberID string `json:"member_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	memberID, err := uuid.Parse(req.MemberID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid member id"})
		return
	}

	m, err := h.orgRepo.GetMember(c.Request.Context(), memberID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	if m == nil || m.Status == org.StatusDeleted {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "member not found"})
		return
	}

	tokens, err := auth.Issue(m.ID.String(), m.OrgID.String(), m.Role, h.jwtIssuer, h.jwtKey, h.accessTTL, h.refreshTTL)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (h *Handler) listDurations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"options": scheduling.DurationOptions()})
}

type slotRequest struct {
	Date          string  `json:"date" binding:"required"`
	StartTime     string  `json:"start_time" binding:"required"`
	DurationHours int     `json:"duration_hours"`
	ProgramID     *string `json:"program_id"`
	StudentID     *string `json:"student_id"`
}

func (h *Handler) createSchedule(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req slotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	in := scheduling.CreateInput{
		ActorID:       actorID,
		Date:          req.Date,
		StartTime:     req.StartTime,
		DurationHours: req.DurationHours,
	}
	if req.ProgramID != nil {
		id, err := uuid.Parse(*req.ProgramID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid program id"})
			return
		}
		in.ProgramID = &id
	}
	if req.StudentID != nil {
		id, err := uuid.Parse(*req.StudentID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid student id"})
			return
		}
		in.StudentID = id
	}

	sched, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	schedulesCreated.Inc()
	c.JSON(http.StatusCreated, gin.H{"success": true, "schedule": sched})
}

func (h *Handler) createRecurring(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req struct {
		StudentID     string  `json:"student_id" binding:"required"`
		StartDate     string  `json:"start_date" binding:"required"`
		StartTime     string  `json:"start_time" binding:"required"`
		UntilDate     string  `json:"until_date" binding:"required"`
		DurationHours int     `json:"duration_hours"`
		ProgramID     *string `json:"program_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid student id"})
		return
	}

	in := scheduling.RecurringInput{
		ActorID:       actorID,
		StudentID:     studentID,
		StartDate:     req.StartDate,
		StartTime:     req.StartTime,
		UntilDate:     req.UntilDate,
		DurationHours: req.DurationHours,
	}
	if req.ProgramID != nil {
		id, err := uuid.Parse(*req.ProgramID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid program id"})
			return
		}
		in.ProgramID = &id
	}

	series, err := h.svc.CreateRecurring(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	schedulesCreated.Add(float64(len(series)))
	c.JSON(http.StatusCreated, gin.H{"success": true, "schedules": series})
}

func (h *Handler) deleteSchedule(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	scheduleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid schedule id"})
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), scheduleID, actorID); err != nil {
		h.respondError(c, err)
		return
	}
	schedulesCancelled.Inc()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) moveSchedule(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	scheduleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid schedule id"})
		return
	}
	var req struct {
		Date          string `json:"date" binding:"required"`
		StartTime     string `json:"start_time" binding:"required"`
		DurationHours int    `json:"duration_hours"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	sched, err := h.svc.Move(c.Request.Context(), scheduling.MoveInput{
		ActorID:       actorID,
		ScheduleID:    scheduleID,
		Date:          req.Date,
		StartTime:     req.StartTime,
		DurationHours: req.DurationHours,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "schedule": sched})
}

func (h *Handler) availability(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	date := c.Query("date")
	startTime := c.Query("start_time")
	if date == "" || startTime == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "date and start_time are required"})
		return
	}
	hours := 0
	if v := c.Query("duration_hours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			hours = parsed
		}
	}

	avail, err := h.svc.Preview(c.Request.Context(), actorID, date, startTime, hours)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, avail)
}

func (h *Handler) listSchedules(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	now := time.Now()
	from, to := now, now.AddDate(0, 1, 0)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "from must be RFC3339"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "to must be RFC3339"})
			return
		}
		to = t
	}

	schedules, err := h.svc.List(c.Request.Context(), actorID, from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}

func (h *Handler) seriesRemaining(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	scheduleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid schedule id"})
		return
	}
	remaining, err := h.svc.SeriesRemaining(c.Request.Context(), scheduleID, actorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remaining": remaining})
}

func (h *Handler) getSettings(c *gin.Context) {
	claims := auth.FromContext(c)
	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid org claim"})
		return
	}
	if err := h.orgRepo.EnsureDefaults(c.Request.Context(), orgID); err != nil {
		h.internalError(c, err)
		return
	}
	settings, err := h.orgRepo.GetSettings(c.Request.Context(), orgID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) updateSetting(c *gin.Context) {
	claims := auth.FromContext(c)
	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid org claim"})
		return
	}
	var req struct {
		Name  string          `json:"name" binding:"required"`
		Value json.RawMessage `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := h.orgRepo.UpdateSetting(c.Request.Context(), orgID, req.Name, req.Value); err != nil {
		if errors.Is(err, org.ErrInvalidSetting) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) actor(c *gin.Context) (uuid.UUID, bool) {
	claims := auth.FromContext(c)
	id, err := uuid.Parse(claims.MemberID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid subject claim"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps the booking error taxonomy onto HTTP statuses. The
// capacity and conflict rejections carry enough detail to render a
// precise message client-side.
func (h *Handler) respondError(c *gin.Context, err error) {
	var policyErr *scheduling.PolicyViolationError
	var capErr *scheduling.CapacityExceededError
	var conflictErr *scheduling.StudentConflictError

	switch {
	case errors.As(err, &policyErr):
		bookingsRejected.WithLabelValues("policy").Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": policyErr.Reason})
	case errors.As(err, &capErr):
		bookingsRejected.WithLabelValues("capacity").Inc()
		c.JSON(http.StatusConflict, gin.H{
			"success":       false,
			"error":         capErr.Error(),
			"current_count": capErr.CurrentCount,
			"max_count":     capErr.MaxCount,
		})
	case errors.As(err, &conflictErr):
		bookingsRejected.WithLabelValues("conflict").Inc()
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": conflictErr.Error()})
	case errors.Is(err, scheduling.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "forbidden"})
	case errors.Is(err, scheduling.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
	default:
		h.internalError(c, err)
	}
}

func (h *Handler) internalError(c *gin.Context, err error) {
	h.logger.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
}
