// Package handler is the HTTP boundary. Responses use the
// {"success": bool, "data"/"message"} envelope throughout.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"meetsign/internal/apperr"
	"meetsign/internal/attendance"
	"meetsign/internal/directory"
	"meetsign/internal/events"
	"meetsign/internal/exam"
	"meetsign/internal/meeting"
	"meetsign/internal/metrics"
	"meetsign/internal/token"
)

// Handler routes requests to the owning component.
type Handler struct {
	log       *zap.Logger
	directory *directory.Repository
	meetings  *meeting.Service
	ledger    *attendance.Ledger
	recorder  *events.Recorder
	tokens    *token.Manager
	exams     *exam.Repository
}

// New creates a handler over the given components.
func New(log *zap.Logger, dir *directory.Repository, meetings *meeting.Service,
	ledger *attendance.Ledger, recorder *events.Recorder, tokens *token.Manager,
	exams *exam.Repository) *Handler {
	return &Handler{
		log:       log,
		directory: dir,
		meetings:  meetings,
		ledger:    ledger,
		recorder:  recorder,
		tokens:    tokens,
		exams:     exams,
	}
}

// RegisterRoutes attaches every API route to r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")

	employees := api.Group("/employees")
	{
		employees.GET("", h.ListEmployees)
		employees.POST("", h.CreateEmployee)
		employees.POST("/import", h.ImportEmployees)
		employees.PUT("/:id", h.UpdateEmployee)
		employees.DELETE("/:id", h.DeleteEmployee)
	}

	att := api.Group("/attendance")
	{
		att.POST("/meetings", h.CreateMeeting)
		att.GET("/meetings", h.ListMeetings)
		att.GET("/meetings/:id", h.MeetingDetail)
		att.DELETE("/meetings/:id", h.DeleteMeeting)
		att.GET("/meetings/:id/qrcode", h.MeetingToken)
		att.GET("/meetings/:id/unsigned", h.Unsigned)
		att.GET("/meetings/:id/signed", h.Signed)
		att.POST("/sign-in", h.SignIn)
		att.POST("/random-call", h.RandomCall)
		att.POST("/question-record", h.RecordQuestion)
		att.GET("/question-records/:meeting_id", h.QuestionRecords)
		att.GET("/employee/:employee_id/question-records", h.PersonQuestionHistory)
	}

	exams := api.Group("/exams")
	{
		exams.POST("", h.CreateExam)
		exams.GET("", h.ListExams)
		exams.GET("/:id", h.ExamDetail)
		exams.POST("/:id/scores", h.UpsertScore)
		exams.POST("/:id/scores/import", h.ImportScores)
		exams.DELETE("/:id", h.DeleteExam)
	}
}

// Healthz reports liveness.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// fail maps the error classification to a status code; unclassified errors
// count as storage failures and are logged, never swallowed.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindInvalid:
		status = http.StatusBadRequest
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"success": false, "message": err.Error()})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid " + name})
		return 0, false
	}
	return id, true
}

// ---------- Employees ----------

func (h *Handler) ListEmployees(c *gin.Context) {
	employees, err := h.directory.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if employees == nil {
		employees = []directory.Employee{}
	}
	ok(c, employees)
}

func (h *Handler) CreateEmployee(c *gin.Context) {
	var e directory.Employee
	if err := c.ShouldBindJSON(&e); err != nil {
		h.fail(c, apperr.Invalid("invalid request body: %v", err))
		return
	}
	if err := h.directory.Create(c.Request.Context(), &e); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"id": e.ID, "employee_id": e.EmployeeID})
}

func (h *Handler) ImportEmployees(c *gin.Context) {
	var req struct {
		Employees []directory.Employee `json:"employees" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Employees) == 0 {
		h.fail(c, apperr.Invalid("employees must be a non-empty list"))
		return
	}
	ok(c, h.directory.Import(c.Request.Context(), req.Employees))
}

func (h *Handler) UpdateEmployee(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var e directory.Employee
	if err := c.ShouldBindJSON(&e); err != nil {
		h.fail(c, apperr.Invalid("invalid request body: %v", err))
		return
	}
	if err := h.directory.Update(c.Request.Context(), id, &e); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"id": id})
}

func (h *Handler) DeleteEmployee(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.directory.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"id": id})
}

// ---------- Meetings ----------

func (h *Handler) CreateMeeting(c *gin.Context) {
	var m meeting.Meeting
	if err := c.ShouldBindJSON(&m); err != nil {
		h.fail(c, apperr.Invalid("invalid request body: %v", err))
		return
	}
	tok, err := h.meetings.Create(c.Request.Context(), &m)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"id": m.ID, "payload": tok.Payload, "image": tok.Image})
}

func (h *Handler) ListMeetings(c *gin.Context) {
	meetings, err := h.meetings.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if meetings == nil {
		meetings = []meeting.Meeting{}
	}
	ok(c, meetings)
}

func (h *Handler) MeetingDetail(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	detail, err := h.meetings.Detail(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if detail.Attendance == nil {
		detail.Attendance = []attendance.Record{}
	}
	ok(c, detail)
}

func (h *Handler) DeleteMeeting(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.meetings.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"id": id, "deleted": true})
}

func (h *Handler) MeetingToken(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	tok, err := h.tokens.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, tok)
}

// ---------- Attendance ----------

func (h *Handler) SignIn(c *gin.Context) {
	var req struct {
		MeetingID   int64    `json:"meeting_id" binding:"required"`
		EmployeeIDs []string `json:"employee_ids" binding:"required"`
		Status      string   `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Invalid("invalid request body: %v", err))
		return
	}
	results, err := h.ledger.SignIn(c.Request.Context(), req.MeetingID, req.EmployeeIDs, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	for _, r := range results {
		if r.OK {
			metrics.SignIns.WithLabelValues("ok").Inc()
		} else {
			metrics.SignIns.WithLabelValues("failed").Inc()
		}
	}
	ok(c, results)
}

func (h *Handler) Unsigned(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	employees, err := h.ledger.Unsigned(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if employees == nil {
		employees = []directory.Employee{}
	}
	ok(c, employees)
}

func (h *Handler) Signed(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	employees, err := h.ledger.Signed(c.Request.Context(), id, c.Query("tags"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if employees == nil {
		employees = []directory.Employee{}
	}
	ok(c, employees)
}

// ---------- Events ----------

func (h *Handler) RandomCall(c *gin.Context) {
	var req struct {
		MeetingID  int64  `json:"meeting_id" binding:"required"`
		EmployeeID string `json:"employee_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Invalid("invalid request body: %v", err))
		return
	}
	id, err := h.recorder.RecordRandomCall(c.Request.Context(), req.MeetingID, req.EmployeeID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"id": id})
}

func (h *Handler) RecordQuestion(c *gin.Context) {
	var req struct {
		MeetingID    int64  `json:"meeting_id" binding:"required"`
		EmployeeID   string `json:"employee_id" binding:"required"`
		QuestionText string `json:"question_text"`
		Result       string `json:"result" binding:"required"`
		Notes        string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Invalid("invalid request body: %v", err))
		return
	}
	id, err := h.recorder.RecordQuestion(c.Request.Context(), req.MeetingID, req.EmployeeID,
		req.QuestionText, req.Result, req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"id": id})
}

func (h *Handler) QuestionRecords(c *gin.Context) {
	id, valid := pathID(c, "meeting_id")
	if !valid {
		return
	}
	records, stats, err := h.recorder.QuestionRecords(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if records == nil {
		records = []events.Question{}
	}
	ok(c, gin.H{"records": records, "stats": stats})
}

func (h *Handler) PersonQuestionHistory(c *gin.Context) {
	records, err := h.recorder.PersonHistory(c.Request.Context(), c.Param("employee_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if records == nil {
		records = []events.Question{}
	}
	ok(c, records)
}

// ---------- Exams ----------

func (h *Handler) CreateExam(c *gin.Context) {
	var e exam.Exam
	if err := c.ShouldBindJSON(&e); err != nil {
		h.fail(c, apperr.Invalid("invalid request body: %v", err))
		return
	}
	if err := h.exams.Create(c.Request.Context(), &e); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"id": e.ID})
}

func (h *Handler) ListExams(c *gin.Context) {
	exams, err := h.exams.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if exams == nil {
		exams = []exam.Exam{}
	}
	ok(c, exams)
}

func (h *Handler) ExamDetail(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	e, scores, stats, err := h.exams.Detail(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if scores == nil {
		scores = []exam.Score{}
	}
	ok(c, gin.H{"exam": e, "scores": scores, "stats": stats})
}

func (h *Handler) UpsertScore(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var item exam.ScoreItem
	if err := c.ShouldBindJSON(&item); err != nil || item.EmployeeID == "" {
		h.fail(c, apperr.Invalid("employee_id and score are required"))
		return
	}
	if err := h.exams.UpsertScore(c.Request.Context(), id, item); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"exam_id": id, "employee_id": item.EmployeeID})
}

func (h *Handler) ImportScores(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req struct {
		Scores []exam.ScoreItem `json:"scores" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Scores) == 0 {
		h.fail(c, apperr.Invalid("scores must be a non-empty list"))
		return
	}
	results, err := h.exams.ImportScores(c.Request.Context(), id, req.Scores)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, results)
}

func (h *Handler) DeleteExam(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.exams.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"id": id, "deleted": true})
}
