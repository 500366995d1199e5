package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jaypawar90171/LMS-sub001/internal/models"
	"github.com/jaypawar90171/LMS-sub001/internal/services"
)

type Handler struct {
	catalog  *services.CatalogService
	ledger   *services.CopyLedger
	circ     *services.CirculationService
	waitlist *services.WaitlistService
	fines    *services.FineService
}

func RegisterRoutes(
	r *gin.Engine,
	catalog *services.CatalogService,
	ledger *services.CopyLedger,
	circ *services.CirculationService,
	waitlist *services.WaitlistService,
	fines *services.FineService,
) {
	h := &Handler{catalog: catalog, ledger: ledger, circ: circ, waitlist: waitlist, fines: fines}

	// Catalog administration
	r.POST("/items", h.createItem)
	r.GET("/items", h.listItems)
	r.GET("/items/:id", h.getItem)
	r.POST("/items/:id/copies", h.addCopy)
	r.GET("/items/:id/copies", h.listCopies)
	r.PATCH("/items/:id/copies/status", h.setBulkStatus)

	// Circulation
	r.POST("/items/:id/issue", h.issue)
	r.POST("/loans/:id/return", h.returnLoan)
	r.POST("/loans/:id/extend", h.extend)
	r.GET("/users/:id/loans", h.listUserLoans)

	// Renewals
	r.POST("/loans/:id/renewals", h.requestRenewal)
	r.GET("/renewals/pending", h.listPendingRenewals)
	r.POST("/renewals/:id/approve", h.approveRenewal)
	r.POST("/renewals/:id/reject", h.rejectRenewal)

	// Waitlist
	r.POST("/items/:id/queue", h.joinQueue)
	r.DELETE("/items/:id/queue/:userId", h.leaveQueue)
	r.GET("/items/:id/queue", h.listQueue)
	r.POST("/items/:id/allocate", h.allocate)

	// Fines
	r.POST("/fines", h.createManualFine)
	r.GET("/users/:id/fines", h.listUserFines)
	r.POST("/fines/:id/payments", h.recordPayment)
	r.POST("/fines/:id/waive", h.waiveFine)

	// Manual sweep triggers for operational testing
	r.POST("/sweeps/overdue/run", h.runOverdueSweep)
	r.POST("/sweeps/reminders/run", h.runReminderSweep)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// respondError maps the service error taxonomy onto HTTP status codes in one
// place, so no handler matches on message strings.
func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}

	switch services.Kind(err) {
	case services.KindNotFound:
		c.JSON(http.StatusNotFound, body)
	case services.KindConflict:
		body["code"] = string(services.Code(err))
		c.JSON(http.StatusConflict, body)
	case services.KindLimitExceeded:
		body["limit"] = services.Limit(err)
		c.JSON(http.StatusUnprocessableEntity, body)
	case services.KindValidation:
		c.JSON(http.StatusBadRequest, body)
	case services.KindState:
		c.JSON(http.StatusConflict, body)
	default:
		c.JSON(http.StatusInternalServerError, body)
	}
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}

// ─── Catalog ──────────────────────────────────────────────────────────────────

type createItemRequest struct {
	Title            string `json:"title" binding:"required"`
	Author           string `json:"author"`
	Quantity         int    `json:"quantity" binding:"min=0"`
	ReturnPeriodDays int    `json:"return_period_days" binding:"min=0"`
}

func (h *Handler) createItem(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := h.catalog.CreateItem(req.Title, req.Author, req.Quantity, req.ReturnPeriodDays)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) listItems(c *gin.Context) {
	items, err := h.catalog.ListItems()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) getItem(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	item, err := h.catalog.GetItem(itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) addCopy(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	copy, err := h.catalog.AddCopy(itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, copy)
}

func (h *Handler) listCopies(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	copies, err := h.catalog.ListCopies(itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, copies)
}

type bulkStatusRequest struct {
	From []models.CopyStatus `json:"from" binding:"required,min=1"`
	To   models.CopyStatus   `json:"to" binding:"required"`
}

func (h *Handler) setBulkStatus(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req bulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	changed, err := h.ledger.SetBulkStatus(itemID, req.From, req.To)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"copies_changed": changed})
}

// ─── Circulation ──────────────────────────────────────────────────────────────

type issueRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

func (h *Handler) issue(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, _ := uuid.Parse(req.UserID)

	loan, err := h.circ.Issue(itemID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

type returnRequest struct {
	Condition models.CopyCondition `json:"condition"`
}

func (h *Handler) returnLoan(c *gin.Context) {
	loanID, ok := parseID(c, "id")
	if !ok {
		return
	}
	req := returnRequest{Condition: models.CopyConditionGood}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := h.circ.Return(loanID, req.Condition)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type extendRequest struct {
	// Omitted: the configured extension period past the current due date.
	NewDueDate time.Time `json:"new_due_date"`
}

func (h *Handler) extend(c *gin.Context) {
	loanID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req extendRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	loan, err := h.circ.Extend(loanID, req.NewDueDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *Handler) listUserLoans(c *gin.Context) {
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}
	loans, err := h.circ.ListUserLoans(userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

// ─── Renewals ─────────────────────────────────────────────────────────────────

type renewalRequestBody struct {
	UserID     string    `json:"user_id" binding:"required,uuid"`
	NewDueDate time.Time `json:"new_due_date" binding:"required"`
}

func (h *Handler) requestRenewal(c *gin.Context) {
	loanID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req renewalRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, _ := uuid.Parse(req.UserID)

	renewal, err := h.circ.RequestRenewal(loanID, userID, req.NewDueDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, renewal)
}

func (h *Handler) listPendingRenewals(c *gin.Context) {
	renewals, err := h.circ.ListPendingRenewals()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, renewals)
}

func (h *Handler) approveRenewal(c *gin.Context) {
	requestID, ok := parseID(c, "id")
	if !ok {
		return
	}
	renewal, err := h.circ.ApproveRenewal(requestID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, renewal)
}

func (h *Handler) rejectRenewal(c *gin.Context) {
	requestID, ok := parseID(c, "id")
	if !ok {
		return
	}
	renewal, err := h.circ.RejectRenewal(requestID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, renewal)
}

// ─── Waitlist ─────────────────────────────────────────────────────────────────

type joinQueueRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

func (h *Handler) joinQueue(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req joinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, _ := uuid.Parse(req.UserID)

	entry, err := h.waitlist.Join(itemID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) leaveQueue(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}
	if err := h.waitlist.Leave(itemID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listQueue(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	entries, err := h.waitlist.ListQueue(itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

type allocateRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

func (h *Handler) allocate(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, _ := uuid.Parse(req.UserID)

	loan, err := h.waitlist.Allocate(itemID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

// ─── Fines ────────────────────────────────────────────────────────────────────

type manualFineRequest struct {
	UserID string  `json:"user_id" binding:"required,uuid"`
	ItemID string  `json:"item_id" binding:"required,uuid"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
	Note   string  `json:"note"`
}

func (h *Handler) createManualFine(c *gin.Context) {
	var req manualFineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, _ := uuid.Parse(req.UserID)
	itemID, _ := uuid.Parse(req.ItemID)

	fine, err := h.fines.CreateManualFine(userID, itemID, req.Amount, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fine)
}

func (h *Handler) listUserFines(c *gin.Context) {
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}
	fines, err := h.fines.ListUserFines(userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fines)
}

type paymentRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
	Method string  `json:"method" binding:"required"`
}

func (h *Handler) recordPayment(c *gin.Context) {
	fineID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fine, err := h.fines.RecordPayment(fineID, req.Amount, req.Method)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fine)
}

type waiveRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) waiveFine(c *gin.Context) {
	fineID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req waiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fine, err := h.fines.Waive(fineID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fine)
}

// ─── Sweeps ───────────────────────────────────────────────────────────────────

func (h *Handler) runOverdueSweep(c *gin.Context) {
	report, err := h.fines.RunOverdueSweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) runReminderSweep(c *gin.Context) {
	report, err := h.fines.RunReminderSweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
