package handler

import (
	appinvoicing "github.com/billcraft/backend/internal/application/invoicing"
	"github.com/billcraft/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// InvoiceHandler handles invoice lifecycle API endpoints
type InvoiceHandler struct {
	BaseHandler
	invoiceService  *appinvoicing.InvoiceService
	reminderService *appinvoicing.ReminderService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *appinvoicing.InvoiceService, reminderService *appinvoicing.ReminderService) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService:  invoiceService,
		reminderService: reminderService,
	}
}

// RegisterRoutes registers invoice routes on the given group
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	{
		invoices.POST("", h.Create)
		invoices.GET("", h.List)
		invoices.GET("/:id", h.Get)
		invoices.PUT("/:id", h.Update)
		invoices.PATCH("/:id/notes", h.UpdateNotes)
		invoices.POST("/:id/finalize", h.Finalize)
		invoices.POST("/:id/send", h.Send)
		invoices.POST("/:id/payments", h.RecordPayment)
		invoices.POST("/:id/cancel", h.Cancel)
		invoices.POST("/:id/duplicate", h.Duplicate)
		invoices.POST("/:id/reminders/stop", h.StopReminders)
		invoices.POST("/:id/reminders/resume", h.ResumeReminders)
	}
}

// Create creates a new draft invoice
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	inv, err := h.invoiceService.CreateDraft(c.Request.Context(), commandContext(c), req.toApplication())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, NewInvoiceResponse(inv))
}

// Get returns one invoice with its derived capabilities
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	detail, err := h.invoiceService.GetByID(c.Request.Context(), commandContext(c).TenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, InvoiceDetailResponse{
		Invoice:      NewInvoiceResponse(detail.Invoice),
		Capabilities: detail.Capabilities,
	})
}

// List returns a page of invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	req := ListInvoicesRequest{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	page, err := h.invoiceService.List(c.Request.Context(), commandContext(c).TenantID, req.toFilter())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, NewInvoiceResponseList(page.Items), page.Total, page.Page, page.PageSize)
}

// Update applies a draft update
func (h *InvoiceHandler) Update(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	inv, err := h.invoiceService.UpdateDraft(c.Request.Context(), commandContext(c), id, req.toDomain())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, NewInvoiceResponse(inv))
}

// UpdateNotes updates the notes and terms, which stay mutable after finalize
func (h *InvoiceHandler) UpdateNotes(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req UpdateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	inv, err := h.invoiceService.UpdateNotes(c.Request.Context(), commandContext(c), id, req.Notes, req.Terms)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, NewInvoiceResponse(inv))
}

// Finalize turns a draft into an issued, numbered invoice
func (h *InvoiceHandler) Finalize(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	result, err := h.invoiceService.Finalize(c.Request.Context(), commandContext(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Send queues the invoice email and marks the invoice sent
func (h *InvoiceHandler) Send(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	result, err := h.invoiceService.Send(c.Request.Context(), commandContext(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// RecordPayment records one payment against the invoice
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.invoiceService.RecordPayment(c.Request.Context(), commandContext(c), id, appinvoicing.RecordPaymentRequest{
		AmountCents: req.AmountCents,
		PaidAt:      req.PaidAt,
		Note:        req.Note,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Cancel cancels the invoice
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req CancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	inv, err := h.invoiceService.Cancel(c.Request.Context(), commandContext(c), id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, NewInvoiceResponse(inv))
}

// Duplicate creates a fresh draft from an existing invoice
func (h *InvoiceHandler) Duplicate(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	inv, err := h.invoiceService.Duplicate(c.Request.Context(), commandContext(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, NewInvoiceResponse(inv))
}

// StopReminders stops the payment reminder escalation for the invoice
func (h *InvoiceHandler) StopReminders(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.reminderService.StopReminders(c.Request.Context(), commandContext(c).TenantID, id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// ResumeReminders resumes a stopped reminder escalation
func (h *InvoiceHandler) ResumeReminders(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.reminderService.ResumeReminders(c.Request.Context(), commandContext(c).TenantID, id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}
