package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/geocoder89/medledger/internal/authz"
	auditdomain "github.com/geocoder89/medledger/internal/domain/audit"
	"github.com/gin-gonic/gin"
)

type AuditReader interface {
	History(ctx context.Context, patientID int64, q auditdomain.HistoryQuery) ([]auditdomain.Entry, error)
	Verify(ctx context.Context, patientID int64) (auditdomain.VerifyResult, error)
}

// DenialRecorder counts refused requests. *observability.Prom satisfies it.
type DenialRecorder interface {
	ObserveDenial(action string)
}

type AuditHandler struct {
	log     AuditReader
	denials DenialRecorder
}

// denials may be nil.
func NewAuditHandler(log AuditReader, denials DenialRecorder) *AuditHandler {
	return &AuditHandler{log: log, denials: denials}
}

// History serves GET /audit/:patientId?offset=&limit=&order=asc|desc.
func (h *AuditHandler) History(ctx *gin.Context) {
	patientID, ok := ParseID(ctx, "patientId")
	if !ok {
		return
	}

	offset, ok := queryInt(ctx, "offset", 0)
	if !ok {
		return
	}

	limit, ok := queryInt(ctx, "limit", auditdomain.DefaultHistoryLimit)
	if !ok {
		return
	}

	var ascending bool

	switch strings.ToLower(ctx.DefaultQuery("order", "desc")) {
	case "asc":
		ascending = true
	case "desc":
	default:
		RespondBadRequest(ctx, "Invalid query parameter", gin.H{
			"fields": []FieldError{{Field: "order", Rule: "oneof", Param: "asc desc", Message: validationMessage("oneof", "asc desc")}},
		})
		return
	}

	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	if !h.allow(ctx, authz.Decide(authz.ActionViewAuditHistory, authz.CanViewAuditHistory(actor, patientID))) {
		return
	}

	q := auditdomain.HistoryQuery{Offset: offset, Limit: limit, Ascending: ascending}.Normalize()

	entries, err := h.log.History(cctx, patientID, q)

	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"patientId": patientID,
		"offset":    q.Offset,
		"limit":     q.Limit,
		"items":     entries,
		"count":     len(entries),
	})
}

func (h *AuditHandler) Verify(ctx *gin.Context) {
	patientID, ok := ParseID(ctx, "patientId")
	if !ok {
		return
	}

	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	if !h.allow(ctx, authz.Decide(authz.ActionVerifyLedger, authz.CanVerifyLedger(actor))) {
		return
	}

	res, err := h.log.Verify(cctx, patientID)

	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, res)
}

func (h *AuditHandler) allow(ctx *gin.Context, d authz.Decision) bool {
	if d.Allowed {
		return true
	}

	if h.denials != nil {
		h.denials.ObserveDenial(d.Action)
	}

	RespondForbidden(ctx, "forbidden", "You are not allowed to read this audit trail")
	return false
}
