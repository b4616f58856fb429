package handlers

import (
	"context"
	"net/http"

	"github.com/geocoder89/medledger/internal/authz"
	"github.com/geocoder89/medledger/internal/domain/record"
	"github.com/gin-gonic/gin"
)

type RecordService interface {
	Create(ctx context.Context, actor authz.Actor, req record.CreateRecordRequest) (record.Record, error)
	ViewAll(ctx context.Context, actor authz.Actor) ([]record.Record, error)
	Get(ctx context.Context, actor authz.Actor, id int64) (record.Record, error)
	ViewByPatient(ctx context.Context, actor authz.Actor, patientID int64) ([]record.Record, error)
	ViewByDoctor(ctx context.Context, actor authz.Actor, doctorID int64) ([]record.Record, error)
	Update(ctx context.Context, actor authz.Actor, id int64, req record.UpdateRecordRequest) (record.Record, error)
	Delete(ctx context.Context, actor authz.Actor, id int64) (string, error)
}

type RecordsHandler struct {
	svc RecordService
}

func NewRecordsHandler(svc RecordService) *RecordsHandler {
	return &RecordsHandler{svc: svc}
}

func (h *RecordsHandler) Create(ctx *gin.Context) {
	var req record.CreateRecordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	rec, err := h.svc.Create(cctx, actor, req)

	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, rec)
}

func (h *RecordsHandler) ViewAll(ctx *gin.Context) {
	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	h.respondList(ctx, func() ([]record.Record, error) { return h.svc.ViewAll(cctx, actor) })
}

func (h *RecordsHandler) Get(ctx *gin.Context) {
	id, ok := ParseID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	rec, err := h.svc.Get(cctx, actor, id)

	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, rec)
}

func (h *RecordsHandler) ViewByPatient(ctx *gin.Context) {
	patientID, ok := ParseID(ctx, "patientId")
	if !ok {
		return
	}

	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	h.respondList(ctx, func() ([]record.Record, error) { return h.svc.ViewByPatient(cctx, actor, patientID) })
}

func (h *RecordsHandler) ViewByDoctor(ctx *gin.Context) {
	doctorID, ok := ParseID(ctx, "doctorId")
	if !ok {
		return
	}

	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	h.respondList(ctx, func() ([]record.Record, error) { return h.svc.ViewByDoctor(cctx, actor, doctorID) })
}

func (h *RecordsHandler) Update(ctx *gin.Context) {
	id, ok := ParseID(ctx, "id")
	if !ok {
		return
	}

	var req record.UpdateRecordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	rec, err := h.svc.Update(cctx, actor, id, req)

	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, rec)
}

func (h *RecordsHandler) Delete(ctx *gin.Context) {
	id, ok := ParseID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel, actor, ok := requestScope(ctx)
	if !ok {
		return
	}
	defer cancel()

	msg, err := h.svc.Delete(cctx, actor, id)

	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *RecordsHandler) respondList(ctx *gin.Context, list func() ([]record.Record, error)) {
	out, err := list()

	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"items": out, "count": len(out)})
}
