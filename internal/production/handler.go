package production

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockbook-app/stockbook/internal/platform/httpx"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// StartRequest is the payload for opening a run.
type StartRequest struct {
	ProductID   int64    `json:"product_id" validate:"required,gt=0"`
	HasSymbol   bool     `json:"has_symbol"`
	Piece       float64  `json:"piece" validate:"gte=0"`
	Weight      float64  `json:"weight" validate:"gte=0"`
	BarcodeText string   `json:"barcode_text"`
	Steps       []string `json:"steps"`
}

// Handler wires HTTP endpoints for production runs.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleStart)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/steps/{index}/complete", h.handleCompleteStep)
	r.Post("/{id}/finish", h.handleFinish)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	run, err := h.service.Start(r.Context(), StartInput{
		ProductID:   req.ProductID,
		HasSymbol:   req.HasSymbol,
		Piece:       req.Piece,
		Weight:      req.Weight,
		BarcodeText: req.BarcodeText,
		Steps:       req.Steps,
	})
	if err != nil {
		h.logger.Error("start run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, run)
}

func (h *Handler) handleCompleteStep(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "index must be a non-negative integer")
		return
	}
	run, err := h.service.CompleteStep(r.Context(), id, index)
	if err != nil {
		h.logger.Error("complete step", slog.Int64("id", id), slog.Int("index", index), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	run, err := h.service.Finish(r.Context(), id)
	if err != nil {
		h.logger.Error("finish run", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	run, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: RunStatus(q.Get("status"))}
	if s := q.Get("limit"); s != "" {
		filter.Limit, _ = strconv.Atoi(s)
	}
	if s := q.Get("offset"); s != "" {
		filter.Offset, _ = strconv.Atoi(s)
	}
	runs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list runs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if runs == nil {
		runs = []Run{}
	}
	httpx.JSON(w, http.StatusOK, runs)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
