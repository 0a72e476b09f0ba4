package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/giftshift/giftshift-go/errors"
	"github.com/giftshift/giftshift-go/services"
	"github.com/giftshift/giftshift-go/types/requests"
	"github.com/giftshift/giftshift-go/utils"
)

type SwapHandler interface {
	RequestQuote(w http.ResponseWriter, r *http.Request)
	CreateShift(w http.ResponseWriter, r *http.Request)
	FetchShift(w http.ResponseWriter, r *http.Request)
	RefreshShift(w http.ResponseWriter, r *http.Request)
	ListAssets(w http.ResponseWriter, r *http.Request)
	GetShiftHistory(w http.ResponseWriter, r *http.Request)

	ServeHttp(*http.ServeMux)
}

func NewSwapHandler(swapService services.SwapService, middlewares MiddleWareHandler, log *zap.Logger) SwapHandler {
	return &swapHandler{
		handler: handler{swapService: swapService, middlewares: middlewares, log: log},
	}
}

type swapHandler struct {
	handler
}

func (s *swapHandler) ServeHttp(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/quotes", s.middlewares.AttachOptionalIdentity(s.RequestQuote))
	mux.HandleFunc("POST /api/v1/shifts", s.middlewares.AttachOptionalIdentity(s.CreateShift))
	mux.HandleFunc("GET /api/v1/shifts/{shift_id}", s.FetchShift)
	mux.HandleFunc("POST /api/v1/shifts/{shift_id}/refresh", s.RefreshShift)
	mux.HandleFunc("GET /api/v1/assets", s.ListAssets)
	mux.HandleFunc("GET /api/v1/users/{user_id}/shifts", s.middlewares.ValidateAccessToken(s.GetShiftHistory))
}

func (s *swapHandler) RequestQuote(w http.ResponseWriter, r *http.Request) {
	req := utils.Bind[requests.RequestQuoteRequest](r)
	req.CallerIP = CallerIP(r)

	res, err := s.swapService.RequestQuote(r.Context(), req)
	if err != nil {
		errors.AsAppError(err).Serialize(w)
		return
	}

	utils.JSON(w, 200, res)
}

func (s *swapHandler) CreateShift(w http.ResponseWriter, r *http.Request) {
	req := utils.Bind[requests.CreateShiftRequest](r)
	req.UserID = AccountIDFromContext(r.Context())
	req.CallerIP = CallerIP(r)

	res, err := s.swapService.CreateShift(r.Context(), req)
	if err != nil {
		errors.AsAppError(err).Serialize(w)
		return
	}

	utils.JSON(w, 201, res)
}

func (s *swapHandler) FetchShift(w http.ResponseWriter, r *http.Request) {
	req := utils.Bind[requests.FetchShiftRequest](r)

	res, err := s.swapService.FetchShift(r.Context(), req)
	if err != nil {
		errors.AsAppError(err).Serialize(w)
		return
	}

	utils.JSON(w, 200, res)
}

func (s *swapHandler) RefreshShift(w http.ResponseWriter, r *http.Request) {
	req := utils.Bind[requests.RefreshShiftRequest](r)

	res, err := s.swapService.RefreshShift(r.Context(), req.ShiftID)
	if err != nil {
		errors.AsAppError(err).Serialize(w)
		return
	}

	utils.JSON(w, 200, res)
}

func (s *swapHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	res, err := s.swapService.ListAssets(r.Context())
	if err != nil {
		errors.AsAppError(err).Serialize(w)
		return
	}

	utils.JSON(w, 200, res)
}

func (s *swapHandler) GetShiftHistory(w http.ResponseWriter, r *http.Request) {
	req := utils.Bind[requests.GetShiftHistoryRequest](r)

	accountID := AccountIDFromContext(r.Context())
	if accountID == nil || *accountID != req.UserID {
		errors.NewAuthorizationError("cannot view another user's shifts").Serialize(w)
		return
	}

	res, err := s.swapService.GetShiftHistory(r.Context(), req)
	if err != nil {
		errors.AsAppError(err).Serialize(w)
		return
	}

	utils.JSON(w, 200, res)
}
