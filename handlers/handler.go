package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/giftshift/giftshift-go/services"
)

type handler struct {
	swapService  services.SwapService
	tokenService services.TokenService
	middlewares  MiddleWareHandler

	log *zap.Logger
}

type Handler interface {
	ServeHttp(*http.ServeMux)
}
