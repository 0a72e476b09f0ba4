package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MadAppGang/httplog"
	lzap "github.com/MadAppGang/httplog/zap"
	ghandlers "github.com/gorilla/handlers"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/giftshift/giftshift-go/config"
	"github.com/giftshift/giftshift-go/errors"
	"github.com/giftshift/giftshift-go/handlers"
)

func NewHttpServer(lc fx.Lifecycle, mux *http.ServeMux, log *zap.Logger) *http.Server {
	root := ghandlers.RecoveryHandler(ghandlers.PrintRecoveryStack(true))(
		ghandlers.CORS(
			ghandlers.AllowedOrigins([]string{"*"}),
			ghandlers.AllowedHeaders([]string{"authorization", "content-type"}),
			ghandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		)(
			httplog.LoggerWithFormatter(
				lzap.DefaultZapLogger(log, zapcore.InfoLevel, "request"),
			)(serializeAppErrorPanics(mux)),
		),
	)

	srv := &http.Server{
		Addr:         config.LISTEN_ADDR,
		Handler:      root,
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			fmt.Println("Starting HTTP server at", srv.Addr)
			go srv.Serve(ln)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})

	return srv
}

// serializeAppErrorPanics turns request-binding panics into their intended
// error responses. Anything else re-panics into the outer recovery handler.
func serializeAppErrorPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if apperr, ok := rec.(errors.AppError); ok {
					apperr.Serialize(w)
					return
				}
				panic(rec)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func NewServeMux(routers []handlers.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	for _, router := range routers {
		router.ServeHttp(mux)
	}
	return mux
}
