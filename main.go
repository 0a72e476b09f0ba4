package main

import (
	"net/http"

	"github.com/madflojo/tasks"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/giftshift/giftshift-go/db"
	"github.com/giftshift/giftshift-go/exchange"
	"github.com/giftshift/giftshift-go/handlers"
	"github.com/giftshift/giftshift-go/services"
	"github.com/giftshift/giftshift-go/ws"
)

func main() {
	fx.New(
		fx.Provide(
			NewHttpServer,
			fx.Annotate(
				NewServeMux,
				fx.ParamTags(`group:"handlers"`),
			),
			fx.Annotate(
				handlers.NewSwapHandler,
				fx.As(new(handlers.Handler)),
				fx.ResultTags(`group:"handlers"`),
			),
			fx.Annotate(
				handlers.NewSocketHandler,
				fx.As(new(handlers.Handler)),
				fx.ResultTags(`group:"handlers"`),
			),
			handlers.NewMiddlewareHandler,
			services.NewSwapService,
			services.NewSchedulerService,
			services.NewShiftStore,
			services.NewCacheService,
			services.NewTokenService,
			services.NewWebhookService,
			exchange.NewClient,
			ws.NewHub,
			db.GetDataDBConnection,
			db.GetCacheDBConnection,
			tasks.New,
			zap.NewProduction,
			func(t services.TokenService) ws.TokenVerifier { return t },
			func(h *ws.Hub) services.Broker { return h },
			func(c services.CacheService) exchange.Cache { return c },
		),
		fx.Invoke(func(*http.Server) {}),
	).Run()
}
