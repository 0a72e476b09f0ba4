package services

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/giftshift/giftshift-go/exchange"
)

type service struct {
	dataDB         *sql.DB
	exchange       exchange.Client
	shiftStore     ShiftStore
	cacheService   CacheService
	tokenService   TokenService
	webhookService WebhookService
	broker         Broker
	log            *zap.Logger
}

// Broker is the realtime fan-out surface the orchestrator publishes status
// changes to. The websocket hub implements it.
type Broker interface {
	Broadcast(channel string, payload any)
	SendToIdentity(identity string, payload any)
}
