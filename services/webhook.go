package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/giftshift/giftshift-go/config"
	"github.com/giftshift/giftshift-go/models"
)

// WebhookService notifies the downstream campaign collaborator of lifecycle
// events. Delivery is best-effort: failures are logged, never surfaced to the
// swap path.
type WebhookService interface {
	SendShiftCreatedEvent(shift *models.Shift) (self WebhookService)
	SendShiftTerminalEvent(shift *models.Shift) (self WebhookService)
}

type webhookService struct {
	callbackURL string
	key         string
	client      *http.Client
	retryDelay  time.Duration
	log         *zap.Logger
}

func NewWebhookService(log *zap.Logger) WebhookService {
	return &webhookService{
		callbackURL: config.WEBHOOK_CALLBACK_URL,
		key:         config.WEBHOOK_KEY,
		client:      &http.Client{Timeout: 10 * time.Second},
		retryDelay:  30 * time.Second,
		log:         log,
	}
}

func (w *webhookService) doRequest(url string, body *bytes.Buffer, key string) (error, bool) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return err, false
	}

	if key != "" {
		now := time.Now().Unix()
		data := strings.ReplaceAll(body.String(), "/", "\\/")
		payload := fmt.Sprintf("%d.%s", now, data)
		mac := hmac.New(sha256.New, []byte(key))
		if _, err := mac.Write([]byte(payload)); err != nil {
			return err, false
		}
		signature := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("giftshift-signature", fmt.Sprintf("ts=%d,sig=%s", now, signature))
	}

	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")

	res, err := w.client.Do(req)
	if res != nil {
		resData, _ := io.ReadAll(res.Body)
		res.Body.Close()
		w.log.Info("response from callback", zap.String("Response Data", string(resData)))
	}
	return err, (res != nil && res.StatusCode < 300)
}

func (w *webhookService) sendEvent(eventType models.WebhookEvent, eventData any) (self WebhookService) {
	if w.callbackURL == "" {
		return w
	}
	w.log.Info("dispatching event...", zap.String("Event Type", eventType.String()))

	event := &models.Webhook{
		ID:    uuid.NewString(),
		Event: eventType,
		Data:  eventData,
	}

	data, err := json.Marshal(event)
	if err != nil {
		w.log.Error("encoding request body", zap.Error(err))
		return w
	}

	err, ok := w.doRequest(w.callbackURL, bytes.NewBuffer(data), w.key)
	if err == nil && ok {
		return w
	}
	if err != nil {
		w.log.Error("dispatching request", zap.Error(err))
	} else {
		w.log.Warn("callback rejected event", zap.String("Event Type", eventType.String()))
	}

	// one delayed redelivery, then give up; consumers reconcile via the
	// shift status endpoints
	go func() {
		time.Sleep(w.retryDelay)
		if err, ok := w.doRequest(w.callbackURL, bytes.NewBuffer(data), w.key); err != nil || !ok {
			w.log.Warn("abandoning event after retry", zap.String("Event Type", eventType.String()), zap.Error(err))
		}
	}()
	return w
}

func (w *webhookService) SendShiftCreatedEvent(shift *models.Shift) (self WebhookService) {
	return w.sendEvent(models.ShiftCreated_WebhookEvent, shift)
}

// SendShiftTerminalEvent dispatches the event matching the shift's terminal
// status. A non-terminal shift is a no-op.
func (w *webhookService) SendShiftTerminalEvent(shift *models.Shift) (self WebhookService) {
	event, terminal := models.TerminalWebhookEvent(shift.Status)
	if !terminal {
		return w
	}
	return w.sendEvent(event, shift)
}
