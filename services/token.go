package services

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/giftshift/giftshift-go/errors"
	"github.com/giftshift/giftshift-go/models"
)

// TokenService validates access tokens issued by the identity collaborator.
// Issuance lives outside this service; only the lookup boundary is owned here.
type TokenService interface {
	GetAccountIDByToken(ctx context.Context, token string) (string, error)
}

func NewTokenService(dataDatabase *sql.DB, log *zap.Logger) TokenService {
	return &tokenService{dataDB: dataDatabase, log: log}
}

type tokenService struct {
	dataDB *sql.DB
	log    *zap.Logger
}

func (t *tokenService) GetAccountIDByToken(ctx context.Context, token string) (string, error) {
	accessToken := new(models.AccessToken)
	err := sq.
		Select("id", "name", "account_id", "token").
		From("access_tokens").
		Where(sq.Eq{"token": token}).
		RunWith(t.dataDB).
		QueryRowContext(ctx).
		Scan(&accessToken.ID, &accessToken.Name, &accessToken.AccountID, &accessToken.Token)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errors.NewInvalidTokenError()
		}
		return "", errors.HandleDataDBError(err)
	}

	return accessToken.AccountID, nil
}
