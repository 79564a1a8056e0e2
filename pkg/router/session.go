package router

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"outreach/entity"
	"outreach/pkg/errutil"
	"outreach/pkg/goutil"
	"outreach/pkg/httputil"
	"outreach/repo"
)

const HeaderSessionID = "X-Session-ID"

// ContextInfo is implemented by requests that carry the authenticated operator.
type ContextInfo interface {
	SetOperator(operator *entity.Operator)
}

type contextKey string

const (
	operatorKey contextKey = "operator"
)

type sessionMiddleware struct {
	operatorRepo repo.OperatorRepo
	sessionRepo  repo.SessionRepo
}

func NewSessionMiddleware(operatorRepo repo.OperatorRepo, sessionRepo repo.SessionRepo) Middleware {
	return &sessionMiddleware{
		operatorRepo: operatorRepo,
		sessionRepo:  sessionRepo,
	}
}

func (m *sessionMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := r.Header.Get(HeaderSessionID)
		if token == "" {
			log.Ctx(ctx).Warn().Msg("token is empty")
			m.returnErr(w)
			return
		}

		decodedToken, err := goutil.Base64Decode(token)
		if err != nil {
			log.Ctx(ctx).Warn().Msgf("decode token error, err: %v", err)
			m.returnErr(w)
			return
		}

		session, err := m.sessionRepo.GetByTokenHash(ctx, goutil.Sha256(decodedToken))
		if err != nil {
			log.Ctx(ctx).Warn().Msgf("get session error, err: %v", err)
			m.returnErr(w)
			return
		}

		operator, err := m.operatorRepo.GetByID(ctx, session.GetOperatorID())
		if err != nil {
			log.Ctx(ctx).Error().Msgf("get operator error, err: %v, operatorID: %v", err, session.GetOperatorID())
			m.returnErr(w)
			return
		}

		ctx = context.WithValue(ctx, operatorKey, operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *sessionMiddleware) returnErr(w http.ResponseWriter) {
	// abstract all errors as invalid session
	httputil.ReturnServerResponse(w, nil, errutil.UnauthorizedError(errors.New("invalid session")))
}

func GetOperatorFromContext(ctx context.Context) (*entity.Operator, bool) {
	val := ctx.Value(operatorKey)
	if operator, ok := val.(*entity.Operator); ok {
		return operator, true
	}
	return nil, false
}
