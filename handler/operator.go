package handler

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"outreach/entity"
	"outreach/pkg/errutil"
	"outreach/pkg/goutil"
	"outreach/pkg/validator"
	"outreach/repo"
)

var ErrIncorrectCredentials = errors.New("incorrect username or password")

type OperatorHandler interface {
	LogIn(ctx context.Context, req *LogInRequest, res *LogInResponse) error
	LogOut(ctx context.Context, req *LogOutRequest, _ *LogOutResponse) error
}

type operatorHandler struct {
	operatorRepo repo.OperatorRepo
	sessionRepo  repo.SessionRepo
}

func NewOperatorHandler(operatorRepo repo.OperatorRepo, sessionRepo repo.SessionRepo) OperatorHandler {
	return &operatorHandler{
		operatorRepo: operatorRepo,
		sessionRepo:  sessionRepo,
	}
}

type LogInRequest struct {
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
}

func (r *LogInRequest) GetUsername() string {
	if r != nil && r.Username != nil {
		return *r.Username
	}
	return ""
}

func (r *LogInRequest) GetPassword() string {
	if r != nil && r.Password != nil {
		return *r.Password
	}
	return ""
}

type LogInResponse struct {
	Session  *entity.Session  `json:"session,omitempty"`
	Operator *entity.Operator `json:"operator,omitempty"`
}

var LogInValidator = validator.MustForm(map[string]validator.Validator{
	"username": &validator.String{MinLen: 1, MaxLen: 64},
	"password": &validator.String{MinLen: 1, MaxLen: 72},
})

func (h *operatorHandler) LogIn(ctx context.Context, req *LogInRequest, res *LogInResponse) error {
	if err := LogInValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	stdErr := errutil.UnauthorizedError(ErrIncorrectCredentials)

	operator, err := h.operatorRepo.GetByUsername(ctx, req.GetUsername())
	if err != nil {
		if !errors.Is(err, repo.ErrOperatorNotFound) {
			log.Ctx(ctx).Error().Msgf("get operator error: %v", err)
			return err
		}
		return stdErr
	}

	if !operator.IsNormal() || !operator.ComparePassword(req.GetPassword()) {
		return stdErr
	}

	sess, err := entity.NewSession(operator.GetID())
	if err != nil {
		log.Ctx(ctx).Error().Msgf("new session error: %v", err)
		return err
	}

	id, err := h.sessionRepo.Create(ctx, sess)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("create session error: %v", err)
		return err
	}

	sess.ID = goutil.Uint64(id)
	res.Session = sess
	res.Operator = operator

	return nil
}

type LogOutRequest struct {
	ContextInfo

	Token *string `json:"token,omitempty"`
}

type LogOutResponse struct{}

var LogOutValidator = validator.MustForm(map[string]validator.Validator{
	"ContextInfo": ContextInfoValidator,
	"token":       &validator.String{MinLen: 1},
})

func (h *operatorHandler) LogOut(ctx context.Context, req *LogOutRequest, _ *LogOutResponse) error {
	if err := LogOutValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	raw, err := goutil.Base64Decode(*req.Token)
	if err != nil {
		return errutil.ValidationError(err)
	}

	if err := h.sessionRepo.DeleteByTokenHash(ctx, goutil.Sha256(raw)); err != nil {
		log.Ctx(ctx).Error().Msgf("delete session err: %v", err)
		return err
	}

	return nil
}
