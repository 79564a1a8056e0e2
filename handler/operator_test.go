package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"outreach/entity"
	"outreach/pkg/errutil"
	"outreach/pkg/goutil"
	"outreach/repo"
)

type fakeOperatorRepo struct {
	operators []*entity.Operator
}

func (r *fakeOperatorRepo) Create(_ context.Context, operator *entity.Operator) (uint64, error) {
	operator.ID = goutil.Uint64(uint64(len(r.operators) + 1))
	r.operators = append(r.operators, operator)
	return operator.GetID(), nil
}

func (r *fakeOperatorRepo) GetByID(_ context.Context, id uint64) (*entity.Operator, error) {
	for _, o := range r.operators {
		if o.GetID() == id {
			return o, nil
		}
	}
	return nil, repo.ErrOperatorNotFound
}

func (r *fakeOperatorRepo) GetByUsername(_ context.Context, username string) (*entity.Operator, error) {
	for _, o := range r.operators {
		if o.GetUsername() == username {
			return o, nil
		}
	}
	return nil, repo.ErrOperatorNotFound
}

type fakeSessionRepo struct {
	sessions map[string]*entity.Session
}

func (r *fakeSessionRepo) Create(_ context.Context, session *entity.Session) (uint64, error) {
	r.sessions[session.GetTokenHash()] = session
	return uint64(len(r.sessions)), nil
}

func (r *fakeSessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*entity.Session, error) {
	if s, ok := r.sessions[tokenHash]; ok {
		return s, nil
	}
	return nil, repo.ErrSessionNotFound
}

func (r *fakeSessionRepo) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	delete(r.sessions, tokenHash)
	return nil
}

func TestOperatorHandler_LogInLogOut(t *testing.T) {
	t.Parallel()

	operator, err := entity.NewOperator("admin@ecell.example.com", "s3cret-pass", "Admin")
	require.NoError(t, err)

	operatorRepo := new(fakeOperatorRepo)
	_, err = operatorRepo.Create(context.Background(), operator)
	require.NoError(t, err)

	sessionRepo := &fakeSessionRepo{sessions: make(map[string]*entity.Session)}
	h := NewOperatorHandler(operatorRepo, sessionRepo)

	res := new(LogInResponse)
	require.NoError(t, h.LogIn(context.Background(), &LogInRequest{
		Username: goutil.String("admin"),
		Password: goutil.String("s3cret-pass"),
	}, res))
	require.Equal(t, operator.GetID(), res.Session.GetOperatorID())
	require.NotEmpty(t, res.Session.GetToken())
	require.Len(t, sessionRepo.sessions, 1)

	raw, err := goutil.Base64Decode(res.Session.GetToken())
	require.NoError(t, err)
	_, err = sessionRepo.GetByTokenHash(context.Background(), goutil.Sha256(raw))
	require.NoError(t, err)

	require.NoError(t, h.LogOut(context.Background(), &LogOutRequest{
		ContextInfo: ContextInfo{Operator: operator},
		Token:       res.Session.Token,
	}, new(LogOutResponse)))
	require.Empty(t, sessionRepo.sessions)
}

func TestOperatorHandler_LogInRejects(t *testing.T) {
	t.Parallel()

	operator, err := entity.NewOperator("admin@ecell.example.com", "s3cret-pass", "Admin")
	require.NoError(t, err)
	deleted, err := entity.NewOperator("old@ecell.example.com", "s3cret-pass", "Old")
	require.NoError(t, err)
	deleted.Status = entity.OperatorStatusDeleted

	operatorRepo := new(fakeOperatorRepo)
	for _, o := range []*entity.Operator{operator, deleted} {
		_, err := operatorRepo.Create(context.Background(), o)
		require.NoError(t, err)
	}
	h := NewOperatorHandler(operatorRepo, &fakeSessionRepo{sessions: make(map[string]*entity.Session)})

	tests := []struct {
		name     string
		req      *LogInRequest
		wantCode int
	}{
		{"wrong password", &LogInRequest{Username: goutil.String("admin"), Password: goutil.String("nope")}, http.StatusUnauthorized},
		{"unknown user", &LogInRequest{Username: goutil.String("ghost"), Password: goutil.String("s3cret-pass")}, http.StatusUnauthorized},
		{"deleted operator", &LogInRequest{Username: goutil.String("old"), Password: goutil.String("s3cret-pass")}, http.StatusUnauthorized},
		{"missing password", &LogInRequest{Username: goutil.String("admin")}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.LogIn(context.Background(), tt.req, new(LogInResponse))
			code, _ := errutil.ParseHttpError(err)
			require.Equal(t, tt.wantCode, code)
		})
	}
}
