package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"outreach/entity"
	"outreach/pkg/errutil"
	"outreach/pkg/goutil"
)

var (
	ErrOperatorNotFound = errutil.NotFoundError(errors.New("operator not found"))
)

type Operator struct {
	ID          *uint64 `gorm:"primaryKey"`
	Email       *string
	Username    *string
	Password    *string
	DisplayName *string
	Status      *uint32
	CreateTime  *uint64
	UpdateTime  *uint64
}

func (m *Operator) TableName() string {
	return "operator_tab"
}

func (m *Operator) GetID() uint64 {
	if m != nil && m.ID != nil {
		return *m.ID
	}
	return 0
}

func (m *Operator) GetStatus() uint32 {
	if m != nil && m.Status != nil {
		return *m.Status
	}
	return 0
}

type OperatorRepo interface {
	Create(ctx context.Context, operator *entity.Operator) (uint64, error)
	GetByID(ctx context.Context, id uint64) (*entity.Operator, error)
	GetByUsername(ctx context.Context, username string) (*entity.Operator, error)
}

type operatorRepo struct {
	baseRepo BaseRepo
}

func NewOperatorRepo(_ context.Context, baseRepo BaseRepo) OperatorRepo {
	return &operatorRepo{baseRepo: baseRepo}
}

func (r *operatorRepo) Create(ctx context.Context, operator *entity.Operator) (uint64, error) {
	operatorModel := ToOperatorModel(operator)

	if err := r.baseRepo.Create(ctx, operatorModel); err != nil {
		return 0, err
	}

	return operatorModel.GetID(), nil
}

func (r *operatorRepo) GetByID(ctx context.Context, id uint64) (*entity.Operator, error) {
	return r.get(ctx, []*Condition{
		{
			Field: "id",
			Value: id,
			Op:    OpEq,
		},
	}, true)
}

func (r *operatorRepo) GetByUsername(ctx context.Context, username string) (*entity.Operator, error) {
	return r.get(ctx, []*Condition{
		{
			Field: "username",
			Value: username,
			Op:    OpEq,
		},
	}, true)
}

func (r *operatorRepo) get(ctx context.Context, conditions []*Condition, filterDelete bool) (*entity.Operator, error) {
	operatorModel := new(Operator)

	if err := r.baseRepo.Get(ctx, operatorModel, &Filter{
		Conditions: r.maybeAddDeleteFilter(conditions, filterDelete),
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOperatorNotFound
		}
		return nil, err
	}

	return ToOperator(operatorModel), nil
}

func (r *operatorRepo) maybeAddDeleteFilter(conditions []*Condition, filterDelete bool) []*Condition {
	if filterDelete {
		return append(conditions, &Condition{
			Field: "status",
			Value: uint32(entity.OperatorStatusDeleted),
			Op:    OpNotEq,
		})
	}
	return conditions
}

func ToOperator(m *Operator) *entity.Operator {
	return &entity.Operator{
		ID:          m.ID,
		Email:       m.Email,
		Username:    m.Username,
		Password:    m.Password,
		DisplayName: m.DisplayName,
		Status:      entity.OperatorStatus(m.GetStatus()),
		CreateTime:  m.CreateTime,
		UpdateTime:  m.UpdateTime,
	}
}

func ToOperatorModel(e *entity.Operator) *Operator {
	return &Operator{
		ID:          e.ID,
		Email:       e.Email,
		Username:    e.Username,
		Password:    e.Password,
		DisplayName: e.DisplayName,
		Status:      goutil.Uint32(uint32(e.Status)),
		CreateTime:  e.CreateTime,
		UpdateTime:  e.UpdateTime,
	}
}
