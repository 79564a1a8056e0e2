package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"outreach/entity"
	"outreach/pkg/errutil"
)

var (
	ErrContactNotFound = errutil.NotFoundError(errors.New("contact not found"))
)

type Contact struct {
	ID         *uint64 `gorm:"primaryKey"`
	Email      *string
	FirstName  *string
	LastName   *string
	Department *string
	Year       *string
	Source     *string
	Subscribed *bool
	CreateTime *uint64
	UpdateTime *uint64
}

func (m *Contact) TableName() string {
	return "contact_tab"
}

func (m *Contact) GetID() uint64 {
	if m != nil && m.ID != nil {
		return *m.ID
	}
	return 0
}

type ContactRepo interface {
	Create(ctx context.Context, contact *entity.Contact) (uint64, error)
	GetByID(ctx context.Context, id uint64) (*entity.Contact, error)
	GetByEmail(ctx context.Context, email string) (*entity.Contact, error)
	GetSubscribed(ctx context.Context, f *entity.ContactFilter) ([]*entity.Contact, error)
	Unsubscribe(ctx context.Context, id uint64) error
}

type contactRepo struct {
	cacheKeyPrefix string
	baseRepo       BaseRepo
	baseCache      BaseCache
}

func NewContactRepo(ctx context.Context, baseRepo BaseRepo) ContactRepo {
	return &contactRepo{
		cacheKeyPrefix: "contact",
		baseRepo:       baseRepo,
		baseCache:      NewBaseCache(ctx),
	}
}

func (r *contactRepo) getFromCache(ctx context.Context, email string) *entity.Contact {
	if v, ok := r.baseCache.Get(ctx, r.cacheKeyPrefix, email); ok {
		return v.(*entity.Contact)
	}
	return nil
}

func (r *contactRepo) Create(ctx context.Context, contact *entity.Contact) (uint64, error) {
	contactModel := ToContactModel(contact)

	if err := r.baseRepo.Create(ctx, contactModel); err != nil {
		return 0, err
	}

	return contactModel.GetID(), nil
}

func (r *contactRepo) GetByID(ctx context.Context, id uint64) (*entity.Contact, error) {
	return r.get(ctx, []*Condition{
		{
			Field: "id",
			Value: id,
			Op:    OpEq,
		},
	})
}

// GetByEmail is on the hot path of every send, so hits are cached by normalised address.
func (r *contactRepo) GetByEmail(ctx context.Context, email string) (*entity.Contact, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if contact := r.getFromCache(ctx, email); contact != nil {
		return contact, nil
	}

	contact, err := r.get(ctx, []*Condition{
		{
			Field: "email",
			Value: email,
			Op:    OpEq,
		},
	})
	if err != nil {
		return nil, err
	}

	r.baseCache.Set(ctx, r.cacheKeyPrefix, email, contact)

	return contact, nil
}

func (r *contactRepo) GetSubscribed(ctx context.Context, f *entity.ContactFilter) ([]*entity.Contact, error) {
	if f == nil {
		f = new(entity.ContactFilter)
	}

	contactModels := make([]*Contact, 0)
	if err := r.baseRepo.Find(ctx, &contactModels, &Filter{
		Conditions: []*Condition{
			{
				Field: "subscribed",
				Value: true,
				Op:    OpEq,
			},
			{
				Field: "department",
				Value: f.Department,
				Op:    OpEq,
			},
			{
				Field: "year",
				Value: f.Year,
				Op:    OpEq,
			},
			{
				Field: "source",
				Value: f.Source,
				Op:    OpEq,
			},
		},
	}); err != nil {
		return nil, err
	}

	contacts := make([]*entity.Contact, len(contactModels))
	for i, contactModel := range contactModels {
		contacts[i] = ToContact(contactModel)
	}

	return contacts, nil
}

func (r *contactRepo) Unsubscribe(ctx context.Context, id uint64) error {
	contact, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if _, err := r.baseRepo.UpdateSelected(ctx, new(Contact), &Filter{
		Conditions: []*Condition{
			{
				Field: "id",
				Value: id,
				Op:    OpEq,
			},
		},
	}, map[string]interface{}{
		"subscribed":  false,
		"update_time": uint64(time.Now().Unix()),
	}); err != nil {
		return err
	}

	r.baseCache.Del(ctx, r.cacheKeyPrefix, contact.GetEmail())

	return nil
}

func (r *contactRepo) get(ctx context.Context, conditions []*Condition) (*entity.Contact, error) {
	contactModel := new(Contact)

	if err := r.baseRepo.Get(ctx, contactModel, &Filter{
		Conditions: conditions,
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}

	return ToContact(contactModel), nil
}

func ToContact(m *Contact) *entity.Contact {
	return &entity.Contact{
		ID:         m.ID,
		Email:      m.Email,
		FirstName:  m.FirstName,
		LastName:   m.LastName,
		Department: m.Department,
		Year:       m.Year,
		Source:     m.Source,
		Subscribed: m.Subscribed,
		CreateTime: m.CreateTime,
		UpdateTime: m.UpdateTime,
	}
}

func ToContactModel(e *entity.Contact) *Contact {
	return &Contact{
		ID:         e.ID,
		Email:      e.Email,
		FirstName:  e.FirstName,
		LastName:   e.LastName,
		Department: e.Department,
		Year:       e.Year,
		Source:     e.Source,
		Subscribed: e.Subscribed,
		CreateTime: e.CreateTime,
		UpdateTime: e.UpdateTime,
	}
}
