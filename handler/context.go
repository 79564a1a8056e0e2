package handler

import (
	"errors"

	"outreach/entity"
	"outreach/pkg/validator"
)

var ErrMissingOperator = errors.New("missing operator")

type ContextInfo struct {
	Operator *entity.Operator `json:"-" schema:"-"`
}

func (c *ContextInfo) SetOperator(operator *entity.Operator) {
	c.Operator = operator
}

func (c *ContextInfo) GetOperatorID() uint64 {
	return c.Operator.GetID()
}

type contextInfoValidator struct{}

func (v *contextInfoValidator) Validate(value interface{}) error {
	ci, ok := value.(*ContextInfo)
	if !ok || ci == nil || ci.Operator == nil {
		return ErrMissingOperator
	}
	return nil
}

var ContextInfoValidator validator.Validator = new(contextInfoValidator)
