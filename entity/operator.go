package entity

import (
	"fmt"
	"strings"
	"time"

	"outreach/pkg/goutil"
)

type OperatorStatus uint32

const (
	OperatorStatusUnknown OperatorStatus = iota
	OperatorStatusNormal
	OperatorStatusDeleted
)

// Operator is an authenticated user allowed to send email; stored as the sender of each log.
type Operator struct {
	ID          *uint64        `json:"id,omitempty"`
	Email       *string        `json:"email,omitempty"`
	Username    *string        `json:"username,omitempty"`
	Password    *string        `json:"-"`
	DisplayName *string        `json:"display_name,omitempty"`
	Status      OperatorStatus `json:"status,omitempty"`
	CreateTime  *uint64        `json:"create_time,omitempty"`
	UpdateTime  *uint64        `json:"update_time,omitempty"`
}

func NewOperator(email, password, displayName string) (*Operator, error) {
	now := uint64(time.Now().Unix())

	username, err := extractUsernameFromEmail(email)
	if err != nil {
		return nil, err
	}

	passwordHash, err := goutil.BCrypt(password)
	if err != nil {
		return nil, err
	}

	return &Operator{
		Email:       goutil.String(email),
		Username:    goutil.String(username),
		Password:    goutil.String(passwordHash),
		DisplayName: goutil.String(displayName),
		Status:      OperatorStatusNormal,
		CreateTime:  goutil.Uint64(now),
		UpdateTime:  goutil.Uint64(now),
	}, nil
}

func (e *Operator) ComparePassword(input string) bool {
	return goutil.CompareBCrypt(e.GetPassword(), input) == nil
}

func (e *Operator) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Operator) GetEmail() string {
	if e != nil && e.Email != nil {
		return *e.Email
	}
	return ""
}

func (e *Operator) GetUsername() string {
	if e != nil && e.Username != nil {
		return *e.Username
	}
	return ""
}

func (e *Operator) GetPassword() string {
	if e != nil && e.Password != nil {
		return *e.Password
	}
	return ""
}

func (e *Operator) GetDisplayName() string {
	if e != nil && e.DisplayName != nil {
		return *e.DisplayName
	}
	return ""
}

func (e *Operator) GetStatus() OperatorStatus {
	if e != nil {
		return e.Status
	}
	return OperatorStatusUnknown
}

func (e *Operator) IsNormal() bool {
	return e.GetStatus() == OperatorStatusNormal
}

func extractUsernameFromEmail(email string) (string, error) {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" {
		return "", fmt.Errorf("invalid email: %v", email)
	}
	return parts[0], nil
}
