package entity

import (
	"time"

	"outreach/pkg/goutil"
)

const (
	sessionByteLength = 32
	sessionTTL        = 30 * 24 * time.Hour
)

type Session struct {
	ID         *uint64 `json:"id,omitempty"`
	OperatorID *uint64 `json:"operator_id,omitempty"`
	Token      *string `json:"token,omitempty"`
	TokenHash  *string `json:"-"`
	ExpireTime *uint64 `json:"expire_time,omitempty"`
	CreateTime *uint64 `json:"create_time,omitempty"`
}

func (e *Session) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Session) GetTokenHash() string {
	if e != nil && e.TokenHash != nil {
		return *e.TokenHash
	}
	return ""
}

func (e *Session) GetOperatorID() uint64 {
	if e != nil && e.OperatorID != nil {
		return *e.OperatorID
	}
	return 0
}

func (e *Session) GetToken() string {
	if e != nil && e.Token != nil {
		return *e.Token
	}
	return ""
}

func (e *Session) GetExpireTime() uint64 {
	if e != nil && e.ExpireTime != nil {
		return *e.ExpireTime
	}
	return 0
}

// NewSession returns a session whose plain token is only ever handed to the client; the hash is stored.
func NewSession(operatorID uint64) (*Session, error) {
	now := time.Now()
	expire := now.Add(sessionTTL)

	token, err := goutil.GenerateSecureRandString(sessionByteLength)
	if err != nil {
		return nil, err
	}

	return &Session{
		OperatorID: goutil.Uint64(operatorID),
		Token:      goutil.String(goutil.Base64Encode(token)),
		TokenHash:  goutil.String(goutil.Sha256(token)),
		CreateTime: goutil.Uint64(uint64(now.Unix())),
		ExpireTime: goutil.Uint64(uint64(expire.Unix())),
	}, nil
}
