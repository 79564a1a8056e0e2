package entity

import (
	"strings"
	"time"

	"outreach/pkg/goutil"
)

type Contact struct {
	ID         *uint64 `json:"id,omitempty"`
	Email      *string `json:"email,omitempty"`
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	Department *string `json:"department,omitempty"`
	Year       *string `json:"year,omitempty"`
	Source     *string `json:"source,omitempty"`
	Subscribed *bool   `json:"subscribed,omitempty"`
	CreateTime *uint64 `json:"create_time,omitempty"`
	UpdateTime *uint64 `json:"update_time,omitempty"`
}

func NewContact(email, firstName, lastName, department, year, source string) *Contact {
	now := uint64(time.Now().Unix())

	return &Contact{
		Email:      goutil.String(strings.ToLower(strings.TrimSpace(email))),
		FirstName:  goutil.String(firstName),
		LastName:   goutil.String(lastName),
		Department: goutil.String(department),
		Year:       goutil.String(year),
		Source:     goutil.String(source),
		Subscribed: goutil.Bool(true),
		CreateTime: goutil.Uint64(now),
		UpdateTime: goutil.Uint64(now),
	}
}

func (e *Contact) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Contact) GetEmail() string {
	if e != nil && e.Email != nil {
		return *e.Email
	}
	return ""
}

func (e *Contact) GetFirstName() string {
	if e != nil && e.FirstName != nil {
		return *e.FirstName
	}
	return ""
}

func (e *Contact) GetLastName() string {
	if e != nil && e.LastName != nil {
		return *e.LastName
	}
	return ""
}

func (e *Contact) GetDepartment() string {
	if e != nil && e.Department != nil {
		return *e.Department
	}
	return ""
}

func (e *Contact) GetYear() string {
	if e != nil && e.Year != nil {
		return *e.Year
	}
	return ""
}

func (e *Contact) GetSubscribed() bool {
	if e != nil && e.Subscribed != nil {
		return *e.Subscribed
	}
	return false
}

func (e *Contact) FullName() string {
	return strings.TrimSpace(e.GetFirstName() + " " + e.GetLastName())
}

// TemplateData seeds placeholder values from the contact's own fields.
func (e *Contact) TemplateData() map[string]string {
	if e == nil {
		return map[string]string{}
	}
	return map[string]string{
		"firstName":  e.GetFirstName(),
		"lastName":   e.GetLastName(),
		"fullName":   e.FullName(),
		"email":      e.GetEmail(),
		"department": e.GetDepartment(),
		"year":       e.GetYear(),
	}
}

type ContactFilter struct {
	Department *string `json:"department,omitempty"`
	Year       *string `json:"year,omitempty"`
	Source     *string `json:"source,omitempty"`
}
