package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"outreach/pkg/errutil"
	"outreach/pkg/goutil"
)

func (f *handlerFixture) contactHandler() *contactHandler {
	h := NewContactHandler(f.contactRepo, f.templateRepo, f.dispatcher, f.reconciler, f.footerInjector, f.signer).(*contactHandler)
	h.async = func(fn func()) {
		fn()
	}
	return h
}

func newCreateContactRequest(email string) *CreateContactRequest {
	return &CreateContactRequest{
		ContextInfo: operatorContext(),
		Email:       goutil.String(email),
		FirstName:   goutil.String("Raj"),
		LastName:    goutil.String("Patel"),
		Department:  goutil.String("CS"),
	}
}

func TestContactHandler_CreateContactSendsWelcome(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t, newWelcomeTemplate(5))
	h := f.contactHandler()

	res := new(CreateContactResponse)
	require.NoError(t, h.CreateContact(context.Background(), newCreateContactRequest("Raj@Example.com"), res))
	require.Equal(t, "raj@example.com", res.Contact.GetEmail())
	require.NotZero(t, res.Contact.GetID())

	sent := f.dispatcher.lastCall()
	require.Len(t, sent, 1)
	require.Equal(t, "Welcome Raj", sent[0].Subject)
	// placeholder defaults fill keys the contact does not provide
	require.Contains(t, sent[0].HtmlContent, "<p>Hi Raj Patel, see https://ecell.example.com</p>")
	require.Contains(t, sent[0].HtmlContent, "/unsubscribe?token=")
	require.Equal(t, welcomeCampaign, sent[0].Campaign)

	emailLog := f.emailLogRepo.only(t)
	require.Equal(t, welcomeCampaign, emailLog.GetCampaign())
	require.Equal(t, uint64(5), emailLog.GetTemplateID())
	require.Equal(t, uint64(1), f.templateRepo.usageOf(5))
}

func TestContactHandler_CreateContactWithoutWelcomeTemplate(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	h := f.contactHandler()

	require.NoError(t, h.CreateContact(context.Background(), newCreateContactRequest("raj@example.com"), new(CreateContactResponse)))
	require.Empty(t, f.dispatcher.calls)
	require.Empty(t, f.emailLogRepo.logs)
}

func TestContactHandler_CreateContactRejects(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	f.addContact(t, "raj@example.com", "Raj", "Patel", "CS")
	h := f.contactHandler()

	err := h.CreateContact(context.Background(), newCreateContactRequest("RAJ@example.com"), new(CreateContactResponse))
	require.ErrorIs(t, err, ErrContactExists)
	require.True(t, errutil.Is(err, http.StatusConflict))

	req := newCreateContactRequest("new@example.com")
	req.FirstName = nil
	err = h.CreateContact(context.Background(), req, new(CreateContactResponse))
	require.True(t, errutil.Is(err, http.StatusBadRequest))
}

func TestContactHandler_Unsubscribe(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	contact := f.addContact(t, "raj@example.com", "Raj", "Patel", "CS")
	h := f.contactHandler()

	token := f.signer.Issue(contact.GetID(), time.Now())

	res := new(UnsubscribeResponse)
	require.NoError(t, h.Unsubscribe(context.Background(), &UnsubscribeRequest{Token: goutil.String(token)}, res))
	require.False(t, contact.GetSubscribed())
	require.Equal(t, []uint64{contact.GetID()}, f.contactRepo.unsubscribed)

	tests := []struct {
		name  string
		token string
	}{
		{"tampered", token + "x"},
		{"expired", f.signer.Issue(contact.GetID(), time.Now().Add(-2*time.Hour))},
		{"unknown contact", f.signer.Issue(999, time.Now())},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Unsubscribe(context.Background(), &UnsubscribeRequest{Token: goutil.String(tt.token)}, new(UnsubscribeResponse))
			require.ErrorIs(t, err, ErrInvalidUnsubscribeToken)
			require.True(t, errutil.Is(err, http.StatusBadRequest))
		})
	}

	err := h.Unsubscribe(context.Background(), new(UnsubscribeRequest), new(UnsubscribeResponse))
	require.True(t, errutil.Is(err, http.StatusBadRequest))
}
