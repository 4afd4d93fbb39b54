package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationTypeValid(t *testing.T) {
	for _, nt := range NotificationTypes {
		assert.True(t, nt.Valid(), nt)
	}
	assert.False(t, NotificationType("mention").Valid())
	assert.False(t, NotificationType("").Valid())
}

func TestValidatePayload(t *testing.T) {
	assert.NoError(t, ValidatePayload(NotificationNewCase, nil))
	assert.NoError(t, ValidatePayload(NotificationNewCase, NewCasePayload{CaseID: "c1"}))
	assert.NoError(t, ValidatePayload(NotificationCaseApplicationRejected, ApplicationDecisionPayload{Accepted: false}))

	assert.Error(t, ValidatePayload(NotificationLike, NewCasePayload{CaseID: "c1"}))
	assert.Error(t, ValidatePayload(NotificationCaseApplicationAccepted, ApplicationDecisionPayload{Accepted: false}))
}

func TestDecodePayloadByType(t *testing.T) {
	p, err := DecodePayload(NotificationCaseApplication, []byte(`{"case_id":"c1","case_title":"Lease dispute","action":"review_application"}`))
	require.NoError(t, err)
	assert.Equal(t, CaseApplicationPayload{CaseID: "c1", CaseTitle: "Lease dispute", Action: "review_application"}, p)

	p, err = DecodePayload(NotificationCaseApplicationAccepted, []byte(`{"case_id":"c1"}`))
	require.NoError(t, err)
	decision, ok := p.(ApplicationDecisionPayload)
	require.True(t, ok)
	assert.True(t, decision.Accepted)
	assert.Equal(t, NotificationCaseApplicationAccepted, decision.NotificationType())
}

func TestDecodePayloadEmptyAndUnknown(t *testing.T) {
	p, err := DecodePayload(NotificationLike, []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = DecodePayload(NotificationType("mention"), []byte(`{"x":1}`))
	assert.Error(t, err)
}
