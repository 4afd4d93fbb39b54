package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rajyaabhishek/LawX-sub001/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.realtime", "lawx-realtime", "test")
	userID := "alice"

	publisher.On("Publish", mock.Anything, "audit.realtime", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.EventType == "audit_log" &&
			env.Service == "lawx-realtime" &&
			env.RequestID == "req-1" &&
			*env.UserID == "alice" &&
			env.Payload.Fields["notification_id"] == "n1"
	})).Return(nil).Once()

	emitter.EmitWithFields(context.Background(), "INFO", "notification deleted", "req-1", &userID,
		map[string]string{"notification_id": "n1"})

	publisher.AssertExpectations(t)
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.realtime", "lawx-realtime", "test")
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker gone")).Once()

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "WARN", "x", "req-2", nil)
	})
	publisher.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "x", "", nil)
	})
}
