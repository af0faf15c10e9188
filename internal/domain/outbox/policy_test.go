package outbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/htpdf/htpdf/internal/domain/model"
)

func defaultPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:   1 * time.Minute,
		Multiplier:  5,
		MaxAttempts: 3,
	}
}

func TestRetryPolicy_DelaySchedule(t *testing.T) {
	p := defaultPolicy()

	// 1m, 5m, 25m for the default settings.
	assert.Equal(t, 1*time.Minute, p.Delay(1))
	assert.Equal(t, 5*time.Minute, p.Delay(2))
	assert.Equal(t, 25*time.Minute, p.Delay(3))
}

func TestRetryPolicy_DelayClampsAttemptCount(t *testing.T) {
	p := defaultPolicy()
	assert.Equal(t, p.Delay(1), p.Delay(0))
	assert.Equal(t, p.Delay(1), p.Delay(-3))
}

func TestRetryPolicy_NextRetryAt(t *testing.T) {
	p := defaultPolicy()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(1*time.Minute), p.NextRetryAt(now, 1))
	assert.Equal(t, now.Add(5*time.Minute), p.NextRetryAt(now, 2))
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	p := defaultPolicy()

	assert.False(t, p.Exhausted(1))
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))
}

func TestBuildEmailBody_KnownTypes(t *testing.T) {
	completed := &model.OutboxMessage{
		MessageType: model.MessageTypePdfCompleted,
		JobID:       "job-1",
		Body:        "Your document report.pdf is ready.",
	}
	body := BuildEmailBody(completed)
	assert.True(t, strings.Contains(body, "PDF generation complete"))
	assert.True(t, strings.Contains(body, "job-1"))
	assert.True(t, strings.Contains(body, completed.Body))

	failed := &model.OutboxMessage{
		MessageType: model.MessageTypePdfFailed,
		JobID:       "job-2",
		Body:        "Rendering failed.",
	}
	body = BuildEmailBody(failed)
	assert.True(t, strings.Contains(body, "PDF generation failed"))
	assert.True(t, strings.Contains(body, "job-2"))
}

func TestBuildEmailBody_UnknownTypeSendsBodyVerbatim(t *testing.T) {
	msg := &model.OutboxMessage{
		MessageType: model.MessageType("account_notice"),
		JobID:       "job-3",
		Body:        "plain body",
	}
	assert.Equal(t, "plain body", BuildEmailBody(msg))
}
