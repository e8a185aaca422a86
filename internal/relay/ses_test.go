package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSendEmailAPI struct {
	calls   int
	failFor int // 前 failFor 次调用返回错误
	inputs  []*sesv2.SendEmailInput
}

func (m *mockSendEmailAPI) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.calls++
	m.inputs = append(m.inputs, params)
	if m.calls <= m.failFor {
		return nil, errors.New("throttled")
	}
	return &sesv2.SendEmailOutput{}, nil
}

func TestSESRelaySendSimple(t *testing.T) {
	mock := &mockSendEmailAPI{}
	r := NewSESRelayWithClient(mock, zap.NewNop(), 3, time.Millisecond)

	err := r.Send(context.Background(), &Message{
		From:     "box@drop.example",
		To:       []string{"user@example.com"},
		Subject:  "hello",
		TextBody: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, mock.calls)

	input := mock.inputs[0]
	require.NotNil(t, input.Content.Simple)
	assert.Equal(t, "box@drop.example", *input.FromEmailAddress)
	assert.Equal(t, []string{"user@example.com"}, input.Destination.ToAddresses)
}

func TestSESRelaySendRawPassthrough(t *testing.T) {
	mock := &mockSendEmailAPI{}
	r := NewSESRelayWithClient(mock, zap.NewNop(), 3, time.Millisecond)

	raw := []byte("From: proxy@drop.example\r\nSubject: fwd\r\n\r\nbody")
	err := r.Send(context.Background(), &Message{
		To:  []string{"user@example.com"},
		Raw: raw,
	})
	require.NoError(t, err)

	input := mock.inputs[0]
	require.NotNil(t, input.Content.Raw)
	assert.Equal(t, raw, input.Content.Raw.Data)
	assert.Equal(t, []string{"user@example.com"}, input.Destination.ToAddresses)
}

func TestSESRelaySendWithAttachmentsBuildsMIME(t *testing.T) {
	mock := &mockSendEmailAPI{}
	r := NewSESRelayWithClient(mock, zap.NewNop(), 3, time.Millisecond)

	err := r.Send(context.Background(), &Message{
		From:     "box@drop.example",
		To:       []string{"user@example.com"},
		Subject:  "report",
		HTMLBody: "<p>see attached</p>",
		Attachments: []Attachment{
			{Filename: "a.txt", ContentType: "text/plain", Content: []byte("data")},
		},
	})
	require.NoError(t, err)

	input := mock.inputs[0]
	require.NotNil(t, input.Content.Raw)
	rawStr := string(input.Content.Raw.Data)
	assert.Contains(t, rawStr, "From: box@drop.example")
	assert.Contains(t, rawStr, "multipart/mixed")
	assert.Contains(t, rawStr, "a.txt")
}

func TestSESRelayRetriesTransientFailures(t *testing.T) {
	mock := &mockSendEmailAPI{failFor: 2}
	r := NewSESRelayWithClient(mock, zap.NewNop(), 3, time.Millisecond)

	err := r.Send(context.Background(), &Message{
		From:     "box@drop.example",
		To:       []string{"user@example.com"},
		TextBody: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, mock.calls)
}

func TestSESRelayGivesUpAfterMaxRetries(t *testing.T) {
	mock := &mockSendEmailAPI{failFor: 10}
	r := NewSESRelayWithClient(mock, zap.NewNop(), 2, time.Millisecond)

	err := r.Send(context.Background(), &Message{
		From:     "box@drop.example",
		To:       []string{"user@example.com"},
		TextBody: "hi",
	})
	require.Error(t, err)
	assert.Equal(t, 3, mock.calls) // 初次 + 2 次重试
}
