package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/storage/filesystem"
	"dropmail/backend/internal/storage/memory"
)

func newTestEmailService(t *testing.T) (*EmailService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	blobs, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)
	return NewEmailService(store, blobs, zap.NewNop()), store
}

func testEmail(messageID string) *domain.Email {
	return &domain.Email{
		Destination: "box@drop.example",
		MessageID:   messageID,
		Source:      "sender@corp.example",
		Subject:     "hello",
		ReceivedAt:  time.Now().UTC(),
		IsNew:       true,
	}
}

func TestPutThenGetContent(t *testing.T) {
	svc, _ := newTestEmailService(t)
	raw := []byte("From: sender@corp.example\r\nSubject: hello\r\n\r\nbody")

	require.NoError(t, svc.Put(testEmail("msg-1"), raw))

	email, got, err := svc.GetContent("box@drop.example", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	assert.NotEmpty(t, email.RawRef)

	// 读取把邮件标记为已读
	assert.False(t, email.IsNew)
	list, err := svc.List("box@drop.example")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsNew)
}

func TestPutDuplicateReturnsConflict(t *testing.T) {
	svc, _ := newTestEmailService(t)
	raw := []byte("raw content")

	require.NoError(t, svc.Put(testEmail("msg-1"), raw))

	err := svc.Put(testEmail("msg-1"), raw)
	assert.ErrorIs(t, err, domain.ErrMessageExists)

	// 冲突时不产生第二条记录
	list, err := svc.List("box@drop.example")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeleteRawOnlyKeepsMetadata(t *testing.T) {
	svc, _ := newTestEmailService(t)

	require.NoError(t, svc.Put(testEmail("msg-1"), []byte("raw")))
	require.NoError(t, svc.DeleteRawOnly("box@drop.example", "msg-1"))

	list, err := svc.List("box@drop.example")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, _, err = svc.GetContent("box@drop.example", "msg-1")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestDeleteAllIsIdempotent(t *testing.T) {
	svc, store := newTestEmailService(t)

	require.NoError(t, svc.Put(testEmail("msg-1"), []byte("one")))
	require.NoError(t, svc.Put(testEmail("msg-2"), []byte("two")))

	require.NoError(t, svc.DeleteAll("box@drop.example"))

	list, err := store.ListEmails("box@drop.example")
	require.NoError(t, err)
	assert.Empty(t, list)

	// 再删一次不报错
	assert.NoError(t, svc.DeleteAll("box@drop.example"))
}
