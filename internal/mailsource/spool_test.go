package mailsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestFetchOldestFirstWithLimit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "002.json", `{"id":"<b@x>","subject":"second"}`)
	writeFile(t, dir, "001.json", `{"id":"<a@x>","subject":"first","received_at":"Tue, 3 Mar 2026 10:00:00 -0500 (EST)"}`)
	writeFile(t, dir, "003.json", `{"id":"<c@x>","subject":"third"}`)
	writeFile(t, dir, "notes.txt", "ignored")

	spool := NewSpool(dir)
	got, err := spool.Fetch(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Subject)
	assert.Equal(t, "second", got[1].Subject)
	assert.True(t, got[0].ReceivedAt.Equal(time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)))
	assert.False(t, got[1].ReceivedAt.IsZero())
}

func TestMarkReadMovesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "001.json", `{"id":"<a@x>","subject":"first"}`)
	spool := NewSpool(dir)

	_, err := spool.Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.NoError(t, spool.MarkRead(context.Background(), "<a@x>"))

	assert.NoFileExists(t, filepath.Join(dir, "001.json"))
	assert.FileExists(t, filepath.Join(dir, "read", "001.json"))

	again, err := spool.Fetch(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	assert.ErrorIs(t, spool.MarkRead(context.Background(), "<a@x>"), ErrUnknownMessage)
}

func TestUnreadMessagesStayButAreHandedOutOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "001.json", `{"id":"<a@x>"}`)
	spool := NewSpool(dir)

	first, err := spool.Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := spool.Fetch(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.FileExists(t, filepath.Join(dir, "001.json"))

	// A fresh spool over the same directory sees it again.
	again, err := NewSpool(dir).Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "<a@x>", again[0].ID)
}

func TestReleaseMakesMessageFetchableAgain(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "001.json", `{"id":"<a@x>"}`)
	spool := NewSpool(dir)

	_, err := spool.Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.NoError(t, spool.Release(context.Background(), "<a@x>"))

	got, err := spool.Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "<a@x>", got[0].ID)

	assert.ErrorIs(t, spool.Release(context.Background(), "<nope@x>"), ErrUnknownMessage)
}

func TestLeftUnreadMessagesDoNotBlockNewMail(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, dir, fmt.Sprintf("%03d.json", i), fmt.Sprintf(`{"id":"<old-%d@x>"}`, i))
	}
	spool := NewSpool(dir)

	first, err := spool.Fetch(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, first, 5)

	writeFile(t, dir, "100.json", `{"id":"<new@x>"}`)
	next, err := spool.Fetch(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "<new@x>", next[0].ID)
}

func TestRemovedFilesAreForgotten(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "001.json", `{"id":"<a@x>"}`)
	spool := NewSpool(dir)

	_, err := spool.Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "001.json")))
	_, err = spool.Fetch(context.Background(), 10)
	require.NoError(t, err)

	assert.ErrorIs(t, spool.MarkRead(context.Background(), "<a@x>"), ErrUnknownMessage)
}

func TestMalformedMessageIsRejected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "001.json", `{"id":`)
	writeFile(t, dir, "002.json", `{"subject":"no id"}`)

	got, err := NewSpool(dir).Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "002", got[0].UID)
	assert.Equal(t, "002", got[0].ExternalID())
	assert.FileExists(t, filepath.Join(dir, "rejected", "001.json"))
}

func TestAttachmentMIMEIsNormalized(t *testing.T) {
	dir := t.TempDir()
	spool := NewSpool(dir)
	_, err := spool.Write(domain.InboundEmail{
		ID: "<pdf@x>",
		Attachments: []domain.Attachment{
			{Filename: "offer.pdf", MIMEType: "application/octet-stream", Data: []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")},
			{Filename: "notes.txt", MIMEType: "text/plain; charset=utf-8", Data: []byte("hello")},
		},
	})
	require.NoError(t, err)

	got, err := spool.Fetch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Attachments, 2)
	assert.Equal(t, domain.MIMEPDF, got[0].Attachments[0].MIMEType)
	assert.Equal(t, domain.MIMEText, got[0].Attachments[1].MIMEType)
	assert.Equal(t, []byte("hello"), got[0].Attachments[1].Data)
}

func TestPing(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, NewSpool(dir).Ping(context.Background()))
	assert.Error(t, NewSpool(filepath.Join(dir, "missing")).Ping(context.Background()))
}
