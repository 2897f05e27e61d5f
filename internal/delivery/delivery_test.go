package delivery

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/docsnap/internal/config"
)

func writeArchive(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLocalDeliverFileCopiesIntoDir(t *testing.T) {
	src := writeArchive(t, t.TempDir(), "shop.tar.gz", "archive-bytes")
	dir := filepath.Join(t.TempDir(), "nested", "out")

	sink, err := NewLocal(dir, nil, 0, nil)
	require.NoError(t, err)
	require.NoError(t, sink.DeliverFile(context.Background(), src, "Backup"))

	data, err := os.ReadFile(filepath.Join(dir, "shop.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
}

func TestLocalDeliverFileAlreadyInPlace(t *testing.T) {
	dir := t.TempDir()
	src := writeArchive(t, dir, "shop.tar.gz", "archive-bytes")

	sink, err := NewLocal(dir, nil, 0, nil)
	require.NoError(t, err)
	require.NoError(t, sink.DeliverFile(context.Background(), src, "Backup"))

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
}

func TestLocalDeliverText(t *testing.T) {
	var out bytes.Buffer
	sink, err := NewLocal("", &out, 4, nil)
	require.NoError(t, err)

	require.NoError(t, sink.DeliverText(context.Background(), "Backup completed"))
	assert.Equal(t, "Backup completed\n", out.String())
}

type fakeBot struct {
	sent []tgbotapi.Chattable
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, nil
}

func TestTelegramDeliverTextInOrderedChunks(t *testing.T) {
	bot := &fakeBot{}
	sink := newTelegram(bot, 42, 2000, nil)

	text := strings.Repeat("x", 2000) + strings.Repeat("y", 1500)
	require.NoError(t, sink.DeliverText(context.Background(), text))

	require.Len(t, bot.sent, 2)
	first := bot.sent[0].(tgbotapi.MessageConfig)
	second := bot.sent[1].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(42), first.ChatID)
	assert.Equal(t, strings.Repeat("x", 2000), first.Text)
	assert.Equal(t, strings.Repeat("y", 1500), second.Text)
}

func TestTelegramDeliverFileSendsDocument(t *testing.T) {
	bot := &fakeBot{}
	sink := newTelegram(bot, 42, 2000, nil)
	src := writeArchive(t, t.TempDir(), "shop.tar.gz", "archive-bytes")

	require.NoError(t, sink.DeliverFile(context.Background(), src, "Backup"))

	require.Len(t, bot.sent, 1)
	document, ok := bot.sent[0].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, tgbotapi.FilePath(src), document.File)
	assert.Contains(t, document.Caption, "shop.tar.gz")
}

func TestTelegramDeliverFileTooLargeNotifiesAndFails(t *testing.T) {
	bot := &fakeBot{}
	sink := newTelegram(bot, 42, 2000, nil)

	path := filepath.Join(t.TempDir(), "huge.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(telegramFileLimit+1))
	require.NoError(t, f.Close())

	err = sink.DeliverFile(context.Background(), path, "Backup")
	require.ErrorIs(t, err, ErrFileTooLarge)

	require.Len(t, bot.sent, 1)
	message, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Contains(t, message.Text, "too large to attach")
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string]string
}

func (u *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.objects == nil {
		u.objects = make(map[string]string)
	}
	u.objects[*input.Bucket+"/"+*input.Key] = string(data)
	return &s3manager.UploadOutput{}, nil
}

func TestS3DeliverFileAndText(t *testing.T) {
	up := &fakeUploader{}
	sink := newS3(up, "backups", "/docsnap/", nil)
	sink.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	src := writeArchive(t, t.TempDir(), "shop.tar.gz", "archive-bytes")
	require.NoError(t, sink.DeliverFile(context.Background(), src, "Backup"))
	require.NoError(t, sink.DeliverText(context.Background(), "Backup completed"))

	assert.Equal(t, map[string]string{
		"backups/docsnap/shop.tar.gz":                "archive-bytes",
		"backups/docsnap/report-20260102_030405.txt": "Backup completed",
	}, up.objects)
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(context.Background(), config.DeliveryConfig{Kind: "carrier-pigeon"}, nil)
	require.Error(t, err)

	sink, err := New(context.Background(), config.DeliveryConfig{Kind: "local"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, sink)
}
