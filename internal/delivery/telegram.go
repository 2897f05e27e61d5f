package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kadirbelkuyu/docsnap/internal/config"
	"github.com/kadirbelkuyu/docsnap/pkg/logger"
)

// Bot API refuses uploads above this size.
const telegramFileLimit = 50 * 1024 * 1024

// ErrFileTooLarge is returned after the chat was told about a file it could not receive.
var ErrFileTooLarge = errors.New("file exceeds the telegram upload limit")

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot       telegramSender
	chatID    int64
	maxLength int
	log       *logger.Logger
}

func NewTelegram(cfg config.DeliveryConfig, log *logger.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return newTelegram(bot, cfg.ChatID, cfg.MaxMessageLength, log), nil
}

func newTelegram(bot telegramSender, chatID int64, maxLength int, log *logger.Logger) *Telegram {
	if log == nil {
		log = logger.Discard()
	}
	return &Telegram{bot: bot, chatID: chatID, maxLength: maxLength, log: log}
}

// DeliverFile sends the archive as a document. A file too large for the bot
// API is announced with a text message and reported as ErrFileTooLarge, so
// the caller keeps the archive.
func (t *Telegram) DeliverFile(ctx context.Context, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	name := filepath.Base(path)
	size := humanize.Bytes(uint64(info.Size()))

	if info.Size() > telegramFileLimit {
		t.log.Warnf("Archive %s is %s, sending a notification instead of the file", name, size)
		message := fmt.Sprintf("%s\nFile: %s\nSize: %s (too large to attach, kept on the backup host)\nTime: %s",
			caption, name, size, info.ModTime().Format("2006-01-02 15:04:05"))
		if err := t.DeliverText(ctx, message); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s is %s", ErrFileTooLarge, name, size)
	}

	document := tgbotapi.NewDocument(t.chatID, tgbotapi.FilePath(path))
	document.Caption = fmt.Sprintf("%s: %s (%s)", caption, name, size)
	if _, err := t.bot.Send(document); err != nil {
		return fmt.Errorf("failed to send telegram file: %w", err)
	}
	return nil
}

// DeliverText sends text as ordered messages of at most maxLength characters.
func (t *Telegram) DeliverText(ctx context.Context, text string) error {
	for i, segment := range Chunk(text, t.maxLength) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, segment)); err != nil {
			return fmt.Errorf("failed to send telegram message part %d: %w", i+1, err)
		}
	}
	return nil
}
