// Package delivery publishes generated audio to a Telegram channel.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// MaxUploadSize is the largest file the Bot API accepts.
const MaxUploadSize = 50 << 20

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 2 * time.Second
)

var (
	// ErrFileNotFound is returned when the audio file to send does not exist.
	ErrFileNotFound = errors.New("audio file not found")
	// ErrFileTooLarge is returned for files above MaxUploadSize.
	ErrFileTooLarge = errors.New("audio file too large")
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetMe() (tgbotapi.User, error)
}

// chat addresses either a numeric chat ID or an @channel username.
type chat struct {
	id       int64
	username string
}

func parseChat(channelID string) (chat, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return chat{}, errors.New("telegram channel id is empty")
	}
	if id, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		return chat{id: id}, nil
	}
	if !strings.HasPrefix(channelID, "@") {
		channelID = "@" + channelID
	}
	return chat{username: channelID}, nil
}

func (c chat) String() string {
	if c.username != "" {
		return c.username
	}
	return strconv.FormatInt(c.id, 10)
}

func (c chat) apply(base *tgbotapi.BaseChat) {
	base.ChatID = c.id
	base.ChannelUsername = c.username
}

// Telegram sends audio files and notices to one channel.
type Telegram struct {
	api            telegramAPI
	chat           chat
	maxRetries     int
	baseDelay      time.Duration
	retryAfterUnit time.Duration
	limiter        *rate.Limiter
	log            *slog.Logger
}

// New connects to the Bot API with token and targets channelID, which is
// either a numeric chat ID or an @username.
func New(token, channelID string, maxRetries int, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return NewWithAPI(api, channelID, maxRetries, log)
}

// NewWithAPI creates a Telegram sender on top of an existing API client.
func NewWithAPI(api telegramAPI, channelID string, maxRetries int, log *slog.Logger) (*Telegram, error) {
	c, err := parseChat(channelID)
	if err != nil {
		return nil, err
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Telegram{
		api:            api,
		chat:           c,
		maxRetries:     maxRetries,
		baseDelay:      defaultBaseDelay,
		retryAfterUnit: time.Second,
		// Channels accept roughly 20 posts per minute.
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 1),
		log:     log,
	}, nil
}

// Caption builds the text shown under an audio post.
func Caption(title, sourceURL string) string {
	return fmt.Sprintf("🎧 %s\n\n📎 Source: %s", title, sourceURL)
}

// SendAudio uploads the file at path with a caption linking sourceURL.
func (t *Telegram) SendAudio(ctx context.Context, path, title, sourceURL string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("send audio %s: %w", path, ErrFileNotFound)
		}
		return fmt.Errorf("stat audio: %w", err)
	}
	if info.Size() > MaxUploadSize {
		return fmt.Errorf("send audio %s (%s): %w", path, humanize.IBytes(uint64(info.Size())), ErrFileTooLarge) //nolint:gosec // size is non-negative
	}

	audio := tgbotapi.NewAudio(0, tgbotapi.FilePath(path))
	t.chat.apply(&audio.BaseChat)
	audio.Caption = Caption(title, sourceURL)
	audio.Title = title

	t.log.Info("sending audio",
		"chat", t.chat.String(),
		"file", filepath.Base(path),
		"size", humanize.IBytes(uint64(info.Size())), //nolint:gosec // size is non-negative
		"title", title,
	)
	if _, err := t.send(ctx, audio); err != nil {
		t.log.Error("send audio failed", "title", title, "error", err)
		return fmt.Errorf("send audio: %w", err)
	}
	t.log.Info("audio sent", "title", title)
	return nil
}

// SendMessage posts an HTML-formatted text message.
func (t *Telegram) SendMessage(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(0, text)
	t.chat.apply(&msg.BaseChat)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.send(ctx, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Verify checks the token and returns the bot username.
func (t *Telegram) Verify(_ context.Context) (string, error) {
	me, err := t.api.GetMe()
	if err != nil {
		return "", fmt.Errorf("get me: %w", err)
	}
	t.log.Info("telegram bot verified", "username", me.UserName)
	return me.UserName, nil
}

// send delivers c with up to maxRetries attempts. A rate-limit response
// replaces the next backoff delay with the server supplied wait.
func (t *Telegram) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	var (
		msg      tgbotapi.Message
		attempt  int
		override time.Duration
	)

	exp := retry.WithMaxRetries(uint64(t.maxRetries-1), retry.NewExponential(t.baseDelay)) //nolint:gosec // maxRetries is positive
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := exp.Next()
		if stop {
			return 0, true
		}
		if override > 0 {
			next, override = override, 0
		}
		return next, false
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
		attempt++

		m, err := t.api.Send(c)
		if err == nil {
			msg = m
			return nil
		}

		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			override = time.Duration(apiErr.RetryAfter) * t.retryAfterUnit
			t.log.Warn("telegram rate limit", "retry_after", override, "attempt", attempt, "of", t.maxRetries)
		} else {
			t.log.Error("telegram send failed", "attempt", attempt, "of", t.maxRetries, "error", err)
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return tgbotapi.Message{}, err
	}
	return msg, nil
}
