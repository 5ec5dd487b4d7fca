// Package telegram provides a client for sending notifications via Telegram Bot API.
// It formats the outcome of a pipeline run, the reappointment trend verdict in
// particular, into a human-readable message and handles delivery with retry logic.
//
// Messages use MarkdownV2; every piece of dynamic text is escaped before it is
// embedded.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/reappoint/internal/models"
)

// sender is the part of the bot API the client uses
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendTrend sends the outcome of a run. result may be nil when the trend
// could not be fitted; the run's TrendError is reported instead.
func (c *Client) SendTrend(run *models.RunSummary, result *models.TrendResult) error {
	msg := tgbotapi.NewMessage(c.chatID, formatMessage(run, result))
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatMessage formats a run and its trend into a Telegram message
func formatMessage(run *models.RunSummary, result *models.TrendResult) string {
	var b strings.Builder

	b.WriteString("📊 *Reappointment Trend*\n\n")
	fmt.Fprintf(&b, "🗂 Run: `%s`\n", escapeMarkdownV2(run.ID))
	fmt.Fprintf(&b, "📅 Started: %s\n", escapeMarkdownV2(run.StartedAt.Format("2006-01-02 15:04:05")))
	fmt.Fprintf(&b, "📄 Records: %d, reappointments: %d", run.Records, run.Reappointments)
	if run.InvalidYears > 0 {
		fmt.Fprintf(&b, ", undated: %d", run.InvalidYears)
	}
	b.WriteString("\n\n")

	if result == nil {
		reason := run.TrendError
		if reason == "" {
			reason = "no trend was fitted"
		}
		fmt.Fprintf(&b, "⚠️ Trend unavailable: %s\n", escapeMarkdownV2(reason))
		return b.String()
	}

	emoji := "➡️"
	switch result.Direction {
	case models.DirectionIncreasing:
		emoji = "📈"
	case models.DirectionDecreasing:
		emoji = "📉"
	}

	first, last := result.Years[0], result.Years[len(result.Years)-1]
	verdict := "not significant"
	if result.Significant {
		verdict = "significant"
	}

	fmt.Fprintf(&b, "%s *%s* \\(%s\\), %s\n",
		emoji,
		escapeMarkdownV2(result.Direction),
		escapeMarkdownV2(verdict),
		escapeMarkdownV2(result.EffectSize+" effect"))
	fmt.Fprintf(&b, "   Years: %s\n", escapeMarkdownV2(fmt.Sprintf("%d–%d", first, last)))
	fmt.Fprintf(&b, "   Slope: %s per year\n", escapeMarkdownV2(percentagePoints(result.Slope)))
	fmt.Fprintf(&b, "   95%% CI: %s\n", escapeMarkdownV2(fmt.Sprintf("[%s, %s]",
		percentagePoints(result.ConfidenceInterval.Lower), percentagePoints(result.ConfidenceInterval.Upper))))
	fmt.Fprintf(&b, "   Total change: %s\n", escapeMarkdownV2(percentagePoints(result.TotalChange())))
	fmt.Fprintf(&b, "   p: %s, R²: %s\n",
		escapeMarkdownV2(strconv.FormatFloat(result.PValue, 'g', 4, 64)),
		escapeMarkdownV2(strconv.FormatFloat(result.RSquared, 'f', 3, 64)))

	return b.String()
}

// percentagePoints formats a proportion difference as signed percentage points
func percentagePoints(v float64) string {
	return fmt.Sprintf("%+.2f pp", v*100)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . !
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
