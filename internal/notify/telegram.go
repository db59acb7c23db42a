// Package notify sends booking and sync notices to the parish office Telegram chats.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"parish/internal/domain"
	"parish/internal/events"
	"parish/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type TelegramNotifier struct {
	sender domain.TelegramSender
	chats  []int64
	loc    *time.Location
	logger *zerolog.Logger
}

// NewBotAPI connects to Telegram with the given token.
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

// NewTelegramNotifier formats booking times in loc, the parish time zone.
func NewTelegramNotifier(sender domain.TelegramSender, chats []int64, loc *time.Location, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if loc == nil {
		loc = time.Local
	}
	return &TelegramNotifier{sender: sender, chats: chats, loc: loc, logger: logger}
}

// Notify sends text to every admin chat. The first failure is returned
// after all chats have been tried.
func (n *TelegramNotifier) Notify(text string) error {
	var firstErr error
	for _, chatID := range n.chats {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if _, err := n.sender.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Handle turns booking events into admin notices. Other events are ignored.
func (n *TelegramNotifier) Handle(event *events.Event) error {
	var title string
	switch event.Type {
	case events.EventBookingCreated:
		title = "🆕 New booking request"
	case events.EventBookingApproved:
		title = "✅ Booking approved"
	case events.EventBookingDeclined:
		title = "❌ Booking declined"
	default:
		return nil
	}

	var p events.BookingEventPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	return n.Notify(bookingText(title, p, n.loc))
}

func bookingText(title string, p events.BookingEventPayload, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", title)
	fmt.Fprintf(&b, "🏢 Resource: %s\n", p.ResourceName)
	fmt.Fprintf(&b, "📅 %s – %s\n", p.Start.In(loc).Format(models.DateTimeLayout), p.End.In(loc).Format("15:04"))
	if p.MemberName != "" {
		fmt.Fprintf(&b, "👤 Member: %s\n", p.MemberName)
	}
	if p.Purpose != "" {
		fmt.Fprintf(&b, "💬 Purpose: %s\n", p.Purpose)
	}
	if p.ChangedBy != "" && p.ChangedBy != "member" {
		fmt.Fprintf(&b, "✍️ By: %s\n", p.ChangedBy)
	}
	fmt.Fprintf(&b, "🆔 Booking: %d", p.BookingID)
	return b.String()
}

// FailedSyncReport formats the daily summary of sync tasks that gave up.
func FailedSyncReport(tasks []models.SyncTask) string {
	if len(tasks) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Sheets sync: %d failed task(s)\n", len(tasks))
	for i, t := range tasks {
		if i == 10 {
			fmt.Fprintf(&b, "… and %d more", len(tasks)-i)
			break
		}
		reason := "unknown error"
		if t.LastError != nil && *t.LastError != "" {
			reason = *t.LastError
		}
		fmt.Fprintf(&b, "\n#%d %s booking %d: %s", t.ID, t.TaskType, t.BookingID, reason)
	}
	return b.String()
}
