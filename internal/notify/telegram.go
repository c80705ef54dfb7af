package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"nobat/internal/config"
	"nobat/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the slice of tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier forwards booking events to an operator chat.
type TelegramNotifier struct {
	bot    Sender
	chatID int64
	log    zerolog.Logger
}

// New connects to the Telegram API using the configured bot token.
func New(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return NewWithSender(bot, cfg.ChatID, logger), nil
}

// NewWithSender wires a notifier around an existing sender.
func NewWithSender(bot Sender, chatID int64, logger *zerolog.Logger) *TelegramNotifier {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "telegram_notifier").Logger()
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, log: log}
}

// SubscribeTo registers handlers for the events operators care about.
func (n *TelegramNotifier) SubscribeTo(bus *events.EventBus) {
	bus.Subscribe(events.EventAppointmentBooked, n.handleBooked)
	bus.Subscribe(events.EventPaymentFailed, n.handlePaymentFailed)
	bus.Subscribe(events.EventPaymentAmbiguous, n.handlePaymentAmbiguous)
	bus.Subscribe(events.EventPaymentOrphaned, n.handlePaymentOrphaned)
}

func (n *TelegramNotifier) handleBooked(event *events.Event) error {
	payload, err := decodePayload(event)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("🆕 New appointment\n\n📅 Slots: %s\n📱 Phone: %s\n💳 Mode: %s",
		strings.Join(payload.Timeslots, ", "), payload.PhoneNumber, payload.Mode)
	if payload.InvoiceID != "" {
		text += fmt.Sprintf("\n🧾 Invoice: %s", payload.InvoiceID)
	}
	return n.send(text)
}

func (n *TelegramNotifier) handlePaymentFailed(event *events.Event) error {
	payload, err := decodePayload(event)
	if err != nil {
		return err
	}

	return n.send(fmt.Sprintf("❌ Payment declined\n\n📱 Phone: %s\n🧾 Invoice: %s\n💬 %s",
		payload.PhoneNumber, payload.InvoiceID, payload.Reason))
}

func (n *TelegramNotifier) handlePaymentAmbiguous(event *events.Event) error {
	payload, err := decodePayload(event)
	if err != nil {
		return err
	}

	return n.send(fmt.Sprintf("⚠️ Payment verification inconclusive, manual check needed\n\n📱 Phone: %s\n🧾 Invoice: %s\n🔖 Trans: %s\n💬 %s",
		payload.PhoneNumber, payload.InvoiceID, payload.TransID, payload.Reason))
}

func (n *TelegramNotifier) handlePaymentOrphaned(event *events.Event) error {
	payload, err := decodePayload(event)
	if err != nil {
		return err
	}

	return n.send(fmt.Sprintf("🚨 Payment captured but slots were lost, refund needed\n\n📅 Slots: %s\n📱 Phone: %s\n🧾 Invoice: %s\n🔖 Trans: %s",
		strings.Join(payload.Timeslots, ", "), payload.PhoneNumber, payload.InvoiceID, payload.TransID))
}

func (n *TelegramNotifier) send(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Error().Err(err).Msg("telegram send failed")
		return err
	}
	return nil
}

func decodePayload(event *events.Event) (events.BookingEventPayload, error) {
	var payload events.BookingEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	return payload, nil
}
