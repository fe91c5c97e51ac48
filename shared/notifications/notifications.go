package notifications

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/trypto13/jeet-tracker/shared/env"
)

var bot *tgbotapi.BotAPI
var isInitialized bool = false
var telegramLimiter *rate.Limiter

func InitTelegramBot() error {
	if isInitialized && bot != nil {
		log.Println("INFO: Telegram bot already initialized.")
		return nil
	}

	isInitialized = false
	bot = nil
	telegramLimiter = nil

	botToken := env.TelegramBotToken
	if botToken == "" {
		return fmt.Errorf("critical error: TELEGRAM_BOT_TOKEN missing from env configuration")
	}

	log.Println("Initializing Telegram bot API...")
	var err error
	bot, err = tgbotapi.NewBotAPI(botToken)
	if err != nil {
		bot = nil
		return fmt.Errorf("failed to initialize Telegram bot API: %w", err)
	}
	log.Println("Verifying bot token with Telegram API (GetMe)...")
	userInfo, err := bot.GetMe()
	if err != nil {
		bot = nil
		return fmt.Errorf("failed to verify bot token with GetMe API call: %w", err)
	}
	isInitialized = true
	// Telegram allows ~30 msg/sec overall but throttles per-chat far lower.
	telegramLimiter = rate.NewLimiter(rate.Limit(1), 3)
	log.Printf("Telegram bot initialized successfully for @%s", userInfo.UserName)

	if env.AdminChatID != 0 {
		SendAdminLog(fmt.Sprintf("Bot connected successfully (@%s). Ready.", userInfo.UserName))
	}
	return nil
}

func GetBotInstance() *tgbotapi.BotAPI {
	if !isInitialized || bot == nil {
		log.Println("WARN: GetBotInstance called but bot is not initialized or initialization failed.")
	}
	return bot
}

// SendMessage delivers a Markdown-formatted message to the given chat,
// waiting on the global limiter and retrying on transient Telegram errors.
func SendMessage(chatID int64, text string) error {
	return sendMessageWithRetry(chatID, text)
}

// SendAdminLog mirrors an operational message to the admin chat, if configured.
func SendAdminLog(message string) {
	if env.AdminChatID == 0 {
		return
	}
	if err := sendMessageWithRetry(env.AdminChatID, message); err != nil {
		log.Printf("ERROR: Failed to deliver admin log message: %v", err)
	}
}

func sendMessageWithRetry(chatID int64, text string) error {
	if telegramLimiter != nil {
		if err := telegramLimiter.Wait(context.Background()); err != nil {
			log.Printf("ERROR: Telegram rate limiter wait error for chat %d: %v. Proceeding with send attempt...", chatID, err)
		}
	}
	if bot == nil {
		return fmt.Errorf("cannot send message, Telegram bot is not initialized")
	}
	if chatID == 0 {
		return fmt.Errorf("cannot send message, target chatID is 0")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	maxRetries := 3
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		_, err := bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if tgErr, ok := err.(*tgbotapi.Error); ok {
			log.Printf("ERROR: Failed Telegram send (Attempt %d/%d): API Err %d - %s [ChatID: %d]",
				i+1, maxRetries, tgErr.Code, tgErr.Message, chatID)
			if tgErr.Code == 429 {
				retryAfter := tgErr.RetryAfter
				if retryAfter <= 0 {
					retryAfter = 1
				}
				time.Sleep(time.Duration(retryAfter) * time.Second)
				continue
			}
			if tgErr.Code == 400 && strings.Contains(tgErr.Message, "can't parse entities") {
				// Malformed Markdown in the payload; strip the parse mode and retry once.
				msg.ParseMode = ""
				continue
			}
			if tgErr.Code == 403 {
				// Bot was blocked or kicked from the chat. Not retryable.
				return fmt.Errorf("telegram chat %d unreachable: %w", chatID, err)
			}
		} else {
			log.Printf("ERROR: Failed Telegram send (Attempt %d/%d): %v [ChatID: %d]", i+1, maxRetries, err, chatID)
		}

		if i < maxRetries-1 {
			waitDuration := time.Duration(math.Pow(2, float64(i))) * time.Second
			time.Sleep(waitDuration)
		}
	}
	return fmt.Errorf("telegram message to chat %d failed after %d retries: %w", chatID, maxRetries, lastErr)
}

// Sender adapts the package-level send functions to the Messenger interface
// consumed by the notifier and the command surface.
type Sender struct{}

func (Sender) SendMessage(chatID int64, text string) error {
	return SendMessage(chatID, text)
}

func EscapeMarkdown(s string) string {
	charsToEscape := []string{"_", "*", "[", "`"}
	temp := s
	for _, char := range charsToEscape {
		temp = strings.ReplaceAll(temp, char, "\\"+char)
	}
	return temp
}
