package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/trypto13/jeet-tracker/internal/history"
	"github.com/trypto13/jeet-tracker/internal/identity"
	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/internal/prices"
	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/shared/config"
	"github.com/trypto13/jeet-tracker/shared/logger"
	"github.com/trypto13/jeet-tracker/shared/notifications"
)

// Dependencies are the long-lived singletons the command handlers consume.
type Dependencies struct {
	Store     *store.Store
	Resolver  *identity.Resolver
	RPC       models.ChainRPC
	Indexer   models.IndexerAPI
	Prices    *prices.Cache
	History   *history.Scanner
	Messenger models.Messenger
	Limits    config.LimitsConfig
}

var appLogger *logger.Logger
var botInstance *tgbotapi.BotAPI
var deps *Dependencies

func InitializeBot(logInstance *logger.Logger, d *Dependencies) error {
	if logInstance == nil {
		fmt.Println("FATAL ERROR: InitializeBot requires a non-nil logger instance")
		return fmt.Errorf("logger instance provided to InitializeBot is nil")
	}
	appLogger = logInstance
	deps = d
	botInstance = notifications.GetBotInstance()
	if botInstance == nil {
		appLogger.Error("Could not retrieve initialized Telegram bot instance from notifications package. Bot may not function.")
		return fmt.Errorf("failed to get tgbotapi bot instance")
	}
	appLogger.Info("Telegram bot interaction services initialized.")
	return nil
}

func StartListening(ctx context.Context) {
	if appLogger == nil {
		fmt.Println("ERROR: Logger not initialized for bot listener. Cannot start.")
		return
	}
	if botInstance == nil {
		appLogger.Warn("Bot API instance not available. Cannot start command listener.")
		return
	}
	appLogger.Info("Starting bot message/command listener...")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := botInstance.GetUpdatesChan(u)
	appLogger.Info("Listening for Telegram commands...")

	for {
		select {
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			appLogger.Zap().Debugw("Received command message",
				"chatID", update.Message.Chat.ID,
				"fromUser", update.Message.From.UserName,
				"text", update.Message.Text,
			)
			go HandleCommand(update)

		case <-ctx.Done():
			appLogger.Info("Context cancelled. Stopping Telegram listener.")
			return
		}
	}
}

func SendReply(chatID int64, text string) {
	if deps == nil || deps.Messenger == nil {
		appLogger.Error("Cannot send reply, messenger is not initialized.")
		return
	}
	if err := deps.Messenger.SendMessage(chatID, text); err != nil {
		appLogger.Error("Failed to send reply message", "chatID", chatID, "error", err)
	}
}
