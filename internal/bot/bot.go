package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Run long-polls api and hands every update to c until ctx is canceled.
// Updates are processed one at a time.
func Run(ctx context.Context, api *tgbotapi.BotAPI, c *Controller, log *zap.Logger) error {
	log.Info("authorized", zap.String("account", api.Self.UserName), zap.String("role", string(c.Role)))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping update loop", zap.String("role", string(c.Role)))
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			c.HandleUpdate(ctx, update)
		}
	}
}
