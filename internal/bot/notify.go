package bot

import (
	"go.uber.org/zap"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notify sends a best-effort progress message to a user. The worker
// calls this between pipeline steps; a lost message never fails a task.
func (b *Bot) Notify(ownerID int64, text string) {
	b.sendText(ownerID, text)
}

// DeliverArtifact uploads the generated file to the user. Unlike
// Notify, a delivery failure is reported so the task can be refunded.
func (b *Bot) DeliverArtifact(ownerID int64, path, caption string) error {
	if b.api == nil {
		return nil // For testing
	}

	doc := tgbotapi.NewDocument(ownerID, tgbotapi.FilePath(path))
	doc.Caption = caption
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("Failed to deliver artifact",
			zap.Int64("owner_id", ownerID),
			zap.String("path", path),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// notifyAdmins fans a message out to every configured admin
func (b *Bot) notifyAdmins(msg func(adminID int64) tgbotapi.Chattable) {
	for adminID := range b.admins {
		b.sendMessage(msg(adminID))
	}
}
