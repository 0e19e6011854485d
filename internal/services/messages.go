package services

import (
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"airdropbot/internal/models"
)

// VerifyCallbackData is the callback payload of the checklist button.
const VerifyCallbackData = "verify_tasks"

const verifyButtonText = "✅ Verify Tasks"

// MessageTexts: то, что берётся из конфига при рендеринге.
type MessageTexts struct {
	ProjectName string
	SocialLink  string
	RewardText  string
}

// MessageRenderer turns engine outcomes into Telegram messages (HTML parse mode).
type MessageRenderer struct {
	texts MessageTexts
}

func NewMessageRenderer(texts MessageTexts) *MessageRenderer {
	if texts.RewardText == "" {
		texts.RewardText = "Your reward will be sent to your wallet."
	}
	return &MessageRenderer{texts: texts}
}

// Render builds the message for out. Every message disables link previews.
func (r *MessageRenderer) Render(out models.Outbound) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(out.ChatID, r.Text(out))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	switch out.Kind {
	case models.OutboundChecklist, models.OutboundMissing:
		msg.ReplyMarkup = verifyKeyboard()
	}
	return msg
}

// Text returns the HTML body for out.
func (r *MessageRenderer) Text(out models.Outbound) string {
	switch out.Kind {
	case models.OutboundChecklist:
		return r.checklist(out)

	case models.OutboundMissing:
		var b strings.Builder
		b.WriteString("⚠️ <b>Please complete these tasks:</b>\n")
		for _, req := range out.Missing {
			b.WriteString("• " + requirementLink(req) + "\n")
		}
		b.WriteString("\nThen press the button again.")
		return b.String()

	case models.OutboundPrompt:
		switch {
		case out.Prompt == models.PromptSocialHandle:
			return "🎌 Telegram tasks verified!\n\nPlease send your X (Twitter) username (without @):"
		case out.Degraded:
			return "⚠️ X (Twitter) verification is unavailable right now, skipping this step.\n\nPlease send your SOL wallet address:"
		default:
			return "🎌 Tasks verified!\n\nPlease send your SOL wallet address:"
		}

	case models.OutboundInvalid:
		switch out.Reason {
		case models.ReasonHandleNotFound:
			return "❌ X (Twitter) account not found. Please send a valid username:"
		case models.ReasonBadWalletFormat:
			return "⛔ Invalid SOL address. Please send a valid wallet address:"
		default:
			return "⛔ Verification failed. Please try again later."
		}

	case models.OutboundConfirmation:
		return fmt.Sprintf(
			"🎉 <b>CONGRATULATIONS!</b> 🎉\n\nYou have successfully joined the %s!\n\n💰 <b>%s</b>\n\nStay tuned for more rewards!",
			r.airdropName(), html.EscapeString(r.texts.RewardText),
		)

	case models.OutboundAlready:
		return "✅ You have already completed the airdrop registration. Stay tuned!"

	case models.OutboundCancelled:
		return "🚫 Airdrop registration cancelled. Send /start to begin again."

	default:
		return "🤔 That was not expected right now. Send /start to see your tasks or /cancel to stop."
	}
}

func (r *MessageRenderer) checklist(out models.Outbound) string {
	var b strings.Builder
	greeting := "Welcome to the " + r.airdropName()
	if name := strings.TrimSpace(out.FirstName); name != "" {
		greeting += ", " + html.EscapeString(name)
	}
	fmt.Fprintf(&b, "🌸 <b>%s!</b> 🌸\n\n", greeting)
	b.WriteString("🎌 To qualify for the airdrop, complete these tasks:\n")

	n := 0
	for _, req := range out.Missing {
		n++
		fmt.Fprintf(&b, "%d. Join our %s\n", n, requirementLink(req))
	}
	if r.texts.SocialLink != "" {
		n++
		fmt.Fprintf(&b, "%d. Follow our <a href=\"%s\">X (Twitter)</a>\n", n, html.EscapeString(r.texts.SocialLink))
	}
	n++
	fmt.Fprintf(&b, "%d. Submit your SOL wallet address\n\n", n)
	b.WriteString("Click the button below when you've completed all tasks:")
	return b.String()
}

func (r *MessageRenderer) airdropName() string {
	if r.texts.ProjectName == "" {
		return "airdrop"
	}
	return html.EscapeString(r.texts.ProjectName) + " airdrop"
}

func requirementLink(req models.Requirement) string {
	title := html.EscapeString(req.Title)
	if req.Link == "" {
		return title
	}
	return fmt.Sprintf("<a href=\"%s\">%s</a>", html.EscapeString(req.Link), title)
}

func verifyKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(verifyButtonText, VerifyCallbackData),
		),
	)
}
