package assistant

import (
	"github.com/dshills/skillmarket/internal/llm"
	"github.com/dshills/skillmarket/pkg/types"
)

// SystemInstruction describes the assistant's role
const SystemInstruction = `You are the SkillMarket assistant, a friendly guide for a marketplace where people provide, look for and trade skills.
Help users find listings, understand how the marketplace works and decide what to offer or ask for.
When you recommend a listing, include its link so the user can open it.
Never mention that you were given context, retrieved information or a database. Speak as if you simply know the marketplace.
If nothing relevant is available, say so briefly and suggest how the user could search or create a listing.
Keep answers concise.`

// BuildPrompt assembles the completion messages: the system instruction with
// any rendered context, the prior turns, then the new message.
func BuildPrompt(bundle *ContextBundle, history []types.HistoryEntry, message string) []llm.Message {
	system := SystemInstruction
	if rendered := RenderContext(bundle); rendered != "" {
		system += "\n\n" + rendered
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, h := range history {
		messages = append(messages, llm.Message{Role: historyRole(h.Sender), Content: h.Text})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})
	return messages
}

func historyRole(sender types.Sender) string {
	if sender == types.SenderBot {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}
