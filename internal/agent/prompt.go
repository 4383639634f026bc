package agent

import (
	"fmt"
	"strings"

	"github.com/abhinav155942/wobble/pkg/models"
)

const defaultPersona = "You are a helpful customer support agent. Answer clearly and accurately, and say so when you do not know something."

// conversationStyleBlock and formattingBlock apply to every agent; the
// per-agent style settings add to them rather than replacing them.
const conversationStyleBlock = `- Be friendly, warm and approachable.
- Use natural, conversational language.
- Show empathy and acknowledge the user's concerns.
- Keep responses clear and concise.
- Ask clarifying questions when something is ambiguous.`

const formattingBlock = `- Use **bold** for emphasis.
- Use markdown tables for tabular data.
- Use bullet points for lists and numbered lists for steps.
- Keep paragraphs short and scannable.`

// reasoningProtocolBlock tells the model how its tool rounds actually
// behave: calls made in one round run in parallel, results come back
// together, and it may iterate until it can conclude.
const reasoningProtocolBlock = `You can call tools over several rounds. All tools called in the same round execute in parallel, not sequentially.
1. Plan: break the task into steps.
2. Execute in parallel: call every tool a step needs at once rather than one by one.
3. Reflect: read the combined tool results and decide whether you can answer.
4. Iterate: call more tools if information is still missing.
5. Conclude: give a complete answer once you have what you need.
If one tool fails you still receive the results of the others.
Example: for weather in several cities, call the search tool for all cities in one round.`

// BuildSystemPrompt assembles the system prompt: the agent's persona and
// instructions, the fixed conversation-style, formatting and reasoning
// blocks, then retrieved memories and knowledge. Per-agent style settings
// append to the fixed blocks.
func BuildSystemPrompt(agent *models.Agent, memories []models.MemoryHit, knowledge []*models.KnowledgeChunk) string {
	var b strings.Builder

	persona := strings.TrimSpace(agent.Persona)
	if persona == "" {
		persona = defaultPersona
	}
	b.WriteString(persona)

	if instructions := strings.TrimSpace(agent.Instructions); instructions != "" {
		b.WriteString("\n\n## Instructions\n")
		b.WriteString(instructions)
	}

	b.WriteString("\n\n## Conversation style\n")
	b.WriteString(conversationStyleBlock)
	if style := styleSection(agent.Style); style != "" {
		b.WriteString("\n")
		b.WriteString(style)
	}

	b.WriteString("\n\n## Formatting\n")
	b.WriteString(formattingBlock)
	if formatting := formattingSection(agent.Style); formatting != "" {
		b.WriteString("\n")
		b.WriteString(formatting)
	}

	b.WriteString("\n\n## Multi-step reasoning\n")
	b.WriteString(reasoningProtocolBlock)
	if reasoning := reasoningSection(agent.Style); reasoning != "" {
		b.WriteString("\n")
		b.WriteString(reasoning)
	}

	if len(memories) > 0 {
		b.WriteString("\n\n## What you remember about this user\n")
		for _, hit := range memories {
			b.WriteString("- ")
			b.WriteString(hit.Memory.Content)
			b.WriteString("\n")
		}
	}

	if len(knowledge) > 0 {
		b.WriteString("\n\n## Knowledge base\n")
		for _, chunk := range knowledge {
			if chunk.Title != "" {
				fmt.Fprintf(&b, "### %s\n", chunk.Title)
			}
			b.WriteString(chunk.Content)
			b.WriteString("\n\n")
		}
	}

	return strings.TrimSpace(b.String())
}

func styleSection(style models.StyleSettings) string {
	var lines []string
	if style.Tone != "" {
		lines = append(lines, "- Tone: "+style.Tone+".")
	}
	switch style.ResponseLength {
	case "concise":
		lines = append(lines, "- Keep answers short, a few sentences at most.")
	case "detailed":
		lines = append(lines, "- Give thorough answers with relevant detail.")
	case "balanced":
		lines = append(lines, "- Balance brevity and completeness.")
	}
	if style.Formality != "" {
		lines = append(lines, "- Formality: "+style.Formality+".")
	}
	switch style.EmojiUsage {
	case "none":
		lines = append(lines, "- Do not use emoji.")
	case "minimal":
		lines = append(lines, "- Use emoji sparingly, at most one per message.")
	case "frequent":
		lines = append(lines, "- Use emoji freely where they fit the tone.")
	}
	return strings.Join(lines, "\n")
}

func formattingSection(style models.StyleSettings) string {
	switch style.Formatting {
	case "plain":
		return "- Reply in plain text without markdown markup."
	case "markdown":
		return "- Use markdown formatting (lists, bold, headings) where it improves readability."
	}
	return ""
}

func reasoningSection(style models.StyleSettings) string {
	switch style.Reasoning {
	case "quick":
		return "Answer directly from what you know before reaching for tools."
	case "thorough":
		return "Double-check facts with your tools before answering when the question is specific."
	}
	return ""
}
