package ai

import (
	"strings"

	"resumecrew/internal/crew"
)

const finalAnswerPrompt = "You have used all the tool calls available for this task. " +
	"Do not request any more tools. Give your complete final answer now."

// SystemPrompt introduces the agent persona to the model.
func SystemPrompt(agent crew.Agent) string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(agent.Role)
	b.WriteString(".")
	if agent.Backstory != "" {
		b.WriteString(" ")
		b.WriteString(agent.Backstory)
	}
	if agent.Goal != "" {
		b.WriteString("\nYour personal goal is: ")
		b.WriteString(agent.Goal)
	}
	b.WriteString("\nWhen you have enough information, reply with your final answer only. " +
		"Do not describe what you are going to do and do not include notes about your process.")
	return b.String()
}
