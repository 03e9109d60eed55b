package choir

import (
	"fmt"
	"strings"
)

// Role is one fan-out agent's persona. Its index in Options.Roles is its
// position in the plan and in the results.
type Role struct {
	Title    string // e.g. "Direct Analysis Expert"
	Approach string // plan entry name, e.g. "Direct analysis"
	Output   string // what detailed_response should contain
	Thoughts string // what thoughts should contain
	Guidance string // closing instruction
}

// DefaultRoles are the five standard agents.
func DefaultRoles() []Role {
	return []Role{
		{
			Title:    "Direct Analysis Expert",
			Approach: "Direct analysis",
			Output:   "Your comprehensive analysis",
			Thoughts: "Your analytical thoughts and reasoning",
			Guidance: "Be precise and methodical in your analysis.",
		},
		{
			Title:    "Critical Evaluator",
			Approach: "Critical evaluation",
			Output:   "Your comprehensive evaluation",
			Thoughts: "Your critical thoughts and concerns",
			Guidance: "Question assumptions and identify potential issues.",
		},
		{
			Title:    "Context Specialist",
			Approach: "Contextual analysis",
			Output:   "Your contextual analysis",
			Thoughts: "Your thoughts on context and connections",
			Guidance: "Consider broader context, connections, and underlying patterns.",
		},
		{
			Title:    "Creative Interpreter",
			Approach: "Creative interpretation",
			Output:   "Your creative interpretation",
			Thoughts: "Your innovative thoughts and perspectives",
			Guidance: "Think creatively while staying grounded in facts.",
		},
		{
			Title:    "Synthesis Expert",
			Approach: "Comprehensive synthesis",
			Output:   "Your comprehensive synthesis",
			Thoughts: "Your integrative thoughts and conclusions",
			Guidance: "Integrate different viewpoints and provide comprehensive analysis.",
		},
	}
}

var ordinals = []string{"first", "second", "third", "fourth", "fifth", "sixth", "seventh", "eighth", "ninth", "tenth"}

func ordinal(i int) string {
	if i < len(ordinals) {
		return ordinals[i]
	}
	return fmt.Sprintf("%dth", i+1)
}

func plannerPrompt(roles []Role) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the task master coordinating %d expert agents.\n", len(roles))
	fmt.Fprintf(&b, "Given the user's query and any data we've gathered, create %d distinct analytical approaches:\n", len(roles))
	for i, r := range roles {
		fmt.Fprintf(&b, "%d. %s approach\n", i+1, r.Approach)
	}
	b.WriteString("\nBe specific about what each agent should focus on. Each approach must be unique and must not overlap with another.\n")
	b.WriteString("You are not solving the problem; you are delegating it.")
	return b.String()
}

func agentPrompt(i int, r Role) string {
	return fmt.Sprintf(`You are Agent %d: %s. Focus on the %s assigned approach only.
You MUST respond with a valid JSON object containing exactly these three fields:
- "detailed_response": %s (multiple paragraphs)
- "short_overview": Brief 2-3 sentence summary
- "thoughts": %s
%s`, i+1, r.Title, ordinal(i), r.Output, r.Thoughts, r.Guidance)
}

func assessmentPrompt(n int) string {
	return fmt.Sprintf(`You are chorus.
There have been %d distinctly unique sub agents. Each of these agents has been given a task to solve.
Assess the results of each agent and determine the best course of action.
Think VERY hard and weigh the pros and cons of each approach, then decide on a final course of action with the best result.
You may only use information provided by the sub agents. Ignore any agent whose response says it failed.
The result can combine approaches or follow a single one. Do not repeat yourself.
Respond IN MARKDOWN FORMAT with:
A brief overview of all results.
The actual answer: the best answer you decided on, to the point and in a form the user would understand.
More info.
Post game thoughts on each agent's approach.`, n)
}

const synthesisPrompt = `You are the final summary agent. Your job is to provide the user with a direct, accurate answer to their question.
You have access to webpage content and analysis from multiple expert agents.
Be specific and factual. If you can answer the user's question directly, do so.
Do not say "the agents didn't find" unless you're absolutely certain the information isn't in the data provided.`

func assessmentInput(agents []AgentResponse) string {
	lines := make([]string, len(agents))
	for i, a := range agents {
		lines[i] = fmt.Sprintf("Agent %d: %s", i+1, a.DetailedResponse)
	}
	return strings.Join(lines, "\n")
}

func synthesisInput(query, assessment string, agents []AgentResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User's original query: %s\n\nExpert analysis: %s\n\nDetailed agent responses:", query, assessment)
	for i, a := range agents {
		fmt.Fprintf(&b, "\n%d. %s", i+1, a.DetailedResponse)
	}
	return b.String()
}
