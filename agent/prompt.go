package agent

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/tool"
)

// agentSystemPrompt is the fixed system instruction for bare agents. All
// dynamic context (role, goal, capabilities, input) is rendered into the
// current user turn instead.
const agentSystemPrompt = `You are a helpful AI agent. The user does not see any of these messages except the last one.
Only provide the response as requested. Do not include any intros, outros, labels, or quotes around the answer.
Respond in the same language as the input. If you are not sure, respond in English.
You must adhere to the provided role and goal.`

// teamSystemPrompt extends the agent instruction for team coordinators.
const teamSystemPrompt = agentSystemPrompt + `
You must follow the plan exactly.`

var agentPromptTmpl = template.Must(template.New("agent").Parse(`Your role: {{.Role}}
{{- if .Backstory}}
Your backstory:
{{.Backstory}}
{{- end}}
{{- if .Tools}}
You can use these tools:
{{- range .Tools}}
- {{.FuncName}}: {{.Description}}
{{- end}}
{{- end}}
Input: {{.Args}}
{{- if .Approach}}
Your approach:
{{.Approach}}
{{- end}}
{{- if .Goal}}
Your goal: {{.Goal}}
{{- end}}
Do not mention the tools used in your response.`))

var teamPromptTmpl = template.Must(template.New("team").Parse(`{{.BasePrompt}}
The user cannot see any of the messages from the tools.
Tools can see each other's results.
You MUST incorporate all the information they provided into your response.
Don't mention the tools or the plan in your response.
{{- if .Plan}}
Plan:
---
{{.Plan}}
---
You must follow this plan exactly. Don't skip any steps.
{{- end}}`))

var planPromptTmpl = template.Must(template.New("plan").Parse(`{{.BasePrompt}}
---
Your job is to write a simple plan to achieve this goal.
Your plan can only use the tools provided. Do not suggest other tools.
You can use up to {{.Steps}} steps to achieve your goal.
Respond with a brief, numbered list of steps.`))

var workingMemoryTmpl = template.Must(template.New("memory").Parse(`*This is additional context that only the assistant can see.*
---
{{- range .Memory}}
## Source: {{.Name}}
### Arguments:
{{.Arguments}}
### Result:
{{.Result}}
---
{{- end}}`))

// promptTool is the slice element rendered into capability listings.
type promptTool struct {
	FuncName    string
	Description string
}

type agentPromptData struct {
	Role      string
	Goal      string
	Approach  string
	Backstory string
	Tools     []promptTool
	Args      string
}

func promptTools(tools []tool.Tool) []promptTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]promptTool, len(tools))
	for i, t := range tools {
		out[i] = promptTool{FuncName: t.FuncName(), Description: t.Description()}
	}
	return out
}

func renderAgentPrompt(data agentPromptData) (string, error) {
	return render(agentPromptTmpl, data)
}

func renderTeamPrompt(basePrompt, plan string) (string, error) {
	return render(teamPromptTmpl, struct {
		BasePrompt string
		Plan       string
	}{BasePrompt: basePrompt, Plan: plan})
}

func renderPlanPrompt(basePrompt string, steps int) (string, error) {
	return render(planPromptTmpl, struct {
		BasePrompt string
		Steps      int
	}{BasePrompt: basePrompt, Steps: steps})
}

func renderWorkingMemoryPrompt(memory []core.MemoryEntry) (string, error) {
	return render(workingMemoryTmpl, struct {
		Memory []core.MemoryEntry
	}{Memory: memory})
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// numberedList joins multi-line option values into an enumerated list. A
// single value passes through unchanged.
func numberedList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	if len(items) == 1 {
		return items[0]
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = fmt.Sprintf("%d. %s", i+1, item)
	}
	return strings.Join(lines, "\n")
}
