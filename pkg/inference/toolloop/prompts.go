package toolloop

import (
	"bytes"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

const DefaultWorkerPrompt = "You are a helpful assistant that calls tools based on user input."

const DefaultSupervisorPrompt = "You are a helpful travel assistant. " +
	"Your goal is to provide a final, user-friendly answer based on the conversation history and tool outputs. " +
	"Summarize the tool results and present the key information clearly. " +
	"If you have found flight information, list the top 5 options with flight number, price, duration " +
	"and also your recommendation."

// PromptData is what prompt templates are rendered with.
type PromptData struct {
	Now   time.Time
	Today string
	Tools []string
}

// RenderPrompt executes a prompt template with the sprig function map.
func RenderPrompt(name, text string, data PromptData) (string, error) {
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "parse %s prompt", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render %s prompt", name)
	}
	return strings.TrimSpace(buf.String()), nil
}
