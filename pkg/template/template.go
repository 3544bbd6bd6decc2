// Package template renders notification message templates against history
// event data.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/machshop/approvalflow/pkg/events"
)

// Render executes a Go text template against arbitrary data and returns the
// trimmed result.
func Render(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("message").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// RenderForEvent renders a template against a history event. The payload is
// exposed both nested and flattened, so templates can say {{.assignee}}
// instead of {{.payload.assignee}}.
func RenderForEvent(templateStr string, event *events.HistoryEvent) (string, error) {
	data := map[string]any{
		"event_type":    string(event.Type),
		"instance_id":   event.InstanceID,
		"assignment_id": event.AssignmentID,
		"actor":         event.Actor,
		"timestamp":     event.Timestamp.Format(time.RFC3339),
		"payload":       event.Payload,
	}

	if event.StageNumber != nil {
		data["stage_number"] = *event.StageNumber
	}

	for key, value := range event.Payload {
		if _, taken := data[key]; !taken {
			data[key] = value
		}
	}

	return Render(templateStr, data)
}
