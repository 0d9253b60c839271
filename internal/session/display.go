package session

import (
	"time"

	"github.com/strudel-ai/strudel/pkg/types"
)

// projectDisplayRows derives the frontend-facing projection of a batch of
// appended turns. Every user turn becomes a row; of the assistant turns only
// the last one with text is kept, so intermediate tool-call chatter never
// reaches the display index.
func projectDisplayRows(turns []types.Turn) []types.DisplayRow {
	now := time.Now().UTC().Format(time.RFC3339)

	lastAssistant := -1
	for i := len(turns) - 1; i >= 0; i-- {
		if a, ok := turns[i].(*types.AssistantTurn); ok && a.Text != "" {
			lastAssistant = i
			break
		}
	}

	var rows []types.DisplayRow
	for i, turn := range turns {
		switch t := turn.(type) {
		case *types.UserTurn:
			rows = append(rows, types.DisplayRow{
				Role:      "user",
				Content:   t.Text,
				Timestamp: now,
			})
		case *types.AssistantTurn:
			if i == lastAssistant {
				rows = append(rows, types.DisplayRow{
					Role:      "assistant",
					Content:   t.Text,
					Timestamp: now,
				})
			}
		}
	}
	return rows
}
