package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	created := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:         "0cc2795d-4798-4be1-9f45-1b5323bd8b49",
			VersionIDs: []string{"v1", "v2"},
			FieldKeys:  []string{"governing_law", "parties_entities", "payment_obligations"},
			Profile:    model.ProfileBalanced,
			Mode:       model.ModeLLM,
			Status:     model.RunStatusCompleted,
			Summary:    &model.RunSummary{CellsTotal: 6, CellsAccepted: 5, CellsFallback: 1},
			CreatedAt:  created,
		},
		{
			ID:         "f2a1b0ce-9d01-4aa8-8f2c-6a86ab20c1de",
			VersionIDs: []string{"v3"},
			FieldKeys:  []string{"governing_law"},
			Profile:    model.ProfileFast,
			Mode:       model.ModeDeterministic,
			Status:     model.RunStatusRunning,
			CreatedAt:  created,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "0cc2795d")
	assert.NotContains(t, out, "0cc2795d-4798")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "5/6")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "2026-08-25 09:30")

	// A run that has not finished shows a dash in the ACCEPTED column.
	assert.Contains(t, out, "-")
}

func TestFormatRunsList_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, nil)

	// Header rows only.
	assert.Contains(t, buf.String(), "ID")
	assert.NotContains(t, buf.String(), "completed")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "0cc2795d", truncateID("0cc2795d-4798-4be1-9f45-1b5323bd8b49"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}
