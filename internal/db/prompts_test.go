package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPrompts(t *testing.T) {
	input := strings.Join([]string{
		"category,text",
		"food, The worst pizza topping",
		",A terrible name for a boat",
		"The only column",
		"food,The worst pizza topping",
		"food,   ",
	}, "\n")

	records, err := ReadPrompts(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []PromptRecord{
		{Category: "food", Text: "The worst pizza topping"},
		{Category: "general", Text: "A terrible name for a boat"},
		{Category: "general", Text: "The only column"},
	}, records)
}

func TestReadPromptsEmpty(t *testing.T) {
	records, err := ReadPrompts(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadPromptLibraryRequiresConnection(t *testing.T) {
	_, err := LoadPromptLibrary(nil, "prompts.csv")
	assert.Error(t, err)
}
