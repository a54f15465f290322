package imagen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt_DescriptionOnly(t *testing.T) {
	prompt := BuildPrompt(&GenerateRequest{Description: "a rusty lantern"})
	assert.Equal(t, "a rusty lantern", prompt)
}

func TestBuildPrompt_WithCategoryAndDirection(t *testing.T) {
	prompt := BuildPrompt(&GenerateRequest{
		Description: "a goblin scout",
		Category:    "character",
		Direction:   "back-left",
	})

	assert.Contains(t, prompt, "a goblin scout")
	assert.Contains(t, prompt, "character asset")
	// 하이픈은 공백으로 풀어서 씀
	assert.Contains(t, prompt, "viewed from the back left")
}

func TestBuildPrompt_ReferenceConsistencyClause(t *testing.T) {
	withRef := BuildPrompt(&GenerateRequest{
		Description:          "a goblin scout",
		Direction:            "left",
		ReferenceImageBase64: "cmVm",
		ReferenceDirection:   "front",
	})
	withoutRef := BuildPrompt(&GenerateRequest{
		Description: "a goblin scout",
		Direction:   "left",
	})

	assert.Contains(t, withRef, "consistent with the attached front view reference image")
	assert.NotContains(t, withoutRef, "reference image")
}

func TestDecodeBase64Image(t *testing.T) {
	// 순수 base64
	data, err := decodeBase64Image("aGVsbG8=")
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	// data URL prefix 포함
	data, err = decodeBase64Image("data:image/png;base64,aGVsbG8=")
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = decodeBase64Image("!!not-base64!!")
	assert.Error(t, err)
}
