package providers

import (
	"encoding/json"
	"testing"

	"github.com/jctechlabs/jarvis/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequestBodyAPI1(t *testing.T) {
	body := BuildRequestBody(config.API1, "gpt-4.1", "Hello from Go!", false)

	assert.Equal(t, `{"model": "gpt-4.1","messages": [{"role": "user", "content": "Hello from Go!"}]}`, body)

	var decoded struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, "gpt-4.1", decoded.Model)
	require.Len(t, decoded.Messages, 1)
	assert.Equal(t, "user", decoded.Messages[0].Role)
}

func TestBuildRequestBodyAPI2(t *testing.T) {
	body := BuildRequestBody(config.API2, "gpt-5-nano", "write a haiku about ai", true)

	assert.Equal(t, `{"model": "gpt-5-nano", "input": "write a haiku about ai", "store": true}`, body)

	var decoded struct {
		Model string `json:"model"`
		Input string `json:"input"`
		Store bool   `json:"store"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, "write a haiku about ai", decoded.Input)
	assert.True(t, decoded.Store)
}

func TestBuildRequestBodySanitizesMessage(t *testing.T) {
	message := "line1\nline2\t\"quoted\" \\slash\r"
	body := BuildRequestBody(config.API1, "m", message, false)

	var decoded struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	require.Len(t, decoded.Messages, 1)
	assert.Equal(t, message, decoded.Messages[0].Content)
}
