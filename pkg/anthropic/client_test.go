package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "first"},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: " second"},
		},
	}
	assert.Equal(t, "first second", resp.Text())
}

func TestToSDKMessages_Roles(t *testing.T) {
	out := toSDKMessages([]Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	})
	assert.Len(t, out, 2)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
}

func TestToSDKSystemBlocks_CacheControl(t *testing.T) {
	out := toSDKSystemBlocks([]SystemBlock{
		{Text: "system", CacheControl: &CacheControl{TTL: "5m"}},
	})
	assert.Len(t, out, 1)
	assert.Equal(t, "system", out[0].Text)
	assert.Equal(t, "5m", string(out[0].CacheControl.TTL))
}
