package api1

import (
	"encoding/json"

	"github.com/jctechlabs/jarvis/providers/contracts"
	"github.com/jctechlabs/jarvis/providers/models"
	tokens "github.com/jctechlabs/jarvis/tokens/contracts"
	"go.uber.org/zap"
)

// ReplyParser decodes chat-completions style replies. A reply carrying an
// error object is discarded and exposes zero content blocks.
type ReplyParser struct {
	reply    models.API1Reply
	hasError bool
	log      *zap.SugaredLogger
}

// NewReplyParser decodes body and reports usage to the token manager.
func NewReplyParser(body []byte, tm tokens.ITokenManagement, log *zap.SugaredLogger) contracts.ReplyParser {
	p := &ReplyParser{log: log}

	if err := json.Unmarshal(body, &p.reply); err != nil {
		log.Errorw("api1 reply parse failed", "error", err)
		p.hasError = true
		return p
	}

	if p.reply.Error != nil && p.reply.Error.Message != "" {
		log.Errorw("api1 reply carried an error",
			"message", p.reply.Error.Message,
			"type", p.reply.Error.Type,
			"code", p.reply.Error.Code)
		p.hasError = true
		return p
	}

	if p.reply.Usage != nil {
		tm.UsedTokens(p.reply.Usage.PromptTokens, p.reply.Usage.CompletionTokens)
	}
	return p
}

// HasContent returns the number of choices in the reply.
func (p *ReplyParser) HasContent() int {
	if p.hasError {
		return 0
	}
	return len(p.reply.Choices)
}

// GetContent returns the message content of one choice.
func (p *ReplyParser) GetContent(index int) string {
	if p.hasError || index >= len(p.reply.Choices) {
		p.log.Errorw("api1 content index out of range", "index", index)
		return ""
	}
	return p.reply.Choices[index].Message.Content
}
