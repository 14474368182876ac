package api2

import (
	"encoding/json"

	"github.com/jctechlabs/jarvis/providers/contracts"
	"github.com/jctechlabs/jarvis/providers/models"
	tokens "github.com/jctechlabs/jarvis/tokens/contracts"
	"go.uber.org/zap"
)

// ReplyParser decodes responses style replies. Output items without a
// non-empty output_text block are dropped.
type ReplyParser struct {
	outputs  []models.API2Output
	hasError bool
	log      *zap.SugaredLogger
}

// NewReplyParser decodes body and reports usage to the token manager.
func NewReplyParser(body []byte, tm tokens.ITokenManagement, log *zap.SugaredLogger) contracts.ReplyParser {
	p := &ReplyParser{log: log}

	var reply models.API2Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		log.Errorw("api2 reply parse failed", "error", err)
		p.hasError = true
		return p
	}

	if reply.Error != nil && reply.Error.Message != "" {
		log.Errorw("api2 reply carried an error",
			"message", reply.Error.Message,
			"type", reply.Error.Type,
			"code", reply.Error.Code)
		p.hasError = true
		return p
	}

	for _, output := range reply.Output {
		if firstText(output) == "" {
			log.Warnw("api2 output discarded because it had no content", "outputID", output.ID)
			continue
		}
		p.outputs = append(p.outputs, output)
	}

	if reply.Usage != nil {
		tm.UsedTokens(reply.Usage.InputTokens, reply.Usage.OutputTokens)
	}
	return p
}

// HasContent returns the number of output items with text content.
func (p *ReplyParser) HasContent() int {
	if p.hasError {
		return 0
	}
	return len(p.outputs)
}

// GetContent returns the first output_text block of one output item.
func (p *ReplyParser) GetContent(index int) string {
	if p.hasError || index >= len(p.outputs) {
		p.log.Errorw("api2 content index out of range", "index", index)
		return ""
	}
	return firstText(p.outputs[index])
}

func firstText(output models.API2Output) string {
	for _, content := range output.Content {
		if content.Type == "output_text" && content.Text != "" {
			return content.Text
		}
	}
	return ""
}
