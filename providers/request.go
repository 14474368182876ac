package providers

import (
	"fmt"

	"github.com/jctechlabs/jarvis/config"
	"github.com/jctechlabs/jarvis/providers/api1"
	"github.com/jctechlabs/jarvis/providers/api2"
	"github.com/jctechlabs/jarvis/providers/contracts"
	tokens "github.com/jctechlabs/jarvis/tokens/contracts"
	"github.com/jctechlabs/jarvis/utils"
	"go.uber.org/zap"
)

// BuildRequestBody renders the request document for the configured dialect.
// The message is sanitized for the JSON string context here; callers pass
// the raw prompt text.
func BuildRequestBody(dialect config.InterfaceType, model string, message string, store bool) string {
	sanitized := utils.SanitizeForJSON(message)
	switch dialect {
	case config.API2:
		return fmt.Sprintf(`{"model": "%s", "input": "%s", "store": %t}`, model, sanitized, store)
	default:
		return fmt.Sprintf(`{"model": "%s","messages": [{"role": "user", "content": "%s"}]}`, model, sanitized)
	}
}

// NewReplyParser decodes a reply body with the parser matching the dialect.
func NewReplyParser(dialect config.InterfaceType, body []byte, tm tokens.ITokenManagement, log *zap.SugaredLogger) contracts.ReplyParser {
	switch dialect {
	case config.API2:
		return api2.NewReplyParser(body, tm, log)
	default:
		return api1.NewReplyParser(body, tm, log)
	}
}
