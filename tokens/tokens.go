package tokens

import (
	"fmt"
	"sync"

	"github.com/jctechlabs/jarvis/constants/lipgloss"
	"github.com/jctechlabs/jarvis/tokens/contracts"
)

// tokenManager accumulates token usage across all sessions. Reply decoders report
// usage from pool workers, so all counters sit behind one mutex.
type tokenManager struct {
	mu              sync.Mutex
	usedToken       int
	usedInputToken  int
	usedOutputToken int
}

// NewTokenManager creates a new token manager
func NewTokenManager() contracts.ITokenManagement {
	return &tokenManager{}
}

// UsedTokens adds one reply's token counts to the running totals.
func (tm *tokenManager) UsedTokens(inputTokens int, outputTokens int) {
	tm.mu.Lock()
	tm.usedInputToken += inputTokens
	tm.usedOutputToken += outputTokens
	tm.usedToken += inputTokens + outputTokens
	tm.mu.Unlock()
}

func (tm *tokenManager) GetCurrentTokenUsage() (total int, input int, output int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.usedToken, tm.usedInputToken, tm.usedOutputToken
}

func (tm *tokenManager) DisplayTokens(model string) {
	total, input, output := tm.GetCurrentTokenUsage()
	tokenInfo := fmt.Sprintf("Token Used: %d (Input: %d, Output: %d) - Model: %s", total, input, output, model)
	fmt.Println(lipgloss.BoxStyle.Render(tokenInfo))
}

func (tm *tokenManager) ClearToken() {
	tm.mu.Lock()
	tm.usedToken = 0
	tm.usedInputToken = 0
	tm.usedOutputToken = 0
	tm.mu.Unlock()
}
