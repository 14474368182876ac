package tracker

import (
	"fmt"
	"strconv"
	"strings"
)

// ProbFileInfo is the parsed form of a chat correlation filename,
// PROB_<id>_<ns-timestamp>.txt or PROB_<id>_<ns-timestamp>.output.txt.
type ProbFileInfo struct {
	ID        uint64
	Timestamp int64
	IsOutput  bool
}

// ParseProbFilename parses a correlation filename. Only the .txt and
// .output.txt suffixes are accepted.
func ParseProbFilename(filename string) (ProbFileInfo, bool) {
	if !strings.HasPrefix(filename, "PROB_") {
		return ProbFileInfo{}, false
	}

	isOutput := strings.HasSuffix(filename, ".output.txt")
	isInput := strings.HasSuffix(filename, ".txt") && !isOutput

	if !isInput && !isOutput {
		return ProbFileInfo{}, false
	}

	body := filename[len("PROB_"):]
	if isOutput {
		body = strings.TrimSuffix(body, ".output.txt")
	} else {
		body = strings.TrimSuffix(body, ".txt")
	}

	sep := strings.Index(body, "_")
	if sep < 0 {
		return ProbFileInfo{}, false
	}

	id, err := strconv.ParseUint(body[:sep], 10, 64)
	if err != nil {
		return ProbFileInfo{}, false
	}
	ts, err := strconv.ParseInt(body[sep+1:], 10, 64)
	if err != nil {
		return ProbFileInfo{}, false
	}

	return ProbFileInfo{ID: id, Timestamp: ts, IsOutput: isOutput}, true
}

// FormatProbFilename renders the canonical filename for info. The id must
// round-trip exactly through ParseProbFilename.
func FormatProbFilename(info ProbFileInfo) string {
	if info.IsOutput {
		return fmt.Sprintf("PROB_%d_%d.output.txt", info.ID, info.Timestamp)
	}
	return fmt.Sprintf("PROB_%d_%d.txt", info.ID, info.Timestamp)
}
