package contracts

// ReplyParser gives the dispatcher uniform access to a decoded API reply.
// HasContent returns the number of content blocks; GetContent returns the
// text of one block.
type ReplyParser interface {
	HasContent() int
	GetContent(index int) string
}
