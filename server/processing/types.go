// Package processing turns a validated dispute into the two-message
// conversation sent to the text generation provider and shapes the result.
package processing

// Role values of a conversation message.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is a single role/content pair of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Dispute is the normalized set of prompt fields extracted from a request.
// Which fields are populated depends on the active input shape: the flat
// shape fills Creditor, DefaultAmount and BreachDetails; the nested shape
// fills Name, PostContent and BreachDetails.
type Dispute struct {
	Shape         string
	Creditor      string
	DefaultAmount string
	BreachDetails string
	Name          string
	PostContent   string
}

// Response is the generated dispute letter.
type Response struct {
	DisputeLetter string `json:"dispute_letter"`
}
