package models

import "time"

// Message is the single normalized inbound shape at the core's boundary.
// Gateway adapters convert each upstream representation into it; nothing
// inside the core inspects raw chat-platform payloads.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Embeds    []Embed   `json:"embeds,omitempty"`
}

// Embed is a structured, field-based attachment accompanying a chat message.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Footer      string       `json:"footer,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// EmbedField is one name/value pair inside an embed.
type EmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Ref builds the provenance summary stored on orders the message affected.
func (m Message) Ref() MessageRef {
	const maxExcerpt = 100
	excerpt := m.Content
	if len(excerpt) > maxExcerpt {
		excerpt = excerpt[:maxExcerpt]
	}
	return MessageRef{
		MessageID: m.ID,
		ChannelID: m.ChannelID,
		Timestamp: m.Timestamp,
		Excerpt:   excerpt,
	}
}

// JournalEntry records one inbound message and whether it produced an order
// event. Entries are append-only and unique by message id.
type JournalEntry struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	HasOrder  bool      `json:"has_order"`
	OrderID   string    `json:"order_id,omitempty"`
}

// Statistics are the aggregate counts exposed to the dashboard and export feed.
// ClosedOrders includes expired orders; Wins and Losses count explicitly
// closed orders with a recorded PnL.
type Statistics struct {
	TotalOrders   int `json:"total_orders"`
	OpenOrders    int `json:"open_orders"`
	ClosedOrders  int `json:"closed_orders"`
	ExpiredOrders int `json:"expired_orders"`
	Wins          int `json:"wins"`
	Losses        int `json:"losses"`
	TotalMessages int `json:"total_messages"`
}
