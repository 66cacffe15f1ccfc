// Package chat defines the inbound event union delivered by a chat transport
// and the outbound Channel used to reply.
package chat

// Event is one inbound chat event. The set of implementations is closed:
// TextMessage, Callback, Photo and Other.
type Event interface {
	// Chat returns the conversation identity the event belongs to, or 0 when unknown.
	Chat() int64
	// Update returns the transport update id, used for log correlation.
	Update() int
	isEvent()
}

// TextMessage is a plain text message.
type TextMessage struct {
	UpdateID int
	ChatID   int64
	SenderID int64
	Text     string
}

// Callback is a button press on a previously sent choice.
type Callback struct {
	UpdateID int
	// ID identifies the callback query for AnswerCallback.
	ID     string
	FromID int64
	// Data is the choice key, Payload the optional suffix after it.
	Data    string
	Payload string
}

// Photo is an image message. FileID is resolved through a FileSource.
type Photo struct {
	UpdateID int
	ChatID   int64
	SenderID int64
	FileID   string
	Caption  string
}

// Other is any update the engine does not handle.
type Other struct {
	UpdateID int
	ChatID   int64
	Kind     string
}

func (e TextMessage) Chat() int64 { return e.ChatID }
func (e Callback) Chat() int64    { return e.FromID }
func (e Photo) Chat() int64       { return e.ChatID }
func (e Other) Chat() int64       { return e.ChatID }

func (e TextMessage) Update() int { return e.UpdateID }
func (e Callback) Update() int    { return e.UpdateID }
func (e Photo) Update() int       { return e.UpdateID }
func (e Other) Update() int       { return e.UpdateID }

func (TextMessage) isEvent() {}
func (Callback) isEvent()    {}
func (Photo) isEvent()       {}
func (Other) isEvent()       {}

// Kind names the event variant for logs and rate-limit exclusions.
func Kind(ev Event) string {
	switch e := ev.(type) {
	case TextMessage:
		return "message"
	case Callback:
		return "callback"
	case Photo:
		return "photo"
	case Other:
		if e.Kind != "" {
			return e.Kind
		}
		return "other"
	default:
		return "unknown"
	}
}
