package domain

// StreamToken is the normalized unit of a generated-answer stream.
// Exactly one of Content, Error or Done is meaningful.
type StreamToken struct {
	Content string
	Error   string
	Done    bool
}

func ContentToken(s string) StreamToken { return StreamToken{Content: s} }

func ErrorToken(msg string) StreamToken { return StreamToken{Error: msg} }

func DoneToken() StreamToken { return StreamToken{Done: true} }

// IsError reports whether the token carries an error.
func (t StreamToken) IsError() bool { return t.Error != "" }
