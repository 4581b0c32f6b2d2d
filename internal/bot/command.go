package bot

import (
	"encoding/json"
	"strings"
)

type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandStart
	CommandHelp
	CommandSubmit
)

// Command is a parsed chat message.
type Command struct {
	Kind     CommandKind
	Burden   string
	PhotoURL string
}

// formSubmission is the JSON body the web form posts into the chat.
type formSubmission struct {
	Burden   string `json:"burden"`
	PhotoURL string `json:"photo_url"`
}

// ParseCommand recognises "/start", "/help", "/burden <text>" and JSON form bodies.
// The leading slash is optional.
func ParseCommand(body string) Command {
	body = strings.TrimSpace(body)

	if strings.HasPrefix(body, "{") {
		var f formSubmission
		if err := json.Unmarshal([]byte(body), &f); err == nil {
			return Command{Kind: CommandSubmit, Burden: strings.TrimSpace(f.Burden), PhotoURL: strings.TrimSpace(f.PhotoURL)}
		}
		return Command{Kind: CommandUnknown}
	}

	word, rest, _ := strings.Cut(strings.TrimPrefix(body, "/"), " ")
	switch strings.ToLower(word) {
	case "start":
		return Command{Kind: CommandStart}
	case "help":
		return Command{Kind: CommandHelp}
	case "burden":
		return Command{Kind: CommandSubmit, Burden: strings.TrimSpace(rest)}
	}
	return Command{Kind: CommandUnknown}
}
