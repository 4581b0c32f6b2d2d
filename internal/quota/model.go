package quota

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the storage format of Record.LastMintDate.
const DateLayout = "2006-01-02"

// Record matches the quota_records table schema.
type Record struct {
	UserID         string `json:"user_id"`
	LastMintDate   string `json:"last_mint_date"`
	FreeMintsToday int    `json:"free_mints_today"`
}

// Result is the outcome of a quota check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining_free"`
	Limit     int       `json:"limit"`
	ResetsAt  time.Time `json:"resets_at"`
}

// UserID accepts either a JSON number or a JSON string and normalises it to a string.
// Chat platforms hand out numeric ids while the web form posts strings.
type UserID string

func (u *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user_id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("user_id must be an integer: %w", err)
	}
	*u = UserID(n.String())
	return nil
}

func (u UserID) String() string { return string(u) }
