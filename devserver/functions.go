package devserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/productinfo/stitch-js-sdk/session"
)

// Caller is the user a function runs as.
type Caller struct {
	UserID     string             `json:"user_id"`
	UserType   session.UserType   `json:"type"`
	Identities []session.Identity `json:"identities"`
}

// Function is a server-side function callable on the functions/call route.
// Its result is encoded as the JSON response body.
type Function func(ctx context.Context, caller Caller, args []json.RawMessage) (any, error)

func builtinFunctions() map[string]Function {
	return map[string]Function{
		"echo":   echo,
		"whoami": whoami,
		"sum":    sum,
	}
}

func echo(_ context.Context, _ Caller, args []json.RawMessage) (any, error) {
	if args == nil {
		args = []json.RawMessage{}
	}
	return args, nil
}

func whoami(_ context.Context, caller Caller, _ []json.RawMessage) (any, error) {
	return caller, nil
}

func sum(_ context.Context, _ Caller, args []json.RawMessage) (any, error) {
	var total float64
	for i, raw := range args {
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("argument %d is not a number", i)
		}
		total += n
	}
	return total, nil
}
