package explorer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/vietddude/tokenwatch/internal/core/domain"
)

const (
	windowTooLargePattern = "result window is too large"
	noTransactionsPattern = "no transactions found"
)

// envelope is the common explorer response shape. Result is either a list of
// records or an error string.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Classify maps an HTTP status and body to an Outcome. The explorer reuses the
// same status for several conditions, so the body decides.
func Classify(statusCode int, body []byte) Outcome {
	if statusCode >= http.StatusInternalServerError {
		return Outcome{
			Kind:       OutcomeTransient,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("HTTP_%d", statusCode),
		}
	}
	if statusCode == http.StatusTooManyRequests {
		return Outcome{
			Kind:       OutcomeRateLimited,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("HTTP_%d", statusCode),
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Outcome{
			Kind:       OutcomeTransient,
			StatusCode: statusCode,
			Message:    "undecodable response",
			Err:        fmt.Errorf("parse response: %w", err),
		}
	}

	resultText := resultString(env.Result)
	message := env.Message
	if isWindowTooLarge(message) || isWindowTooLarge(resultText) {
		return Outcome{Kind: OutcomeWindowTooLarge, StatusCode: statusCode, Message: joinMessage(message, resultText)}
	}

	if env.Status != "1" {
		if strings.Contains(strings.ToLower(message), noTransactionsPattern) {
			return Outcome{Kind: OutcomeData, StatusCode: statusCode, Message: message}
		}
		return Outcome{Kind: OutcomeRateLimited, StatusCode: statusCode, Message: joinMessage(message, resultText)}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(env.Result, &items); err != nil {
		// status=1 but result is not a list: the credential answered with an error text.
		return Outcome{Kind: OutcomeRateLimited, StatusCode: statusCode, Message: joinMessage(message, resultText)}
	}

	transfers, malformed := decodeTransfers(items)
	return Outcome{
		Kind:       OutcomeData,
		StatusCode: statusCode,
		Transfers:  transfers,
		Malformed:  malformed,
		Message:    message,
	}
}

// decodeTransfers decodes each record on its own so one bad element only
// costs itself.
func decodeTransfers(items []json.RawMessage) ([]domain.RawTransfer, int) {
	transfers := make([]domain.RawTransfer, 0, len(items))
	malformed := 0
	for _, item := range items {
		var tx domain.RawTransfer
		if err := json.Unmarshal(item, &tx); err != nil {
			malformed++
			continue
		}
		transfers = append(transfers, tx)
	}
	return transfers, malformed
}

func isWindowTooLarge(s string) bool {
	return strings.Contains(strings.ToLower(s), windowTooLargePattern)
}

func resultString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func joinMessage(message, result string) string {
	switch {
	case result == "":
		return message
	case message == "":
		return result
	default:
		return message + ": " + result
	}
}
