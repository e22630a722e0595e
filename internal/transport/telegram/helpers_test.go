package telegram

import (
	"encoding/json"
	"net/http"

	logx "vaultwatch/pkg/logx"
)

func loggerForTest() logx.Logger { return logx.Nop() }

func decodeJSONBody(r *http.Request) (text, mode string) {
	var body struct {
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body.Text, body.ParseMode
}
