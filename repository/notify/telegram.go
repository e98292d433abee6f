package notifyrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/callogan/library-service-api/util/httpx"
)

type telegram struct {
	token  string
	chatID string
	client *http.Client
}

func NewTelegram(token, chatID string) Notifier {
	return &telegram{token: token, chatID: chatID, client: httpx.Client()}
}

func (t *telegram) Notify(ctx context.Context, message string) error {
	body := map[string]any{
		"chat_id": t.chatID,
		"text":    message,
	}
	b, _ := json.Marshal(body)

	url := "https://api.telegram.org/bot" + t.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram sendMessage failed: %s", resp.Status)
	}
	return nil
}
