package sms

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// GatewayConfig 是簡訊閘道的連線設定
type GatewayConfig struct {
	BaseURL  string
	APIKey   string
	SenderID string
}

// Gateway 透過 HTTP API 發送簡訊
type Gateway struct {
	httpClient *resty.Client
	senderID   string
}

func NewGateway(cfg GatewayConfig) *Gateway {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey)).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)

	return &Gateway{
		httpClient: client,
		senderID:   cfg.SenderID,
	}
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText 發送一則簡訊到指定號碼
func (g *Gateway) SendText(ctx context.Context, to, body string) (string, error) {
	const op = "Gateway.SendText"
	payload := map[string]any{
		"from": g.senderID,
		"to":   to,
		"body": body,
	}

	result := new(sendResponse)
	sendErr := new(apiError)

	resp, err := g.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(result).
		SetError(sendErr).
		Post("/messages")
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to send sms, err=%w", op, err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		code := resp.StatusCode()
		if sendErr.Error.Code != 0 {
			code = sendErr.Error.Code
		}
		return "", fmt.Errorf("[%s] Gateway rejected sms, code=%d, message=%s", op, code, sendErr.Error.Message)
	}

	return result.MessageID, nil
}
