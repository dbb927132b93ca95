//go:generate mockgen -package=sms -destination=mock.go -source=interfaces.go

package sms

import "context"

// IGateway 定義了簡訊閘道的發送操作
type IGateway interface {
	// SendText 發送一則簡訊，返回閘道配發的訊息 ID
	SendText(ctx context.Context, to, body string) (string, error)
}
