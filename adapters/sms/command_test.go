package sms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"agrinet/adapters/sms"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    sms.Command
		wantErr error
	}{
		{
			name: "price with crop only",
			body: "PRICE wheat",
			want: sms.Command{Kind: sms.CommandPrice, Crop: "wheat"},
		},
		{
			name: "price with location",
			body: "price Tomato Nashik District",
			want: sms.Command{Kind: sms.CommandPrice, Crop: "tomato", Location: "Nashik District"},
		},
		{
			name:    "price without crop",
			body:    "PRICE",
			wantErr: sms.ErrMalformedCommand,
		},
		{
			name: "sell",
			body: "SELL rice 500 32.5",
			want: sms.Command{Kind: sms.CommandSell, Crop: "rice", Quantity: 500, Price: 32.5},
		},
		{
			name: "sell with kg suffix",
			body: "SELL RICE 100KG 40",
			want: sms.Command{Kind: sms.CommandSell, Crop: "rice", Quantity: 100, Price: 40},
		},
		{
			name:    "sell with missing price",
			body:    "SELL rice 500",
			wantErr: sms.ErrMalformedCommand,
		},
		{
			name:    "sell with negative quantity",
			body:    "SELL rice -5 30",
			wantErr: sms.ErrMalformedCommand,
		},
		{
			name:    "sell with non numeric price",
			body:    "SELL rice 500 cheap",
			wantErr: sms.ErrMalformedCommand,
		},
		{
			name: "buy",
			body: "buy onion",
			want: sms.Command{Kind: sms.CommandBuy, Crop: "onion"},
		},
		{
			name: "help",
			body: "HELP",
			want: sms.Command{Kind: sms.CommandHelp},
		},
		{
			name: "surrounding whitespace",
			body: "  SELL  maize  100  18  ",
			want: sms.Command{Kind: sms.CommandSell, Crop: "maize", Quantity: 100, Price: 18},
		},
		{
			name:    "empty body",
			body:    "   ",
			wantErr: sms.ErrUnknownCommand,
		},
		{
			name:    "unknown keyword",
			body:    "HELLO there",
			wantErr: sms.ErrUnknownCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sms.ParseCommand(tt.body)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHelpText(t *testing.T) {
	text := sms.HelpText()
	assert.Contains(t, text, "PRICE")
	assert.Contains(t, text, "SELL")
	assert.Contains(t, text, "BUY")
	assert.Contains(t, text, "HELP")
}
