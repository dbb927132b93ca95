package sms

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownCommand 代表簡訊開頭不是任何支援的指令
	ErrUnknownCommand = errors.New("unknown sms command")
	// ErrMalformedCommand 代表指令格式正確但參數不完整或無法解析
	ErrMalformedCommand = errors.New("malformed sms command")
)

type CommandKind string

const (
	CommandPrice CommandKind = "PRICE"
	CommandSell  CommandKind = "SELL"
	CommandBuy   CommandKind = "BUY"
	CommandHelp  CommandKind = "HELP"
)

// Command 是從簡訊內容解析出來的指令
// 各欄位依指令種類選填：PRICE 用 Crop/Location，SELL 用 Crop/Quantity/Price，BUY 用 Crop
type Command struct {
	Kind     CommandKind
	Crop     string
	Location string
	Quantity float64
	Price    float64
}

// ParseCommand 解析簡訊內容
// 支援的格式：
//
//	PRICE <crop> [location]
//	SELL <crop> <quantity_kg> <price_per_kg>
//	BUY <crop>
//	HELP
func ParseCommand(body string) (Command, error) {
	fields := strings.Fields(strings.TrimSpace(body))
	if len(fields) == 0 {
		return Command{}, ErrUnknownCommand
	}

	kind := CommandKind(strings.ToUpper(fields[0]))
	args := fields[1:]

	switch kind {
	case CommandHelp:
		return Command{Kind: CommandHelp}, nil

	case CommandPrice:
		if len(args) < 1 {
			return Command{}, fmt.Errorf("%w: PRICE needs a crop name", ErrMalformedCommand)
		}
		cmd := Command{Kind: CommandPrice, Crop: strings.ToLower(args[0])}
		if len(args) > 1 {
			cmd.Location = strings.Join(args[1:], " ")
		}
		return cmd, nil

	case CommandSell:
		if len(args) < 3 {
			return Command{}, fmt.Errorf("%w: SELL needs crop, quantity and price", ErrMalformedCommand)
		}
		// 數量允許帶 KG 單位，像 "100KG"
		quantity, err := strconv.ParseFloat(strings.TrimSuffix(strings.ToUpper(args[1]), "KG"), 64)
		if err != nil || quantity <= 0 {
			return Command{}, fmt.Errorf("%w: invalid quantity %q", ErrMalformedCommand, args[1])
		}
		price, err := strconv.ParseFloat(args[2], 64)
		if err != nil || price <= 0 {
			return Command{}, fmt.Errorf("%w: invalid price %q", ErrMalformedCommand, args[2])
		}
		return Command{
			Kind:     CommandSell,
			Crop:     strings.ToLower(args[0]),
			Quantity: quantity,
			Price:    price,
		}, nil

	case CommandBuy:
		if len(args) < 1 {
			return Command{}, fmt.Errorf("%w: BUY needs a crop name", ErrMalformedCommand)
		}
		return Command{Kind: CommandBuy, Crop: strings.ToLower(args[0])}, nil

	default:
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
}

// HelpText 是 HELP 指令和無法解析的簡訊的回覆內容
func HelpText() string {
	return strings.Join([]string{
		"AgriNet commands:",
		"PRICE <crop> [location] - current market price",
		"SELL <crop> <qty_kg> <price_per_kg> - create a listing",
		"BUY <crop> - list active offers",
		"HELP - this message",
	}, "\n")
}
