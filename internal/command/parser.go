// Package command implements the CommandReader (C11): parsing the text
// line protocol from spec §6.1 (ORDER/CANCEL/QUERY/STRATEGY/SUBSCRIBE) and
// applying each parsed command to a running Engine.
package command

import (
	"strings"

	"github.com/shopspring/decimal"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
)

// Kind tags which command variant a parsed Command carries.
type Kind int

const (
	KindOrder Kind = iota
	KindCancel
	KindQuery
	KindStrategy
	KindSubscribe
	KindUnsubscribe
)

// Command is the parsed form of one input line.
type Command struct {
	Kind   Kind
	LineNo int
	Raw    string

	Order model.OrderRequest // KindOrder

	CancelID string // KindCancel

	QueryType string   // KindQuery
	QueryArgs []string // KindQuery

	StrategySub  string            // KindStrategy: LOAD/START/STOP/PAUSE/RESUME/UNLOAD/LIST/STATUS/PARAMS/METRICS
	StrategyID   string            // KindStrategy
	StrategyType string            // KindStrategy LOAD
	StrategyArgs map[string]string // KindStrategy LOAD: raw key=value tokens

	SubVenue     model.Venue  // KindSubscribe/KindUnsubscribe
	SubSymbol    model.Symbol // KindSubscribe/KindUnsubscribe
	SubEventType string       // KindSubscribe/KindUnsubscribe
}

// Parse parses one line of input. lineNo is carried through for error
// reporting and the *_received lifecycle mirror events.
func Parse(lineNo int, line string) (Command, error) {
	raw := line
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, apperrors.New(apperrors.KindParse, apperrors.TagInvalidCommand, "empty command")
	}

	verb := strings.ToUpper(fields[0])
	switch verb {
	case "ORDER":
		return parseOrder(lineNo, raw, fields[1:])
	case "BUY":
		return parseOrderFixedSide(lineNo, raw, model.Buy, fields[1:])
	case "SELL":
		return parseOrderFixedSide(lineNo, raw, model.Sell, fields[1:])
	case "CANCEL":
		if len(fields) != 2 {
			return Command{}, badParams("CANCEL requires exactly one client_order_id")
		}
		return Command{Kind: KindCancel, LineNo: lineNo, Raw: raw, CancelID: fields[1]}, nil
	case "QUERY":
		if len(fields) < 2 {
			return Command{}, badParams("QUERY requires a query type")
		}
		return Command{Kind: KindQuery, LineNo: lineNo, Raw: raw, QueryType: strings.ToUpper(fields[1]), QueryArgs: fields[2:]}, nil
	case "STRATEGY":
		return parseStrategy(lineNo, raw, fields[1:])
	case "SUBSCRIBE":
		return parseSubscription(lineNo, raw, KindSubscribe, fields[1:])
	case "UNSUBSCRIBE":
		return parseSubscription(lineNo, raw, KindUnsubscribe, fields[1:])
	default:
		return Command{}, apperrors.New(apperrors.KindParse, apperrors.TagInvalidCommand, "unrecognized verb "+fields[0])
	}
}

func badParams(msg string) error {
	return apperrors.New(apperrors.KindParse, apperrors.TagBadParams, msg)
}

func parseOrder(lineNo int, raw string, args []string) (Command, error) {
	if len(args) < 5 {
		return Command{}, badParams("ORDER requires side symbol qty price client_order_id")
	}
	side, err := parseSide(args[0])
	if err != nil {
		return Command{}, err
	}
	return buildOrder(lineNo, raw, side, args[1:])
}

func parseOrderFixedSide(lineNo int, raw string, side model.Side, args []string) (Command, error) {
	if len(args) < 4 {
		return Command{}, badParams("BUY/SELL requires symbol qty price client_order_id")
	}
	return buildOrder(lineNo, raw, side, args)
}

// buildOrder parses the common symbol/qty/price/cid[/type[/tif]] tail
// shared by ORDER <side> ... and BUY/SELL ... .
func buildOrder(lineNo int, raw string, side model.Side, args []string) (Command, error) {
	symbol := args[0]
	qty, err := decimal.NewFromString(args[1])
	if err != nil {
		return Command{}, badParams("invalid qty " + args[1])
	}
	price, err := decimal.NewFromString(args[2])
	if err != nil {
		return Command{}, badParams("invalid price " + args[2])
	}
	cid := args[3]

	orderType := model.Limit
	tif := model.GTC
	if len(args) >= 5 {
		t, err := parseOrderType(args[4])
		if err != nil {
			return Command{}, err
		}
		orderType = t
	}
	if len(args) >= 6 {
		tf, err := parseTIF(args[5])
		if err != nil {
			return Command{}, err
		}
		tif = tf
	}
	if orderType == model.Market && (tif == model.GTC || tif == model.PostOnly) {
		return Command{}, apperrors.New(apperrors.KindValidation, apperrors.TagBadTIFForMarket,
			"GTC/POST_ONLY is not valid for a MARKET order")
	}

	return Command{
		Kind:   KindOrder,
		LineNo: lineNo,
		Raw:    raw,
		Order: model.OrderRequest{
			ClientOrderID: cid,
			Symbol:        model.Symbol(strings.ToUpper(symbol)),
			Side:          side,
			Type:          orderType,
			TIF:           tif,
			Qty:           qty,
			Price:         price,
		},
	}, nil
}

func parseSide(tok string) (model.Side, error) {
	switch strings.ToUpper(tok) {
	case "BUY", "B":
		return model.Buy, nil
	case "SELL", "S":
		return model.Sell, nil
	default:
		return "", badParams("invalid side " + tok)
	}
}

func parseOrderType(tok string) (model.OrderType, error) {
	switch strings.ToUpper(tok) {
	case "LIMIT", "L":
		return model.Limit, nil
	case "MARKET", "M":
		return model.Market, nil
	default:
		return "", badParams("invalid order type " + tok)
	}
}

func parseTIF(tok string) (model.TIF, error) {
	switch strings.ToUpper(tok) {
	case "GTC", "G":
		return model.GTC, nil
	case "IOC", "I":
		return model.IOC, nil
	case "FOK", "F":
		return model.FOK, nil
	case "GTX", "POST_ONLY":
		return model.PostOnly, nil
	default:
		return "", badParams("invalid TIF " + tok)
	}
}

var strategySubcommands = map[string]bool{
	"LOAD": true, "START": true, "STOP": true, "PAUSE": true, "RESUME": true,
	"UNLOAD": true, "LIST": true, "STATUS": true, "PARAMS": true, "METRICS": true,
}

func parseStrategy(lineNo int, raw string, args []string) (Command, error) {
	if len(args) < 1 {
		return Command{}, badParams("STRATEGY requires a subcommand")
	}
	sub := strings.ToUpper(args[0])
	if !strategySubcommands[sub] {
		return Command{}, badParams("unknown STRATEGY subcommand " + args[0])
	}

	cmd := Command{Kind: KindStrategy, LineNo: lineNo, Raw: raw, StrategySub: sub}
	rest := args[1:]

	switch sub {
	case "LIST":
		return cmd, nil
	case "LOAD":
		if len(rest) < 2 {
			return Command{}, badParams("STRATEGY LOAD requires type and instance id")
		}
		cmd.StrategyType = rest[0]
		cmd.StrategyID = rest[1]
		cmd.StrategyArgs = make(map[string]string, len(rest)-2)
		for _, kv := range rest[2:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return Command{}, badParams("STRATEGY LOAD expects key=value params, got " + kv)
			}
			cmd.StrategyArgs[k] = v
		}
		return cmd, nil
	default: // START/STOP/PAUSE/RESUME/UNLOAD/STATUS/PARAMS/METRICS
		if len(rest) < 1 {
			return Command{}, badParams("STRATEGY " + sub + " requires an instance id")
		}
		cmd.StrategyID = rest[0]
		return cmd, nil
	}
}

func parseSubscription(lineNo int, raw string, kind Kind, args []string) (Command, error) {
	if len(args) != 3 {
		return Command{}, badParams("SUBSCRIBE/UNSUBSCRIBE requires venue symbol event_type")
	}
	eventType, err := normalizeEventType(args[2])
	if err != nil {
		return Command{}, err
	}
	return Command{
		Kind:         kind,
		LineNo:       lineNo,
		Raw:          raw,
		SubVenue:     model.Venue(args[0]),
		SubSymbol:    model.Symbol(strings.ToUpper(args[1])),
		SubEventType: eventType,
	}, nil
}

func normalizeEventType(tok string) (string, error) {
	switch strings.ToLower(tok) {
	case "trade", "booktop", "bookdelta", "kline":
		return strings.ToLower(tok), nil
	default:
		return "", badParams("invalid event type " + tok)
	}
}
