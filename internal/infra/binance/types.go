package binance

import "encoding/json"

// exchangeInfoResponse is the /api/v3/exchangeInfo payload, reduced to
// the fields used for symbol discovery.
type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

// tickerResponse is the /api/v3/ticker/24hr payload.
type tickerResponse struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	BidPrice  string `json:"bidPrice"`
	AskPrice  string `json:"askPrice"`
	Volume    string `json:"volume"`
	CloseTime int64  `json:"closeTime"`
}

// tradeResponse is one entry of the /api/v3/trades payload.
type tradeResponse struct {
	ID           int64  `json:"id"`
	Price        string `json:"price"`
	Qty          string `json:"qty"`
	Time         int64  `json:"time"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

// streamEnvelope wraps every combined-stream websocket message.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// wsTicker is the <symbol>@ticker stream payload.
type wsTicker struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Last      string `json:"c"`
	Bid       string `json:"b"`
	Ask       string `json:"a"`
	Volume    string `json:"v"`
}

// wsTrade is the <symbol>@trade stream payload.
type wsTrade struct {
	EventType    string `json:"e"`
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Qty          string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// wsDepth is the <symbol>@depth (diff) stream payload; zero quantities
// remove the level.
type wsDepth struct {
	EventType string     `json:"e"`
	Symbol    string     `json:"s"`
	Asks      [][]string `json:"a"`
	Bids      [][]string `json:"b"`
}

// wsSubscribe is the stream subscription request.
type wsSubscribe struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}
