package okx

import "time"

// OKX API Constants
const (
	BaseURL     = "https://www.okx.com"
	PublicWSURL = "wss://ws.okx.com:8443/ws/v5/public"

	// Instrument is the USD-faced perpetual swap the hedge trades.
	Instrument = "BTC-USD-SWAP"

	maxRetries   = 10
	pingInterval = 20 * time.Second
	readTimeout  = 40 * time.Second
)

// apiResponse is the common OKX v5 REST envelope.
type apiResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type positionData struct {
	InstID string `json:"instId"`
	Pos    string `json:"pos"`
	AvgPx  string `json:"avgPx"`
}

type positionsResponse struct {
	apiResponse
	Data []positionData `json:"data"`
}

type orderRequest struct {
	InstID    string `json:"instId"`
	TdMode    string `json:"tdMode"`
	Side      string `json:"side"`
	OrdType   string `json:"ordType"`
	Size      string `json:"sz"`
	ClientOID string `json:"clOrdId"`
}

type closePositionRequest struct {
	InstID    string `json:"instId"`
	MgnMode   string `json:"mgnMode"`
	AutoCxl   bool   `json:"autoCxl"`
	ClientOID string `json:"clOrdId"`
}

// Websocket wire types for the public tickers channel.
type subscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

type tickerData struct {
	InstID string `json:"instId"`
	BidPx  string `json:"bidPx"`
	AskPx  string `json:"askPx"`
	Ts     string `json:"ts"`
}

type tickerResponse struct {
	Arg  subscribeArg `json:"arg"`
	Data []tickerData `json:"data"`
}
