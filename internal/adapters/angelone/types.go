package angelone

// Wire types for the Angel One SmartAPI REST and push-feed surfaces.

// loginRequest is the loginByPassword payload
type loginRequest struct {
	ClientCode string `json:"clientcode"`
	Password   string `json:"password"`
	TOTP       string `json:"totp"`
}

// loginResponse is the session issuance envelope
type loginResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		JWTToken     string `json:"jwtToken"`
		RefreshToken string `json:"refreshToken"`
		FeedToken    string `json:"feedToken"`
	} `json:"data"`
}

// scripRecord is one row of the OpenAPI scrip master dump
type scripRecord struct {
	Token          string `json:"token"`
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	Expiry         string `json:"expiry"`
	Strike         string `json:"strike"`
	InstrumentType string `json:"instrumenttype"`
	ExchSeg        string `json:"exch_seg"`
}

// quoteRequest is the market/v1/quote payload
type quoteRequest struct {
	Mode           string              `json:"mode"`
	ExchangeTokens map[string][]string `json:"exchangeTokens"`
}

// quoteResponse is the market/v1/quote envelope
type quoteResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Fetched []quoteData `json:"fetched"`
	} `json:"data"`
}

// quoteData is one fetched instrument quote
type quoteData struct {
	SymbolToken  string  `json:"symbolToken"`
	LTP          float64 `json:"ltp"`
	OpenInterest int64   `json:"opnInterest"`
	TradeVolume  int64   `json:"tradeVolume"`
}

// feedMessage is one decoded push-feed tick
type feedMessage struct {
	Token             string  `json:"token"`
	LTP               float64 `json:"ltp"`
	OpenInterest      int64   `json:"openInterest"`
	TotalTradedVolume int64   `json:"totalTradedVolume"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	Gamma             float64 `json:"gamma"`
	ExchangeTimestamp int64   `json:"exchangeTimestamp"`
}

// subscribeRequest is the feed subscription frame
type subscribeRequest struct {
	CorrelationID string          `json:"correlationID"`
	Action        int             `json:"action"` // 1 = subscribe
	Params        subscribeParams `json:"params"`
}

type subscribeParams struct {
	Mode      int         `json:"mode"` // 3 = FULL
	TokenList []tokenList `json:"tokenList"`
}

type tokenList struct {
	ExchangeType int      `json:"exchangeType"` // 2 = NFO
	Tokens       []string `json:"tokens"`
}
