package api

// API response types for REST endpoints and WebSocket messages.
// Amounts are plain integers in ledger units.

// ==============================
// REST Response Types
// ==============================

// ConfigInfo is the ledger's global configuration
type ConfigInfo struct {
	Owner                string `json:"owner"`
	UnitPrice            uint64 `json:"unitPrice"`
	CommissionRate       uint64 `json:"commissionRate"` // percent
	ReserveCap           uint64 `json:"reserveCap"`
	CurrentReserve       uint64 `json:"currentReserve"`
	MaxListingPerAccount uint64 `json:"maxListingPerAccount"`
}

// AccountInfo is one account's holdings
type AccountInfo struct {
	Address      string `json:"address"`
	Currency     uint64 `json:"currency"`
	Inventory    uint64 `json:"inventory"`    // gross, including listed units
	Listed       uint64 `json:"listed"`       // units offered for sale
	Unlisted     uint64 `json:"unlisted"`     // inventory - listed
	ListingPrice uint64 `json:"listingPrice"` // last listing price, kept when the listing empties
	Nonce        uint64 `json:"nonce"`        // last accepted tx nonce
}

// TradeInfo is one executed buy
type TradeInfo struct {
	ID          string `json:"id"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	Quantity    uint64 `json:"quantity"`
	Price       uint64 `json:"price"`
	ProductCost uint64 `json:"productCost"`
	Commission  uint64 `json:"commission"`
	TotalCost   uint64 `json:"totalCost"`
	Timestamp   int64  `json:"timestamp"` // Unix milliseconds
}

// LedgerStatus summarizes node state
type LedgerStatus struct {
	StateRoot      string `json:"stateRoot"`
	CurrentReserve uint64 `json:"currentReserve"`
	ReserveCap     uint64 `json:"reserveCap"`
	MempoolSize    int    `json:"mempoolSize"`
	Timestamp      int64  `json:"timestamp"` // Unix milliseconds
}

// SubmitTxResponse is returned once a tx is queued
type SubmitTxResponse struct {
	Status string `json:"status"` // "submitted"
	Hash   string `json:"hash"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"` // ledger or admission error kind
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is a client subscription message
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // "trades", "txs", "account:0x..."
}

// TradeUpdate is pushed on the "trades" channel
type TradeUpdate struct {
	Type  string    `json:"type"` // "trade"
	Trade TradeInfo `json:"trade"`
}

// TxUpdate is pushed on the "txs" and "account:<caller>" channels
type TxUpdate struct {
	Type   string `json:"type"` // "tx"
	Hash   string `json:"hash"`
	Op     string `json:"op"`
	Caller string `json:"caller"`
	OK     bool   `json:"ok"`
	Kind   string `json:"kind,omitempty"`
	Error  string `json:"error,omitempty"`
}
