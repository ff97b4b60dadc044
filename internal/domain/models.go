package domain

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CartNewRequest struct {
	OwnerUID  uint32 `json:"owner_uid"`
	StoreID   uint32 `json:"store_id"`
	CreatedBy uint32 `json:"created_by"`
}

type RestoreRequest struct {
	CreatedBy uint32 `json:"created_by"`
}

type CustomerRequest struct {
	CustomerID uint32 `json:"customer_id"`
	Name       string `json:"name"`
	Zip        string `json:"zip"`
	Location   string `json:"location"`
	Street     string `json:"street"`
	TaxNumber  string `json:"tax_number"`
}

type AddSkuRequest struct {
	SKU            uint32 `json:"sku"`
	Piece          int    `json:"piece"`
	Name           string `json:"name"`
	VAT            string `json:"vat"`
	UnitPriceNet   int    `json:"unit_price_net"`
	UnitPriceGross int    `json:"unit_price_gross"`
}

type SetSkuPieceRequest struct {
	Piece int `json:"piece"`
}

// AddUplRequest is the wire shape of a unique product label. Kind is "sku"
// for plain (possibly depreciated) units and "derived_product" for opened
// products sold by amount.
type AddUplRequest struct {
	UplID            string `json:"upl_id"`
	Kind             string `json:"kind"`
	SKU              uint32 `json:"sku,omitempty"`
	Piece            int    `json:"piece,omitempty"`
	ProductID        uint32 `json:"product_id,omitempty"`
	Amount           int    `json:"amount,omitempty"`
	Name             string `json:"name"`
	RetailPriceNet   int    `json:"retail_price_net"`
	VAT              string `json:"vat"`
	RetailPriceGross int    `json:"retail_price_gross"`
	ProcurementNet   int    `json:"procurement_net_price"`
	BestBefore       string `json:"best_before,omitempty"`
	Depreciated      bool   `json:"depreciated"`
}

type SetDocumentRequest struct {
	DocumentKind string `json:"document_kind"`
}

type SetPaymentRequest struct {
	PaymentKind string `json:"payment_kind"`
}

type AddPaymentRequest struct {
	PaymentID string `json:"payment_id,omitempty"`
	Amount    int    `json:"amount"`
}

type SetOwnerRequest struct {
	OwnerUID uint32 `json:"owner_uid"`
}

type SetStoreRequest struct {
	StoreID uint32 `json:"store_id"`
}

type LoyaltyCardRequest struct {
	AccountID string `json:"account_id"`
	CardID    string `json:"card_id"`
	Level     string `json:"level"`
}

type BurnPointsRequest struct {
	AccountID     string `json:"account_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int    `json:"amount"`
}

type CommitmentRequest struct {
	CommitmentID string `json:"commitment_id"`
	Percentage   int    `json:"percentage"`
}

type BulkInfoRequest struct {
	IDs []string `json:"ids"`
}

// CartInfo is the lightweight summary streamed by bulk reads.
type CartInfo struct {
	CartID       string   `json:"cart_id"`
	CustomerName string   `json:"customer_name,omitempty"`
	UplCount     int      `json:"upl_count"`
	ItemNames    []string `json:"item_names"`
	OwnerUID     uint32   `json:"owner_uid"`
	CreatedBy    uint32   `json:"created_by"`
	CreatedAt    string   `json:"created_at"`
}

// PurchaseInfo is the lightweight summary streamed by bulk reads.
type PurchaseInfo struct {
	PurchaseID      string `json:"purchase_id"`
	CustomerName    string `json:"customer_name,omitempty"`
	UplCount        int    `json:"upl_count"`
	TotalNet        int    `json:"total_net"`
	TotalVat        int    `json:"total_vat"`
	TotalGross      int    `json:"total_gross"`
	Payable         int    `json:"payable"`
	Balance         int    `json:"balance"`
	DocumentInvoice bool   `json:"document_invoice"`
	DateCompletion  string `json:"date_completion"`
	PaymentDuedate  string `json:"payment_duedate"`
	PaymentExpired  bool   `json:"payment_expired"`
	ProfitNet       int    `json:"profit_net"`
	Restored        bool   `json:"restored"`
	CreatedBy       uint32 `json:"created_by"`
	CreatedAt       string `json:"created_at"`
}

type SetInvoiceRequest struct {
	InvoiceID string `json:"invoice_id"`
}

type SetStornoRequest struct {
	StornoID string `json:"storno_id"`
}

type LoyaltySummaryRequest struct {
	AccountID    string `json:"account_id"`
	PointsEarned int    `json:"points_earned"`
}

// PurchaseStat aggregates purchases completed inside a date interval.
type PurchaseStat struct {
	From          string `json:"from"`
	To            string `json:"to"`
	PurchaseCount int    `json:"purchase_count"`
	TotalNet      int    `json:"total_net"`
	TotalGross    int    `json:"total_gross"`
	TotalPayable  int    `json:"total_payable"`
}
