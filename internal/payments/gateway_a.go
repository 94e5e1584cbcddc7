package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/settlement-engine/internal/pricing"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// Gateway A field names.
const (
	aFieldAmount        = "amount"
	aFieldCommand       = "command"
	aFieldCreateDate    = "create_date"
	aFieldCurrency      = "currency"
	aFieldIPAddr        = "ip_addr"
	aFieldLocale        = "locale"
	aFieldMerchant      = "merchant_id"
	aFieldOrderInfo     = "order_info"
	aFieldReturnURL     = "return_url"
	aFieldTxnRef        = "txn_ref"
	aFieldResponseCode  = "response_code"
	aFieldTransactionNo = "transaction_no"
	aFieldSignature     = "signature"
	aFieldSignatureType = "signature_type"

	aCommandPay      = "pay"
	aResponseSuccess = "00"
	aDateLayout      = "20060102150405"
)

var (
	errGatewayAMerchantRequired = errors.New("gateway a merchant id is required")
	errGatewayASecretRequired   = errors.New("gateway a secret is required")
	errGatewayABaseURLRequired  = errors.New("gateway a base url is required")
)

// GatewayA is the browser-redirect gateway. The customer is sent to a signed
// URL and the outcome comes back on the return URL and as a form-encoded
// webhook, both signed the same way.
type GatewayA struct {
	baseURL    string
	merchantID string
	secret     string
	locale     string
	currency   string
	now        func() time.Time
}

// NewGatewayA validates cfg and builds the adapter.
func NewGatewayA(cfg config.GatewayAConfig, currency string) (*GatewayA, error) {
	if strings.TrimSpace(cfg.MerchantID) == "" {
		return nil, errGatewayAMerchantRequired
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errGatewayASecretRequired
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errGatewayABaseURLRequired
	}
	locale := cfg.Locale
	if locale == "" {
		locale = "en"
	}
	return &GatewayA{
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		merchantID: strings.TrimSpace(cfg.MerchantID),
		secret:     cfg.Secret,
		locale:     locale,
		currency:   currency,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (g *GatewayA) Method() enums.PaymentMethod {
	return enums.PaymentMethodGatewayA
}

// Initiate signs the payment fields and returns the redirect URL.
func (g *GatewayA) Initiate(_ context.Context, req InitiateRequest) (*IntentResult, error) {
	if req.Order == nil || req.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and transaction id required")
	}
	if err := CheckInitiate(req.Order, req.Amount, false); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set(aFieldAmount, strconv.FormatInt(pricing.ToMinorUnits(req.Amount), 10))
	params.Set(aFieldCommand, aCommandPay)
	params.Set(aFieldCreateDate, g.now().Format(aDateLayout))
	params.Set(aFieldCurrency, g.currency)
	params.Set(aFieldLocale, g.locale)
	params.Set(aFieldMerchant, g.merchantID)
	params.Set(aFieldOrderInfo, "Payment for order "+req.Order.TrackingNumber)
	params.Set(aFieldReturnURL, req.ReturnURL)
	params.Set(aFieldTxnRef, req.TransactionID)
	if req.ClientIP != "" {
		params.Set(aFieldIPAddr, req.ClientIP)
	}

	signed := canonicalA(params)
	signature := signSHA512(g.secret, signed)

	separator := "?"
	if strings.Contains(g.baseURL, "?") {
		separator = "&"
	}
	redirect := g.baseURL + separator + signed + "&" + aFieldSignature + "=" + signature

	raw, err := json.Marshal(flatten(params))
	if err != nil {
		return nil, GatewayError(g.Method(), err, "encode gateway a request")
	}
	return &IntentResult{
		TransactionID: req.TransactionID,
		RedirectURL:   &redirect,
		Raw:           raw,
	}, nil
}

// VerifyCallback recomputes the signature over every field except the
// signature itself. Webhooks arrive form-encoded in the body, returns in the
// query string.
func (g *GatewayA) VerifyCallback(_ context.Context, cb Callback) (*VerifiedCallback, error) {
	params := cb.Params
	if len(cb.Body) > 0 && (len(params) == 0 || cb.Source == CallbackWebhook) {
		parsed, err := url.ParseQuery(string(cb.Body))
		if err != nil {
			return nil, ErrSignature(g.Method())
		}
		params = parsed
	}
	if len(params) == 0 {
		return nil, ErrSignature(g.Method())
	}

	supplied := params.Get(aFieldSignature)
	unsigned := url.Values{}
	for key, values := range params {
		if key == aFieldSignature || key == aFieldSignatureType {
			continue
		}
		unsigned[key] = values
	}
	if !signaturesMatch(signSHA512(g.secret, canonicalA(unsigned)), supplied) {
		return nil, ErrSignature(g.Method())
	}

	raw, err := json.Marshal(flatten(unsigned))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway a callback")
	}
	out := &VerifiedCallback{
		TransactionID: unsigned.Get(aFieldTxnRef),
		ExternalRef:   unsigned.Get(aFieldTransactionNo),
		Success:       unsigned.Get(aFieldResponseCode) == aResponseSuccess,
		Raw:           raw,
	}
	if !out.Success {
		out.FailureCode = unsigned.Get(aFieldResponseCode)
	}
	if minor, err := strconv.ParseInt(unsigned.Get(aFieldAmount), 10, 64); err == nil {
		amount := pricing.FromMinorUnits(minor)
		out.Amount = &amount
	}
	if out.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback missing transaction reference")
	}
	return out, nil
}

// canonicalA is the signing string: keys sorted, k=v pairs query-escaped and
// joined with &.
func canonicalA(params url.Values) string {
	return params.Encode()
}

func flatten(params url.Values) map[string]string {
	out := make(map[string]string, len(params))
	for key := range params {
		out[key] = params.Get(key)
	}
	return out
}
