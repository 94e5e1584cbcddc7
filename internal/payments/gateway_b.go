package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/settlement-engine/internal/pricing"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

const (
	bResultSuccess         = "0"
	responseBodyReadLimit  = 64 << 10
	defaultInitiateTimeout = 10 * time.Second
)

var (
	errGatewayBEndpointRequired = errors.New("gateway b endpoint is required")
	errGatewayBPartnerRequired  = errors.New("gateway b partner code is required")
	errGatewayBKeysRequired     = errors.New("gateway b access and secret keys are required")
)

// createSignatureFields is the fixed order of the create-payment signing string.
var createSignatureFields = []string{
	"accessKey", "amount", "extraData", "ipnUrl", "orderId", "orderInfo",
	"partnerCode", "redirectUrl", "requestId", "requestType",
}

// callbackSignatureFields is the fixed order of the callback signing string.
var callbackSignatureFields = []string{
	"accessKey", "amount", "extraData", "message", "orderId", "orderInfo", "orderType",
	"partnerCode", "payType", "requestId", "responseTime", "resultCode", "transId",
}

// GatewayB is the server-to-server gateway. Initiation is a signed JSON POST;
// the outcome arrives as a signed JSON webhook and on the browser return.
type GatewayB struct {
	httpClient  *http.Client
	endpoint    string
	partnerCode string
	accessKey   string
	secretKey   string
	requestType string
	ipnURL      string
}

// GatewayBOption configures optional adapter behavior.
type GatewayBOption func(*GatewayB)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) GatewayBOption {
	return func(g *GatewayB) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// NewGatewayB builds the adapter. ipnURL is the webhook address the gateway
// calls back; timeout bounds every initiate request.
func NewGatewayB(cfg config.GatewayBConfig, ipnURL string, timeout time.Duration, opts ...GatewayBOption) (*GatewayB, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errGatewayBEndpointRequired
	}
	if strings.TrimSpace(cfg.PartnerCode) == "" {
		return nil, errGatewayBPartnerRequired
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errGatewayBKeysRequired
	}
	if timeout <= 0 {
		timeout = defaultInitiateTimeout
	}
	requestType := cfg.RequestType
	if requestType == "" {
		requestType = "captureWallet"
	}

	g := &GatewayB{
		httpClient:  &http.Client{Timeout: timeout},
		endpoint:    strings.TrimSpace(cfg.Endpoint),
		partnerCode: strings.TrimSpace(cfg.PartnerCode),
		accessKey:   cfg.AccessKey,
		secretKey:   cfg.SecretKey,
		requestType: requestType,
		ipnURL:      ipnURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if g.httpClient.Timeout <= 0 {
		g.httpClient.Timeout = timeout
	}
	return g, nil
}

func (g *GatewayB) Method() enums.PaymentMethod {
	return enums.PaymentMethodGatewayB
}

type bCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IpnURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Signature   string `json:"signature"`
	Lang        string `json:"lang"`
}

type bCreateResponse struct {
	PartnerCode  string      `json:"partnerCode"`
	OrderID      string      `json:"orderId"`
	RequestID    string      `json:"requestId"`
	Amount       int64       `json:"amount"`
	ResponseTime int64       `json:"responseTime"`
	Message      string      `json:"message"`
	ResultCode   json.Number `json:"resultCode"`
	PayURL       string      `json:"payUrl"`
}

// Initiate posts the signed create-payment request and returns the pay URL.
func (g *GatewayB) Initiate(ctx context.Context, req InitiateRequest) (*IntentResult, error) {
	if req.Order == nil || req.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and transaction id required")
	}
	if err := CheckInitiate(req.Order, req.Amount, false); err != nil {
		return nil, err
	}

	body := bCreateRequest{
		PartnerCode: g.partnerCode,
		AccessKey:   g.accessKey,
		RequestID:   req.TransactionID,
		Amount:      pricing.ToMinorUnits(req.Amount),
		OrderID:     req.TransactionID,
		OrderInfo:   "Payment for order " + req.Order.TrackingNumber,
		RedirectURL: req.ReturnURL,
		IpnURL:      g.ipnURL,
		ExtraData:   base64.StdEncoding.EncodeToString([]byte(req.Order.ID.String())),
		RequestType: g.requestType,
		Lang:        "en",
	}
	body.Signature = signSHA256(g.secretKey, signingString(createSignatureFields, map[string]string{
		"accessKey":   body.AccessKey,
		"amount":      strconv.FormatInt(body.Amount, 10),
		"extraData":   body.ExtraData,
		"ipnUrl":      body.IpnURL,
		"orderId":     body.OrderID,
		"orderInfo":   body.OrderInfo,
		"partnerCode": body.PartnerCode,
		"redirectUrl": body.RedirectURL,
		"requestId":   body.RequestID,
		"requestType": body.RequestType,
	}))

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, GatewayError(g.Method(), err, "marshal gateway b request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, GatewayError(g.Method(), err, "build gateway b request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, GatewayError(g.Method(), err, "execute gateway b request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, GatewayError(g.Method(), err, "read gateway b response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, GatewayError(g.Method(), fmt.Errorf("status %d", resp.StatusCode), "gateway b rejected request")
	}

	var decoded bCreateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, GatewayError(g.Method(), err, "decode gateway b response")
	}
	if decoded.ResultCode.String() != bResultSuccess {
		return nil, GatewayError(g.Method(),
			fmt.Errorf("result code %s: %s", decoded.ResultCode, decoded.Message),
			"gateway b declined request")
	}
	if decoded.PayURL == "" {
		return nil, GatewayError(g.Method(), errors.New("missing payUrl"), "gateway b response incomplete")
	}

	payURL := decoded.PayURL
	return &IntentResult{
		TransactionID: req.TransactionID,
		RedirectURL:   &payURL,
		Raw:           json.RawMessage(raw),
	}, nil
}

// VerifyCallback accepts the JSON webhook body or the return query string.
func (g *GatewayB) VerifyCallback(_ context.Context, cb Callback) (*VerifiedCallback, error) {
	fields, err := g.callbackFields(cb)
	if err != nil || len(fields) == 0 {
		return nil, ErrSignature(g.Method())
	}

	supplied := fields["signature"]
	signed := map[string]string{}
	for k, v := range fields {
		signed[k] = v
	}
	signed["accessKey"] = g.accessKey
	expected := signSHA256(g.secretKey, signingString(callbackSignatureFields, signed))
	if !signaturesMatch(expected, supplied) {
		return nil, ErrSignature(g.Method())
	}
	if fields["partnerCode"] != g.partnerCode {
		return nil, ErrSignature(g.Method())
	}

	delete(fields, "signature")
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway b callback")
	}
	out := &VerifiedCallback{
		TransactionID: fields["orderId"],
		ExternalRef:   fields["transId"],
		Success:       fields["resultCode"] == bResultSuccess,
		Raw:           raw,
	}
	if !out.Success {
		out.FailureCode = fields["resultCode"]
	}
	if minor, err := strconv.ParseInt(fields["amount"], 10, 64); err == nil {
		amount := pricing.FromMinorUnits(minor)
		out.Amount = &amount
	}
	if out.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback missing transaction reference")
	}
	return out, nil
}

func (g *GatewayB) callbackFields(cb Callback) (map[string]string, error) {
	fields := map[string]string{}
	if len(cb.Body) > 0 && len(cb.Params) == 0 {
		decoder := json.NewDecoder(bytes.NewReader(cb.Body))
		decoder.UseNumber()
		var body map[string]any
		if err := decoder.Decode(&body); err != nil {
			return nil, err
		}
		for key, value := range body {
			switch v := value.(type) {
			case nil:
				fields[key] = ""
			case string:
				fields[key] = v
			case json.Number:
				fields[key] = v.String()
			default:
				fields[key] = fmt.Sprint(v)
			}
		}
		return fields, nil
	}
	for key := range cb.Params {
		fields[key] = cb.Params.Get(key)
	}
	return fields, nil
}

// signingString joins key=value pairs in the given order, unescaped.
func signingString(order []string, values map[string]string) string {
	var b strings.Builder
	for i, key := range order {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(values[key])
	}
	return b.String()
}
