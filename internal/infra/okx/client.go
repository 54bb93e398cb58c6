package okx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hedge_go/internal/domain"
)

// Client is the OKX v5 REST API client (boundary layer). It implements
// the exchange side of the hedge.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger
}

// Credentials carries the OKX API key material.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
	Simulated  bool
}

// NewClient creates a new OKX API client. An empty key is rejected up
// front rather than at the first signed call.
func NewClient(creds Credentials, logger *slog.Logger) (*Client, error) {
	if creds.APIKey == "" || creds.SecretKey == "" || creds.Passphrase == "" {
		return nil, fmt.Errorf("okx credentials missing: %w", domain.ErrAuthentication)
	}
	return &Client{
		baseURL: BaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: NewSigner(creds.APIKey, creds.SecretKey, creds.Passphrase, creds.Simulated),
		logger: logger.With("component", "okx_client"),
	}, nil
}

// GetPosition reads the net swap position and converts it to signed USD
// cents of exposure. No row from the exchange means flat.
func (c *Client) GetPosition(ctx context.Context) (domain.ExchangePosition, error) {
	path := "/api/v5/account/positions?instType=SWAP&instId=" + Instrument
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.ExchangePosition{}, err
	}

	var resp positionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ExchangePosition{}, fmt.Errorf("parse positions response: %w", err)
	}
	if err := checkCode(resp.apiResponse); err != nil {
		return domain.ExchangePosition{}, err
	}

	pos := domain.ExchangePosition{Instrument: Instrument, FetchedAt: time.Now().UTC()}
	for _, d := range resp.Data {
		if d.InstID != Instrument || d.Pos == "" {
			continue
		}
		contracts, err := decimal.NewFromString(d.Pos)
		if err != nil {
			return domain.ExchangePosition{}, fmt.Errorf("parse position size %q: %w", d.Pos, err)
		}
		pos.Contracts = contracts
		// One contract is 100 USD of face value. A short position is
		// reported negative and maps to negative exposure.
		pos.ExposureCents = contracts.Mul(domain.CentsPerContract)
		break
	}
	return pos, nil
}

// PlaceOrder submits a market order on the swap instrument.
func (c *Client) PlaceOrder(ctx context.Context, order domain.HedgeOrder) error {
	req := orderRequest{
		InstID:    Instrument,
		TdMode:    "cross",
		Side:      string(order.Side),
		OrdType:   "market",
		Size:      strconv.FormatInt(order.Contracts, 10),
		ClientOID: sanitizeClientID(order.ClientOrderID),
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/api/v5/trade/order", req)
	if err != nil {
		return err
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parse order response: %w", err)
	}
	if err := checkCode(resp); err != nil {
		return err
	}

	c.logger.Info("order accepted",
		"side", order.Side, "contracts", order.Contracts, "cl_ord_id", req.ClientOID)
	return nil
}

// ClosePositions flattens the swap position with one call.
func (c *Client) ClosePositions(ctx context.Context, idempotencyKey string) error {
	req := closePositionRequest{
		InstID:    Instrument,
		MgnMode:   "cross",
		AutoCxl:   true,
		ClientOID: sanitizeClientID(idempotencyKey),
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/api/v5/trade/close-position", req)
	if err != nil {
		return err
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parse close response: %w", err)
	}
	// 51023: no position to close. Flattening a flat book is a success.
	if resp.Code == "51023" {
		return nil
	}
	if err := checkCode(resp); err != nil {
		return err
	}

	c.logger.Info("positions closed", "cl_ord_id", req.ClientOID)
	return nil
}

// doRequest signs and sends one request, translating transport and HTTP
// level failures into the shared taxonomy.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string
	if reqBody != nil {
		jsonBytes, err := json.Marshal(reqBody)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonBytes)
		bodyStr = string(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	for k, v := range c.signer.GenerateHeaders(method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewRemoteError("okx "+method+" "+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewRemoteError("okx read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("okx rejected credentials: status=%d body=%s: %w",
			resp.StatusCode, body, domain.ErrAuthentication)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewRemoteError(
			fmt.Sprintf("okx status %d", resp.StatusCode),
			fmt.Errorf("body=%s", body))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("okx api error: status=%d body=%s", resp.StatusCode, body)
	}
	return body, nil
}

// Signature, key and passphrase failures come back as business codes on
// a 200 response.
var authCodes = map[string]bool{
	"50100": true, "50102": true, "50103": true, "50104": true,
	"50105": true, "50111": true, "50113": true, "50114": true,
}

func checkCode(resp apiResponse) error {
	if resp.Code == "0" {
		return nil
	}
	if authCodes[resp.Code] {
		return fmt.Errorf("okx auth error: code=%s msg=%s: %w", resp.Code, resp.Msg, domain.ErrAuthentication)
	}
	return fmt.Errorf("okx business error: code=%s msg=%s", resp.Code, resp.Msg)
}

// sanitizeClientID fits a uuid into OKX's alphanumeric 32 char limit.
func sanitizeClientID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 32 {
		id = id[:32]
	}
	return id
}

var _ domain.ExchangeClient = (*Client)(nil)
