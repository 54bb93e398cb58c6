// Package galoy is the GraphQL client for the stablecoin wallet backend,
// the external source of raw transaction legs.
package galoy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hedge_go/internal/domain"
)

// PageSize is the fixed transaction page size the backend serves.
const PageSize = 100

const transactionsQuery = `
query transactions($first: Int!, $after: String) {
  me {
    defaultAccount {
      transactions(first: $first, after: $after) {
        pageInfo { hasNextPage endCursor }
        edges {
          cursor
          node {
            id
            createdAt
            direction
            memo
            settlementAmount
            settlementCurrency
            settlementDisplayAmount
            settlementVia { __typename }
          }
        }
      }
    }
  }
}`

// Client talks to the wallet backend over GraphQL.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates the key material up front; a missing key would
// otherwise only fail at the first poll.
func NewClient(endpoint, apiKey string, logger *slog.Logger) (*Client, error) {
	if endpoint == "" {
		return nil, &domain.ConfigError{Field: "galoy.endpoint", Err: fmt.Errorf("missing")}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("galoy api key missing: %w", domain.ErrAuthentication)
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With("component", "galoy_client"),
	}, nil
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type txNode struct {
	ID                      string          `json:"id"`
	CreatedAt               int64           `json:"createdAt"`
	Direction               string          `json:"direction"`
	Memo                    *string         `json:"memo"`
	SettlementAmount        decimal.Decimal `json:"settlementAmount"`
	SettlementCurrency      string          `json:"settlementCurrency"`
	SettlementDisplayAmount decimal.Decimal `json:"settlementDisplayAmount"`
	SettlementVia           struct {
		Typename string `json:"__typename"`
	} `json:"settlementVia"`
}

type gqlResponse struct {
	Data struct {
		Me struct {
			DefaultAccount struct {
				Transactions struct {
					PageInfo struct {
						HasNextPage bool    `json:"hasNextPage"`
						EndCursor   *string `json:"endCursor"`
					} `json:"pageInfo"`
					Edges []struct {
						Cursor string `json:"cursor"`
						Node   txNode `json:"node"`
					} `json:"edges"`
				} `json:"transactions"`
			} `json:"defaultAccount"`
		} `json:"me"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ListTransactions fetches one page of wallet transactions after the
// given cursor. An empty cursor starts from the beginning.
func (c *Client) ListTransactions(ctx context.Context, cursor string) (domain.LegPage, error) {
	vars := map[string]any{"first": PageSize}
	if cursor != "" {
		vars["after"] = cursor
	}

	body, err := json.Marshal(gqlRequest{Query: transactionsQuery, Variables: vars})
	if err != nil {
		return domain.LegPage{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.LegPage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.LegPage{}, domain.NewRemoteError("galoy list transactions", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.LegPage{}, domain.NewRemoteError("galoy read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.LegPage{}, fmt.Errorf("galoy rejected api key: status=%d: %w",
			resp.StatusCode, domain.ErrAuthentication)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return domain.LegPage{}, domain.NewRemoteError(
			fmt.Sprintf("galoy status %d", resp.StatusCode),
			fmt.Errorf("body=%s", raw))
	case resp.StatusCode != http.StatusOK:
		return domain.LegPage{}, fmt.Errorf("galoy api error: status=%d body=%s", resp.StatusCode, raw)
	}

	var parsed gqlResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.LegPage{}, fmt.Errorf("parse galoy response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		msg := parsed.Errors[0].Message
		if strings.Contains(strings.ToLower(msg), "not authorized") {
			return domain.LegPage{}, fmt.Errorf("galoy: %s: %w", msg, domain.ErrAuthentication)
		}
		return domain.LegPage{}, fmt.Errorf("galoy graphql error: %s", msg)
	}

	txs := parsed.Data.Me.DefaultAccount.Transactions
	page := domain.LegPage{HasMore: txs.PageInfo.HasNextPage}
	if txs.PageInfo.EndCursor != nil {
		page.NextCursor = *txs.PageInfo.EndCursor
	}
	for _, edge := range txs.Edges {
		leg, err := mapLeg(edge.Cursor, edge.Node)
		if err != nil {
			c.logger.Warn("skipping malformed transaction", "id", edge.Node.ID, "error", err)
			continue
		}
		page.Legs = append(page.Legs, leg)
	}
	return page, nil
}

func mapLeg(cursor string, node txNode) (domain.RawLeg, error) {
	var currency domain.Currency
	switch node.SettlementCurrency {
	case "BTC":
		currency = domain.CurrencyBTC
	case "USD":
		currency = domain.CurrencyUSD
	default:
		return domain.RawLeg{}, fmt.Errorf("settlement currency %q: %w",
			node.SettlementCurrency, domain.ErrValidation)
	}

	var direction domain.LegDirection
	switch node.Direction {
	case "RECEIVE":
		direction = domain.LegReceive
	case "SEND":
		direction = domain.LegSend
	default:
		return domain.RawLeg{}, fmt.Errorf("direction %q: %w", node.Direction, domain.ErrValidation)
	}

	// The display amount comes in whole dollars, the pairing tolerance
	// works in cents.
	cents := node.SettlementDisplayAmount.Mul(decimal.NewFromInt(100))

	return domain.RawLeg{
		ID:                 node.ID,
		Cursor:             cursor,
		CreatedAt:          time.Unix(node.CreatedAt, 0).UTC(),
		SettlementAmount:   node.SettlementAmount,
		SettlementCurrency: currency,
		SettlementMethod:   node.SettlementVia.Typename,
		Direction:          direction,
		Memo:               node.Memo,
		AmountInUsdCents:   cents,
	}, nil
}

var _ domain.TransactionSource = (*Client)(nil)
