package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/koyif/cashdesk/internal/domain"
	"github.com/koyif/cashdesk/pkg/dto"
	"github.com/koyif/cashdesk/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	requestTimeout = 30 * time.Second
	dtLayout       = "2006.01.02 15:04:05"

	// errBodyLimit bounds how much of a failed response is carried back to
	// the admin.
	errBodyLimit = 200
)

// Client talks to the external cashier API. Every call is signed, carries a
// bounded timeout and maps non-200 responses and transport faults to
// *domain.GatewayError instead of raising them further.
type Client struct {
	baseURL string
	lng     string
	signer  *Signer
	secrets Secrets
	client  *http.Client
	now     func() time.Time
}

func NewClient(baseURL, lng string, secrets Secrets) *Client {
	return &Client{
		baseURL: baseURL,
		lng:     lng,
		signer:  NewSigner(secrets),
		secrets: secrets,
		client:  &http.Client{Timeout: requestTimeout},
		now:     time.Now,
	}
}

// Balance fetches the cashdesk balance and limit.
func (c *Client) Balance(ctx context.Context) (*domain.CashdeskBalance, error) {
	dt := c.now().UTC().Format(dtLayout)
	desk := strconv.Itoa(c.secrets.CashdeskID)

	reqURL, err := c.buildURL([]string{"Cashdesk", desk, "Balance"}, url.Values{
		"confirm": {c.signer.ConfirmToken(desk)},
		"dt":      {dt},
	})
	if err != nil {
		return nil, err
	}

	var res dto.GatewayBalanceResponse
	if err := c.get(ctx, reqURL, c.signer.BalanceSignature(dt), &res); err != nil {
		return nil, err
	}

	balance := decimal.NewFromFloat(res.Balance)
	limit := decimal.NewFromFloat(res.Limit)

	return &domain.CashdeskBalance{
		Balance:   balance,
		Limit:     limit,
		Available: limit.Sub(balance),
	}, nil
}

// FindUser looks a player up on the gateway side.
func (c *Client) FindUser(ctx context.Context, userID int64) (*dto.GatewayUser, error) {
	id := strconv.FormatInt(userID, 10)

	reqURL, err := c.buildURL([]string{"Users", id}, url.Values{
		"confirm":    {c.signer.ConfirmToken(id)},
		"cashdeskId": {strconv.Itoa(c.secrets.CashdeskID)},
	})
	if err != nil {
		return nil, err
	}

	var res dto.GatewayUser
	if err := c.get(ctx, reqURL, c.signer.FindUserSignature(userID), &res); err != nil {
		return nil, err
	}

	return &res, nil
}

// Deposit credits the player's gateway account. A success=false payload on
// HTTP 200 is a gateway error like any other.
func (c *Client) Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (*dto.GatewayDepositResponse, error) {
	id := strconv.FormatInt(userID, 10)

	reqURL, err := c.buildURL([]string{"Deposit", id, "Add"}, nil)
	if err != nil {
		return nil, err
	}

	summa, _ := amount.Float64()
	body := dto.GatewayDepositRequest{
		CashdeskID: c.secrets.CashdeskID,
		Lng:        c.lng,
		Summa:      summa,
		Confirm:    c.signer.ConfirmToken(id),
	}

	var res dto.GatewayDepositResponse
	err = c.post(ctx, reqURL, c.signer.DepositSignature(userID, amount.String(), c.lng), body, &res)
	if err != nil {
		return nil, err
	}

	if !res.Success {
		logger.Log.Warn("deposit rejected by gateway",
			logger.Int64("user_id", userID),
			logger.String("message", res.Message),
			logger.Int64("message_id", res.MessageID),
		)
		return nil, &domain.GatewayError{StatusCode: http.StatusOK, Message: res.Message}
	}

	return &res, nil
}

// Payout pays the player out against a redemption code.
func (c *Client) Payout(ctx context.Context, userID int64, code string) (*dto.GatewayPayoutResponse, error) {
	id := strconv.FormatInt(userID, 10)

	reqURL, err := c.buildURL([]string{"Deposit", id, "Payout"}, nil)
	if err != nil {
		return nil, err
	}

	body := dto.GatewayPayoutRequest{
		CashdeskID: c.secrets.CashdeskID,
		Lng:        c.lng,
		Code:       code,
		Confirm:    c.signer.ConfirmToken(id),
	}

	var res dto.GatewayPayoutResponse
	err = c.post(ctx, reqURL, c.signer.PayoutSignature(userID, code, c.lng), body, &res)
	if err != nil {
		return nil, err
	}

	if !res.Success {
		logger.Log.Warn("payout rejected by gateway",
			logger.Int64("user_id", userID),
			logger.String("message", res.Message),
		)
		return nil, &domain.GatewayError{StatusCode: http.StatusOK, Message: res.Message}
	}

	return &res, nil
}

func (c *Client) buildURL(parts []string, query url.Values) (string, error) {
	baseURL, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("error parsing gateway URL: %w", err)
	}

	baseURL = baseURL.JoinPath(parts...)
	if query != nil {
		baseURL.RawQuery = query.Encode()
	}

	return baseURL.String(), nil
}

func (c *Client) get(ctx context.Context, reqURL, sign string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("error building gateway request: %w", err)
	}
	req.Header.Set("sign", sign)

	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, reqURL, sign string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error encoding gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error building gateway request: %w", err)
	}
	req.Header.Set("sign", sign)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	response, err := c.client.Do(req)
	if err != nil {
		logger.Log.Error("error while sending request to gateway", logger.Error(err))
		return &domain.GatewayError{Message: err.Error()}
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			logger.Log.Error("error while closing response body", logger.Error(err))
			return
		}
	}(response.Body)

	if response.StatusCode != http.StatusOK {
		return responseError(response)
	}

	err = json.NewDecoder(response.Body).Decode(out)
	if err != nil {
		return &domain.GatewayError{StatusCode: response.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)}
	}

	return nil
}

// responseError distinguishes signature rejections, which are a configuration
// problem and must not be retried, from everything else.
func responseError(response *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(response.Body, errBodyLimit))
	if err != nil {
		body = nil
	}

	if response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden {
		logger.Log.Error("gateway rejected the request signature",
			logger.Int64("status", int64(response.StatusCode)),
			logger.String("body", string(body)),
		)
		return fmt.Errorf("%w: HTTP %d", domain.ErrSignatureRejected, response.StatusCode)
	}

	return &domain.GatewayError{StatusCode: response.StatusCode, Message: string(body)}
}
