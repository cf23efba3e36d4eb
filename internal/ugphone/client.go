package ugphone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/snagbot/internal/model"
)

const (
	defaultBaseURL = "https://www.ugphone.com"
	trialPlanName  = "UVIP"
	codeOK         = 200
)

// Config holds UgPhone API client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the UgPhone web API. It performs exactly one outbound
// purchase flow per Attempt call and never retries on its own; retry policy
// belongs to the scheduler.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a UgPhone API client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// envelope is the common wrapper every UgPhone API response uses. Unknown
// fields are ignored so additive schema changes don't break classification.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type configListData struct {
	List []struct {
		ConfigName     string `json:"config_name"`
		AndroidVersion []struct {
			ConfigID string `json:"config_id"`
		} `json:"android_version"`
	} `json:"list"`
}

type mealListData struct {
	List struct {
		Subscription []struct {
			NetworkID string `json:"network_id"`
		} `json:"subscription"`
	} `json:"list"`
}

// Validate performs a lightweight authenticated call to check that a
// credential pair is accepted by the API. Used when an account is added,
// before anything is persisted.
func (c *Client) Validate(ctx context.Context, accessToken, loginID string) error {
	env, err := c.call(ctx, http.MethodGet, "/api/apiv1/info/configList2", accessToken, loginID, nil)
	if err != nil {
		return fmt.Errorf("validate credentials: %w", err)
	}
	if env.Code != codeOK {
		return fmt.Errorf("validate credentials: API error: %s", env.Msg)
	}
	return nil
}

// Attempt runs the full purchase flow for the trial plan once and classifies
// the result. The account record is never mutated.
func (c *Client) Attempt(ctx context.Context, acc *model.Account) Outcome {
	token, loginID := acc.AccessToken, acc.LoginID

	// Claim the new-user welcome package first. The endpoint is idempotent
	// and the purchase flow does not depend on its result.
	c.call(ctx, http.MethodPost, "/api/apiv1/fee/newPackage", token, loginID, struct{}{})

	env, err := c.call(ctx, http.MethodGet, "/api/apiv1/info/configList2", token, loginID, nil)
	if err != nil {
		return Outcome{Kind: KindServiceError, Detail: fmt.Sprintf("config list: %v", err)}
	}
	if env.Code != codeOK {
		return classifyAPIMessage("config list", env.Msg)
	}

	var cfgData configListData
	if err := json.Unmarshal(env.Data, &cfgData); err != nil {
		return Outcome{Kind: KindServiceError, Detail: fmt.Sprintf("config list: decode: %v", err)}
	}
	configID := ""
	for _, item := range cfgData.List {
		if item.ConfigName == trialPlanName && len(item.AndroidVersion) > 0 {
			configID = item.AndroidVersion[0].ConfigID
			break
		}
	}
	if configID == "" {
		// The trial plan disappears from the listing once an account has
		// consumed it.
		return Outcome{Kind: KindAlreadyOwned, Detail: "trial plan not offered to this account"}
	}

	env, err = c.call(ctx, http.MethodPost, "/api/apiv1/info/mealList", token, loginID,
		map[string]any{"config_id": configID})
	if err != nil {
		return Outcome{Kind: KindServiceError, Detail: fmt.Sprintf("meal list: %v", err)}
	}
	if env.Code != codeOK {
		return classifyAPIMessage("meal list", env.Msg)
	}

	var mealData mealListData
	if err := json.Unmarshal(env.Data, &mealData); err != nil {
		return Outcome{Kind: KindServiceError, Detail: fmt.Sprintf("meal list: decode: %v", err)}
	}
	if len(mealData.List.Subscription) == 0 || mealData.List.Subscription[0].NetworkID == "" {
		return Outcome{Kind: KindServiceError, Detail: "meal list: no subscription network offered"}
	}
	networkID := mealData.List.Subscription[0].NetworkID

	env, err = c.call(ctx, http.MethodPost, "/api/apiv1/fee/queryResourcePrice", token, loginID,
		map[string]any{
			"order_type":    "newpay",
			"period_time":   "4",
			"unit":          "hour",
			"resource_type": "cloudphone",
			"resource_param": map[string]any{
				"pay_mode":   "subscription",
				"config_id":  configID,
				"network_id": networkID,
				"count":      1,
				"use_points": 3,
				"points":     250,
			},
		})
	if err != nil {
		return Outcome{Kind: KindServiceError, Detail: fmt.Sprintf("query price: %v", err)}
	}
	amountID := ""
	if env.Code == codeOK {
		var priceData struct {
			AmountID string `json:"amount_id"`
		}
		if err := json.Unmarshal(env.Data, &priceData); err == nil {
			amountID = priceData.AmountID
		}
	}
	if amountID == "" {
		return classifyAPIMessage("query price", env.Msg)
	}

	env, err = c.call(ctx, http.MethodPost, "/api/apiv1/fee/payment", token, loginID,
		map[string]any{"amount_id": amountID, "pay_channel": "free"})
	if err != nil {
		return Outcome{Kind: KindServiceError, Detail: fmt.Sprintf("payment: %v", err)}
	}
	if env.Code == codeOK {
		var payData struct {
			OrderID string `json:"order_id"`
		}
		if err := json.Unmarshal(env.Data, &payData); err == nil && payData.OrderID != "" {
			return Outcome{Kind: KindSuccess, OrderID: payData.OrderID}
		}
	}
	return classifyAPIMessage("payment", env.Msg)
}

// classifyAPIMessage maps an API-level error message to an outcome. The
// phrase matching tracks the live service's current vocabulary and is the
// part of the client most likely to drift; anything unrecognized falls back
// to a retryable service error.
func classifyAPIMessage(step, msg string) Outcome {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "do not repeat"):
		return Outcome{Kind: KindAlreadyOwned, Detail: msg}
	case strings.Contains(lower, "sold out"),
		strings.Contains(lower, "out of stock"),
		strings.Contains(lower, "insufficient stock"),
		strings.Contains(lower, "not started"),
		strings.Contains(lower, "not yet"):
		return Outcome{Kind: KindNotYetAvailable, Detail: msg}
	case strings.Contains(lower, "token"),
		strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "login expired"),
		strings.Contains(lower, "please log in"):
		return Outcome{Kind: KindAuthError, Detail: msg}
	default:
		return Outcome{Kind: KindServiceError, Detail: fmt.Sprintf("%s: %s", step, msg)}
	}
}

// call issues one request and decodes the response envelope. HTTP-level
// failures (transport errors, non-200 statuses, unparseable bodies) are
// returned as errors; API-level failures come back in the envelope.
func (c *Client) call(ctx context.Context, method, path, accessToken, loginID string, body any) (*envelope, error) {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	setHeaders(req, accessToken, loginID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}

// setHeaders applies the browser profile the UgPhone web portal sends. The
// API rejects requests that don't look like they came from the portal.
func setHeaders(req *http.Request, accessToken, loginID string) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Lang", "en")
	req.Header.Set("Access-Token", accessToken)
	req.Header.Set("Login-Id", loginID)
	req.Header.Set("Origin", "https://www.ugphone.com/")
	req.Header.Set("Referer", "https://www.ugphone.com/toc-portal/")
	req.Header.Set("Terminal", "web")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36")
}
