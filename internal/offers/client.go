// Package offers wraps the signed affiliate search endpoint.
//
// One client is shared by all tenant loops; requests carry per-tenant
// credentials. A process-wide rate limiter keeps the aggregate call rate
// below the affiliate API's tolerance.
package offers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"offerbot/internal/model"
	logx "offerbot/pkg/logx"
)

type Credentials struct {
	AppID     string
	AppSecret string
}

type Config struct {
	Endpoint   string
	Timeout    time.Duration
	RatePerSec int
	// PageSpread > 1 picks a random page in [1, PageSpread] so consecutive
	// searches for the same keyword don't replay the first result page.
	PageSpread int
	PageLimit  int
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	// now is swapped in tests to pin the signature timestamp.
	now func() time.Time
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 10
	}
	if cfg.PageSpread <= 0 {
		cfg.PageSpread = 1
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// Search runs one signed search call and returns the candidates on that page,
// filtered to sendable ones (named, with sales).
func (c *Client) Search(ctx context.Context, creds Credentials, keyword string, page, limit int) ([]model.Offer, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = c.cfg.PageLimit
	}

	query := fmt.Sprintf(
		`query { productOfferV2(keyword: %s, sortType: 2, page: %d, limit: %d) { nodes { itemId productName imageUrl price offerLink priceDiscountRate ratingStar sales } } }`,
		strconv.Quote(keyword), page, limit,
	)
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	ts := c.now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authorization(creds, ts, payload))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("offer search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("offer search: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("offer search: status %d: %s", resp.StatusCode, truncateBody(body))
	}

	return decodeOffers(body)
}

// SearchRandomPage is Search on a page drawn from [1, PageSpread].
func (c *Client) SearchRandomPage(ctx context.Context, creds Credentials, keyword string) ([]model.Offer, error) {
	page := 1
	if c.cfg.PageSpread > 1 {
		c.rngMu.Lock()
		page = 1 + c.rng.Intn(c.cfg.PageSpread)
		c.rngMu.Unlock()
	}
	return c.Search(ctx, creds, keyword, page, c.cfg.PageLimit)
}

// authorization builds the signed header:
// SHA256 over appID + timestamp + payload + appSecret, hex-encoded.
func authorization(creds Credentials, ts int64, payload []byte) string {
	var b strings.Builder
	b.WriteString(creds.AppID)
	b.WriteString(strconv.FormatInt(ts, 10))
	b.Write(payload)
	b.WriteString(creds.AppSecret)
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("SHA256 Credential=%s, Timestamp=%d, Signature=%s",
		creds.AppID, ts, hex.EncodeToString(sum[:]))
}

// The affiliate API is loose with numeric types (price arrives as a string,
// sales sometimes as a number). flexFloat/flexInt accept both.

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}

type wireOffer struct {
	ItemID            json.Number `json:"itemId"`
	ProductName       string      `json:"productName"`
	ImageURL          string      `json:"imageUrl"`
	Price             flexFloat   `json:"price"`
	OfferLink         string      `json:"offerLink"`
	PriceDiscountRate flexInt     `json:"priceDiscountRate"`
	RatingStar        flexFloat   `json:"ratingStar"`
	Sales             flexInt     `json:"sales"`
}

type wireResponse struct {
	Data struct {
		ProductOfferV2 struct {
			Nodes []wireOffer `json:"nodes"`
		} `json:"productOfferV2"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func decodeOffers(body []byte) ([]model.Offer, error) {
	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, fmt.Errorf("offer search: decode: %w", err)
	}
	if len(wr.Errors) > 0 {
		return nil, fmt.Errorf("offer search: api error: %s", wr.Errors[0].Message)
	}

	nodes := wr.Data.ProductOfferV2.Nodes
	out := make([]model.Offer, 0, len(nodes))
	for _, n := range nodes {
		o := model.Offer{
			ItemID:       n.ItemID.String(),
			Name:         strings.TrimSpace(n.ProductName),
			ImageURL:     n.ImageURL,
			Price:        float64(n.Price),
			DiscountRate: int(n.PriceDiscountRate),
			Rating:       float64(n.RatingStar),
			Sales:        int(n.Sales),
			Link:         n.OfferLink,
		}
		if o.Sendable() {
			out = append(out, o)
		}
	}
	return out, nil
}

func truncateBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
