package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/himanishpuri/songid/pkg/logger"
	"github.com/himanishpuri/songid/pkg/signature"
)

const (
	DefaultBaseURL  = "https://amp.shazam.com"
	DefaultTimezone = "Europe/London"
	DefaultTimeout  = 20 * time.Second

	tagPath = "/discovery/v5/en/US/android/-/tag/%s/%s"
	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20
)

var ErrNoMatch = errors.New("recognize: no match for this song")

// Clock returns the current time.
type Clock func() time.Time

// IDSource returns the two request ids embedded in the tag URL.
type IDSource func() (upper, lower string)

// RandomIDs returns an upper-case and a lower-case random UUID.
func RandomIDs() (string, string) {
	return strings.ToUpper(uuid.NewString()), uuid.NewString()
}

// Geolocation is sent with every request. The service only needs it to be
// plausible.
type Geolocation struct {
	Altitude  float64 `json:"altitude"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

var DefaultGeolocation = Geolocation{Altitude: 300, Latitude: 45, Longitude: 2}

// Client submits signatures to the recognition service.
type Client struct {
	baseURL  string
	timezone string
	geo      Geolocation
	http     *http.Client
	now      Clock
	ids      IDSource
	log      *logger.Logger

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func WithTimezone(tz string) Option {
	return func(c *Client) {
		c.timezone = tz
	}
}

func WithGeolocation(g Geolocation) Option {
	return func(c *Client) {
		c.geo = g
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func WithClock(now Clock) Option {
	return func(c *Client) {
		c.now = now
	}
}

func WithIDSource(ids IDSource) Option {
	return func(c *Client) {
		c.ids = ids
	}
}

// WithRand sets the source used to pick a User-Agent.
func WithRand(r *rand.Rand) Option {
	return func(c *Client) {
		c.rng = r
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		timezone: DefaultTimezone,
		geo:      DefaultGeolocation,
		http:     &http.Client{Timeout: DefaultTimeout},
		now:      time.Now,
		ids:      RandomIDs,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(uint64(c.now().UnixNano()), 0x5eed))
	}
	if c.log == nil {
		c.log = logger.GetLogger()
	}
	return c
}

type signaturePayload struct {
	SampleMs  uint32 `json:"samplems"`
	Timestamp uint32 `json:"timestamp"`
	URI       string `json:"uri"`
}

type requestBody struct {
	Geolocation Geolocation      `json:"geolocation"`
	Signature   signaturePayload `json:"signature"`
	Timestamp   uint32           `json:"timestamp"`
	Timezone    string           `json:"timezone"`
}

func (c *Client) userAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return userAgents[c.rng.IntN(len(userAgents))]
}

// newRequest builds the tag request for sig.
func (c *Client) newRequest(ctx context.Context, sig *signature.Signature) (*http.Request, time.Time, error) {
	uri, err := signature.EncodeURI(sig)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("encoding signature: %w", err)
	}

	now := c.now()
	// The service expects millisecond timestamps truncated to 32 bits.
	ts := uint32(now.UnixMilli())

	body, err := json.Marshal(requestBody{
		Geolocation: c.geo,
		Signature: signaturePayload{
			SampleMs:  sig.SampleMs(),
			Timestamp: ts,
			URI:       uri,
		},
		Timestamp: ts,
		Timezone:  c.timezone,
	})
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("marshaling request: %w", err)
	}

	upper, lower := c.ids()
	query := url.Values{}
	query.Set("sync", "true")
	query.Set("webv3", "true")
	query.Set("sampling", "true")
	query.Set("connected", "")
	query.Set("shazamapiversion", "v3")
	query.Set("sharehub", "true")
	query.Set("video", "v3")

	endpoint := c.baseURL + fmt.Sprintf(tagPath, upper, lower) + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Content-Language", "en_US")
	req.Header.Set("Content-Type", "application/json")

	return req, now, nil
}

// Recognize submits sig and returns the matched song. It returns
// ErrNoMatch when the service answers without a track.
func (c *Client) Recognize(ctx context.Context, sig *signature.Signature) (*Song, error) {
	req, sentAt, err := c.newRequest(ctx, sig)
	if err != nil {
		return nil, err
	}

	c.log.Debugf("Submitting signature: %d peaks, %d ms", sig.PeakCount(), sig.SampleMs())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	song, err := ParseResponse(raw)
	if err != nil {
		return nil, err
	}
	song.RecognizedAt = sentAt
	return song, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
