package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/WelcomerTeam/Discord/discord"
	"github.com/WelcomerTeam/RealRock/bucketstore"
	"github.com/WelcomerTeam/Sandwich-Roulette/discord/structs"
	"github.com/WelcomerTeam/Sandwich-Roulette/gatewayjson"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

const (
	RESTTimeout = 10 * time.Second

	// Requests allowed per route in each RESTBucketDuration.
	RESTBucketLimit    = 5
	RESTBucketDuration = 5 * time.Second

	UserAgent = "DiscordBot (https://github.com/WelcomerTeam/Sandwich-Roulette, " + VERSION + ")"
)

// RestError is returned when discord responds with a non 2xx status.
type RestError struct {
	Body       []byte
	StatusCode int
}

func (e *RestError) Error() string {
	return fmt.Sprintf("rest request failed with status %d: %s", e.StatusCode, e.Body)
}

// RESTClient makes the REST calls commands need.
type RESTClient struct {
	Logger zerolog.Logger

	client  *fasthttp.Client
	buckets *bucketstore.BucketStore
	baseURL string
	token   string
}

func NewRESTClient(logger zerolog.Logger, apiURL string, token string) *RESTClient {
	return &RESTClient{
		Logger: logger.With().Str("component", "rest").Logger(),

		client: &fasthttp.Client{
			Name:                     UserAgent,
			NoDefaultUserAgentHeader: true,
		},
		buckets: bucketstore.NewBucketStore(),
		baseURL: strings.TrimSuffix(apiURL, "/") + "/api/v" + structs.GatewayVersion,
		token:   token,
	}
}

// CreateMessage posts a message to a channel.
func (r *RESTClient) CreateMessage(ctx context.Context, channelID discord.Snowflake, params structs.MessageParams) error {
	body, err := gatewayjson.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = r.Fetch(ctx, fasthttp.MethodPost, "/channels/"+channelID.String()+"/messages", body)

	return err
}

// Fetch performs a request against the API and returns the response body.
func (r *RESTClient) Fetch(ctx context.Context, method string, endpoint string, body []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.buckets.CreateWaitForBucket(routeBucket(method, endpoint), RESTBucketLimit, RESTBucketDuration); err != nil {
		return nil, fmt.Errorf("failed to wait for bucket: %w", err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.baseURL + endpoint)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bot "+r.token)
	req.Header.SetUserAgent(UserAgent)

	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(body)
	}

	timeout := RESTTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	start := time.Now()

	if err := r.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", method, endpoint, err)
	}

	r.Logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode()).
		Dur("took", time.Since(start)).
		Msg("REST request")

	// The response is released on return so the body is copied.
	respBody := append([]byte(nil), resp.Body()...)

	if status := resp.StatusCode(); status < fasthttp.StatusOK || status >= fasthttp.StatusMultipleChoices {
		return nil, &RestError{StatusCode: status, Body: respBody}
	}

	return respBody, nil
}

// routeBucket returns the ratelimit bucket of a request. Snowflakes in the path
// are replaced so every channel shares the bucket of its route.
func routeBucket(method string, endpoint string) string {
	segments := strings.Split(endpoint, "/")

	for i, segment := range segments {
		if segment != "" && strings.Trim(segment, "0123456789") == "" {
			segments[i] = "{id}"
		}
	}

	return method + " " + strings.Join(segments, "/")
}
