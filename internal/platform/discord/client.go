// Package discord implements the relay's platform collaborator on top of the
// Discord REST API and gateway.
package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/spec-kit/ticket-relay/internal/platform"
)

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL           string
	Token             string
	RequestsPerSecond int
	Timeout           time.Duration
}

// Client is a thin Discord REST client. Every request waits on a shared
// limiter and 429 responses are retried after the advertised delay.
type Client struct {
	http *resty.Client
}

// NewClient creates a REST client authenticated as a bot.
func NewClient(cfg ClientConfig) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 40
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond)

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Authorization", "Bot "+cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "DiscordBot (ticket-relay, 1.0)").
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(resp *resty.Response, _ error) bool {
			return resp != nil && resp.StatusCode() == http.StatusTooManyRequests
		}).
		SetRetryAfter(retryAfter)

	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return &Client{http: httpClient}
}

func retryAfter(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
	if resp == nil {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(resp.Header().Get("Retry-After"), 64)
	if err != nil || secs <= 0 {
		return 0, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// CurrentUser returns the bot's own account.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var user User
	resp, err := c.http.R().SetContext(ctx).SetResult(&user).Get("/users/@me")
	if err := checkResponse(resp, err); err != nil {
		return User{}, err
	}
	return user, nil
}

// Guilds lists the servers the bot belongs to.
func (c *Client) Guilds(ctx context.Context) ([]Guild, error) {
	var guilds []Guild
	resp, err := c.http.R().SetContext(ctx).SetResult(&guilds).Get("/users/@me/guilds")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return guilds, nil
}

// GetChannel fetches a channel by id.
func (c *Client) GetChannel(ctx context.Context, channelID string) (Channel, error) {
	var ch Channel
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("channel", channelID).
		SetResult(&ch).
		Get("/channels/{channel}")
	if err := checkResponse(resp, err); err != nil {
		return Channel{}, err
	}
	return ch, nil
}

// DeleteChannel removes a channel. A channel that no longer exists is not an error.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("channel", channelID).
		Delete("/channels/{channel}")
	err = checkResponse(resp, err)
	if platform.IsCode(err, platform.CodeUnknownChannel) {
		return nil
	}
	return err
}

func (c *Client) createGuildChannel(ctx context.Context, guildID string, body createChannelRequest) (Channel, error) {
	var ch Channel
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("guild", guildID).
		SetBody(body).
		SetResult(&ch).
		Post("/guilds/{guild}/channels")
	if err := checkResponse(resp, err); err != nil {
		return Channel{}, err
	}
	return ch, nil
}

func (c *Client) createMessage(ctx context.Context, channelID string, body createMessageRequest) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("channel", channelID).
		SetBody(body).
		Post("/channels/{channel}/messages")
	return checkResponse(resp, err)
}

func (c *Client) respondInteraction(ctx context.Context, interaction Interaction, body interactionResponse) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", interaction.ID).
		SetPathParam("token", interaction.Token).
		SetBody(body).
		Post("/interactions/{id}/{token}/callback")
	return checkResponse(resp, err)
}

// checkResponse turns transport failures and error statuses into errors.
// Error bodies are decoded into *platform.Error.
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	perr := &platform.Error{Status: resp.StatusCode()}
	if body := resp.Body(); len(body) > 0 {
		_ = json.Unmarshal(body, perr)
	}
	if perr.Message == "" {
		perr.Message = http.StatusText(resp.StatusCode())
	}
	return perr
}
