package apti

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"apti-backend/internal/components/assert"
	"apti-backend/internal/components/chrono"
	"apti-backend/internal/components/telemetry"
	"apti-backend/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("apti-backend/internal/scrapers/apti")

const (
	DefaultBaseUrl      = "https://www.apti.co.kr"
	DefaultTimeout      = time.Second * 5
	DefaultPeriodOffset = 2
	DefaultLabelOffset  = 1

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	tokenCookieName  = "se%5Ftoken"
)

// DwellingSource selects where the building/unit code of a household is read from,
// portal versions disagree on this so a deployment picks exactly one.
type DwellingSource string

const (
	// DwellingFromProfile resolves the dwelling during login from the profile sub page.
	DwellingFromProfile DwellingSource = "profile"
	// DwellingFromPayment resolves the dwelling from the hidden form field of the payment page.
	DwellingFromPayment DwellingSource = "payment"
)

type ClientOptions struct {
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl string
	// Timeout bounds every single request, it defaults to DefaultTimeout.
	Timeout time.Duration
	// RateLimit is the maximum amount of requests per second, it defaults to 2.
	RateLimit float64
	UserAgent string
	// CloudflareBypass wraps the transport to look like a regular browser to cloudflare.
	CloudflareBypass bool
	// InstrumentOutput receives a dump of every HTTP exchange when debug logging is enabled.
	InstrumentOutput restyutil.InstrumentOutput
	// DwellingSource defaults to DwellingFromProfile.
	DwellingSource DwellingSource
	// PeriodOffset is how many months back the billing period of the fee items is, it defaults to 2.
	PeriodOffset int
	// LabelOffset is how many months back the levied amount label is, it defaults to 1.
	LabelOffset int
	// Clock defaults to chrono.StandardTime.
	Clock chrono.TimeAPI
}

// Client is an APT.i portal session. It is safe for concurrent use, the
// session is only ever replaced as a whole and readers get a copy.
type Client struct {
	http  *resty.Client
	tel   telemetry.API
	clock chrono.TimeAPI
	opts  ClientOptions

	// loginLock serializes logins so that two session renewals never interleave.
	loginLock   sync.Mutex
	sessionLock sync.RWMutex
	session     Session
}

func NewClient(opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel, "tel")

	tel = telemetry.NewScopedAPI("apti_scraper", tel)

	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 2
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.DwellingSource == "" {
		opts.DwellingSource = DwellingFromProfile
	}
	if opts.DwellingSource != DwellingFromProfile && opts.DwellingSource != DwellingFromPayment {
		return nil, fmt.Errorf("unknown dwelling source %q", opts.DwellingSource)
	}
	if opts.PeriodOffset <= 0 {
		opts.PeriodOffset = DefaultPeriodOffset
	}
	if opts.LabelOffset <= 0 {
		opts.LabelOffset = DefaultLabelOffset
	}
	if opts.Clock == nil {
		opts.Clock = chrono.NewStandardTime()
	}

	_, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	// the session cookie is attached by hand so that replacing a session is a
	// single assignment instead of a cookie jar mutation
	httpClient.SetCookieJar(nil)
	httpClient.SetTimeout(opts.Timeout)
	httpClient.SetHeader("user-agent", opts.UserAgent)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	// max burst >= 2 just means that no requests will be dropped
	rateLimiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel)
	restyutil.InstrumentClient(
		httpClient, tracer, opts.InstrumentOutput,
		"cookie", "set-cookie", "pwd", "login_pwd", "hp_pwd",
	)

	return &Client{
		http:  httpClient,
		tel:   tel,
		clock: opts.Clock,
		opts:  opts,
	}, nil
}

// Session returns a copy of the current session.
func (c *Client) Session() Session {
	c.sessionLock.RLock()
	defer c.sessionLock.RUnlock()
	return c.session
}

// Authenticated reports whether data pages can be fetched.
func (c *Client) Authenticated() bool {
	return c.Session().Authenticated
}

// Logout forgets the current session.
func (c *Client) Logout() {
	c.setSession(Session{})
}

func (c *Client) setSession(session Session) {
	c.sessionLock.Lock()
	defer c.sessionLock.Unlock()
	c.session = session
}

// setDwelling records a dwelling code found on a data page, it is dropped if
// the session was replaced since the page was requested.
func (c *Client) setDwelling(token, dwelling string) {
	c.sessionLock.Lock()
	defer c.sessionLock.Unlock()
	if c.session.Token != token {
		return
	}
	c.session.DwellingCode = dwelling
}

func (c *Client) authenticatedSession() (Session, error) {
	session := c.Session()
	if !session.Authenticated {
		return session, ErrNotAuthenticated
	}
	return session, nil
}

func decodeBody(body []byte) ([]byte, error) {
	return korean.EUCKR.NewDecoder().Bytes(body)
}

// fetchDocument issues a single request carrying the session cookie and
// parses the EUC-KR encoded response.
func (c *Client) fetchDocument(
	ctx context.Context,
	session Session,
	method,
	endpoint string,
	query url.Values,
) (*goquery.Document, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("cookie", fmt.Sprintf("%s=%s", tokenCookieName, session.Token))
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}

	res, err := req.Execute(method, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, endpoint, err)
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrTransport, method, endpoint, res.StatusCode())
	}

	body, err := decodeBody(res.Body())
	if err != nil {
		return nil, fmt.Errorf("decode euc-kr body: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
