package apti

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_client_login            = "client.login"
	report_client_resolve_dwelling = "client.resolve-dwelling"

	loginEndpoint   = "/member/login_ok.asp"
	profileEndpoint = "/apti/subpage/?menucd=ACAI"
)

var (
	phoneNumberRegex = regexp.MustCompile(`^010\d{8}$`)
	tokenRegex       = regexp.MustCompile(`se%5Ftoken=([^;\s]+)`)
	siteCodeRegex    = regexp.MustCompile(`apti=codesave=([^;\s]+)`)
	dongHoRegex      = regexp.MustCompile(`(\d+)동\s*(\d+)호`)
)

// IsPhoneNumber reports whether an identifier is a mobile number (010 followed by 8 digits),
// those log in through a different form than regular ids.
func IsPhoneNumber(identifier string) bool {
	return phoneNumberRegex.MatchString(identifier)
}

func loginForm(creds Credentials) map[string]string {
	form := map[string]string{
		"pageGubu": "I",
		"pageMode": "I",
		"id":       creds.Identifier,
		"pwd":      creds.Secret,
	}
	if IsPhoneNumber(creds.Identifier) {
		form["gubu"] = "H"
		form["hp_id"] = creds.Identifier
		form["hp_pwd"] = creds.Secret
		return form
	}
	form["gubu"] = "I"
	form["login_id"] = creds.Identifier
	form["login_pwd"] = creds.Secret
	return form
}

// Login authenticates against the portal, replacing whatever session the client
// had before. A login whose dwelling cannot be resolved does not return an
// error, the returned session simply stays unauthenticated.
func (c *Client) Login(ctx context.Context, creds Credentials) (Session, error) {
	c.loginLock.Lock()
	defer c.loginLock.Unlock()

	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	c.tel.ReportDebug(report_client_login, "phone", IsPhoneNumber(creds.Identifier))

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/x-www-form-urlencoded").
		SetFormData(loginForm(creds)).
		Post(loginEndpoint)
	if err != nil {
		c.Logout()
		c.tel.ReportBroken(report_client_login, fmt.Errorf("fetch: %w", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "login request failed")
		return Session{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if res.StatusCode() != http.StatusOK {
		c.Logout()
		c.tel.ReportWarning(report_client_login, "unexpected status", res.StatusCode())
		span.SetStatus(codes.Error, "bad login status")
		return Session{}, fmt.Errorf("%w: status %d", ErrBadResponse, res.StatusCode())
	}

	cookies := strings.Join(res.Header().Values("Set-Cookie"), " ")
	tokenMatch := tokenRegex.FindStringSubmatch(cookies)
	siteCodeMatch := siteCodeRegex.FindStringSubmatch(cookies)
	if tokenMatch == nil || siteCodeMatch == nil {
		c.Logout()
		c.tel.ReportWarning(
			report_client_login,
			"missing cookies",
			"token", tokenMatch != nil,
			"site_code", siteCodeMatch != nil,
		)
		span.SetStatus(codes.Error, "missing session cookies")
		return Session{}, ErrMissingToken
	}

	session := Session{
		Token:    tokenMatch[1],
		SiteCode: siteCodeMatch[1],
	}
	c.tel.ReportDebug(report_client_login, "site_code", session.SiteCode)

	if c.opts.DwellingSource == DwellingFromPayment {
		// the dwelling arrives with the payment page
		session.Authenticated = true
		c.setSession(session)
		return session, nil
	}

	// the previous session stays published until the new one is complete
	dwelling, err := c.resolveDwelling(ctx, session)
	if err != nil {
		c.setSession(session)
		c.tel.ReportBroken(report_client_resolve_dwelling, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve dwelling")
		return session, nil
	}

	session.DwellingCode = dwelling
	session.Authenticated = true
	c.setSession(session)
	return session, nil
}

func (c *Client) resolveDwelling(ctx context.Context, session Session) (string, error) {
	doc, err := c.fetchDocument(ctx, session, http.MethodPost, profileEndpoint, nil)
	if err != nil {
		return "", err
	}
	return ParseProfileDwelling(doc)
}

// ParseProfileDwelling reads the "<building>동 <unit>호" address of the profile
// sub page into the 8 digit code the data pages expect, ex. "101동 203호" becomes "01010203".
func ParseProfileDwelling(doc *goquery.Document) (string, error) {
	address := doc.Find("div.Nbox1_txt10").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return dongHoRegex.MatchString(s.Text())
	}).First()
	if address.Length() == 0 {
		return "", fmt.Errorf("%w: address block not found", ErrDwellingUnresolved)
	}
	return FormatDwelling(address.Text())
}

// FormatDwelling extracts the building and unit numbers of an address and
// zero pads each of them to 4 digits.
func FormatDwelling(address string) (string, error) {
	groups := dongHoRegex.FindStringSubmatch(address)
	if groups == nil {
		return "", fmt.Errorf("%w: unrecognized address %q", ErrDwellingUnresolved, strings.TrimSpace(address))
	}
	dong, err := strconv.Atoi(groups[1])
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDwellingUnresolved, err)
	}
	ho, err := strconv.Atoi(groups[2])
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDwellingUnresolved, err)
	}
	return fmt.Sprintf("%04d%04d", dong, ho), nil
}
