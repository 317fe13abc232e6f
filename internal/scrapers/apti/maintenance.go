package apti

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"apti-backend/internal/components/telemetry"
	"apti-backend/lib/htmlutil"
	"apti-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_client_maintenance_payment = "client.maintenance-payment"
	report_client_maintenance_items   = "client.maintenance-items"

	paymentEndpoint = "/apti/manage/manage_cost.asp?menucd=ACAI"
	itemsEndpoint   = "/apti/manage/manage_dataJquery.asp"
)

// reportFailure marks span as failed and reports err as broken under id.
func (c *Client) reportFailure(span trace.Span, id string, err error) error {
	c.tel.ReportBroken(id, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// MaintenancePayment fetches the bill summary of the maintenance fee. When the
// dwelling is sourced from the payment page, the session's dwelling code is
// updated as a side effect.
func (c *Client) MaintenancePayment(ctx context.Context) (MaintenancePayment, error) {
	ctx, span := tracer.Start(ctx, "client:MaintenancePayment")
	defer span.End()

	session, err := c.authenticatedSession()
	if err != nil {
		return MaintenancePayment{}, c.reportFailure(span, report_client_maintenance_payment, err)
	}

	doc, err := c.fetchDocument(ctx, session, http.MethodGet, paymentEndpoint, nil)
	if err != nil {
		return MaintenancePayment{}, c.reportFailure(span, report_client_maintenance_payment, err)
	}

	if c.opts.DwellingSource == DwellingFromPayment {
		dwelling, err := ParseDwellingField(doc)
		if err != nil {
			c.tel.ReportWarning(report_client_maintenance_payment, err)
		} else {
			c.setDwelling(session.Token, dwelling)
		}
	}

	labelMonth := TargetMonth(c.clock.Now(), c.opts.LabelOffset)
	span.SetAttributes(attribute.String("label_month", labelMonth))

	return ParseMaintenancePayment(c.tel, doc, labelMonth), nil
}

// MaintenanceItems fetches the line items of the maintenance fee for the
// billing period PeriodOffset months back.
func (c *Client) MaintenanceItems(ctx context.Context) ([]MaintenanceItem, error) {
	ctx, span := tracer.Start(ctx, "client:MaintenanceItems")
	defer span.End()

	session, err := c.authenticatedSession()
	if err != nil {
		return nil, c.reportFailure(span, report_client_maintenance_items, err)
	}
	if session.DwellingCode == "" {
		return nil, c.reportFailure(
			span,
			report_client_maintenance_items,
			fmt.Errorf("%w: no dwelling code in session", ErrDwellingUnresolved),
		)
	}

	period := MonthsAgo(c.clock.Now(), c.opts.PeriodOffset)
	span.SetAttributes(attribute.String("billing_period", period))

	query := url.Values{}
	query.Set("ajaxGubu", "L")
	query.Set("orderType", "")
	query.Set("chkType", "ADD")
	query.Set("listNum", "20")
	query.Set("manageDataTot", "23")
	query.Set("code", session.SiteCode)
	query.Set("dongho", session.DwellingCode)
	query.Set("billym", period)

	doc, err := c.fetchDocument(ctx, session, http.MethodGet, itemsEndpoint, query)
	if err != nil {
		return nil, c.reportFailure(span, report_client_maintenance_items, err)
	}

	items := ParseMaintenanceItems(c.tel, doc)
	c.tel.ReportCount(report_client_maintenance_items, int64(len(items)))
	return items, nil
}

func findDt(doc *goquery.Document, label string) *goquery.Selection {
	return doc.Find("dt").FilterFunction(func(_ int, dt *goquery.Selection) bool {
		return strings.TrimSpace(dt.Text()) == label
	}).First()
}

// ParseMaintenancePayment reads the payment summary page. labelMonth is the
// bare month number the levied amount row is labeled with.
func ParseMaintenancePayment(tel telemetry.API, doc *goquery.Document, labelMonth string) MaintenancePayment {
	root := doc.Selection
	leviedLabel := fmt.Sprintf("%s월분 부과 금액", labelMonth)

	payment := MaintenancePayment{
		LeviedMonth: labelMonth,
		DueDate: htmlutil.ExtractText(
			tel, root, "div.endBox span",
			"납부 마감일을 찾을 수 없습니다.",
		),
		LeviedAmount: htmlutil.ExtractText(
			tel, findDt(doc, leviedLabel), "",
			fmt.Sprintf("%s을 찾을 수 없습니다.", leviedLabel),
			htmlutil.ViaFindNext(),
		),
		YearOverYear: htmlutil.ExtractText(
			tel, root, ".compaWrap li.compaBox .cost_txt p.price",
			"전년 동월 비교 금액을 찾을 수 없습니다.",
		),
		CurrentMonthHousehold: htmlutil.ExtractText(
			tel, root, ".compaWrap li.compaBox .cost_ico.current p.t_2",
			"이번달 금액을 찾을 수 없습니다.",
		),
	}

	// the highlighted amount is the most reliable one, the definition list
	// entry is only read when it is missing
	costPay := root.Find("span.costPay").First()
	if costPay.Length() > 0 {
		payment.PayableAmount = textutil.CleanAmount(costPay.Text())
	} else {
		tel.ReportWarning(report_client_maintenance_payment, "span.costPay missing, reading 납부하실 금액")
		payment.PayableAmount = textutil.CleanAmount(htmlutil.ExtractText(
			tel, findDt(doc, "납부하실 금액"), "",
			"납부할 금액을 찾을 수 없습니다.",
			htmlutil.ViaFindNext(),
		))
	}

	return payment
}

// ParseDwellingField reads the dwelling code from the hidden form field of the payment page.
func ParseDwellingField(doc *goquery.Document) (string, error) {
	value := strings.TrimSpace(doc.Find("input[name=dongho]").First().AttrOr("value", ""))
	if value == "" {
		return "", fmt.Errorf("%w: dongho field not found", ErrDwellingUnresolved)
	}
	return value, nil
}

// ParseMaintenanceItems reads the fee breakdown table. Every row is anchored
// by the `a.black` link holding its category, rows missing a cell or a value
// are skipped with a warning.
func ParseMaintenanceItems(tel telemetry.API, doc *goquery.Document) []MaintenanceItem {
	var items []MaintenanceItem
	doc.Find("a.black").Each(func(_ int, link *goquery.Selection) {
		category := strings.TrimSpace(link.Text())

		row := link.Closest("tr")
		if row.Length() == 0 {
			tel.ReportWarning(report_client_maintenance_items, "row not found", category)
			return
		}
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 4 {
			tel.ReportWarning(
				report_client_maintenance_items,
				"skipping row with missing cells",
				category,
				cells.Length(),
			)
			return
		}

		values := make([]string, 3)
		for i := range values {
			values[i] = strings.ReplaceAll(strings.TrimSpace(cells.Eq(i+1).Text()), ",", "")
		}
		if category == "" || values[0] == "" || values[1] == "" || values[2] == "" {
			tel.ReportWarning(report_client_maintenance_items, "skipping row with missing values", category)
			return
		}

		items = append(items, MaintenanceItem{
			Category: category,
			Current:  values[0],
			Previous: values[1],
			Delta:    values[2],
		})
	})
	return items
}
