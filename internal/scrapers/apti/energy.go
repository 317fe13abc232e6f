package apti

import (
	"context"
	"net/http"
	"strings"

	"apti-backend/internal/components/telemetry"
	"apti-backend/lib/htmlutil"
	"apti-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_client_energy_category = "client.energy-category"
	report_client_energy_types    = "client.energy-types"

	energyCategoryEndpoint = "/apti/manage/manage_energy.asp?menucd=ACAD"
	energyTypesEndpoint    = "/apti/manage/manage_energyGogi.asp?menucd=ACAE"
)

// EnergyCategory fetches the monthly energy summary along with the per
// category boxes of the same page.
func (c *Client) EnergyCategory(ctx context.Context) (EnergyUsage, []EnergyDetail, error) {
	ctx, span := tracer.Start(ctx, "client:EnergyCategory")
	defer span.End()

	session, err := c.authenticatedSession()
	if err != nil {
		return EnergyUsage{}, nil, c.reportFailure(span, report_client_energy_category, err)
	}

	doc, err := c.fetchDocument(ctx, session, http.MethodGet, energyCategoryEndpoint, nil)
	if err != nil {
		return EnergyUsage{}, nil, c.reportFailure(span, report_client_energy_category, err)
	}

	usage := ParseEnergyUsage(c.tel, doc)
	details := ParseEnergyDetails(c.tel, doc)
	c.tel.ReportCount(report_client_energy_category, int64(len(details)))
	return usage, details, nil
}

// EnergyTypes fetches the bill panels of every energy type.
func (c *Client) EnergyTypes(ctx context.Context) ([]EnergyType, error) {
	ctx, span := tracer.Start(ctx, "client:EnergyTypes")
	defer span.End()

	session, err := c.authenticatedSession()
	if err != nil {
		return nil, c.reportFailure(span, report_client_energy_types, err)
	}

	doc, err := c.fetchDocument(ctx, session, http.MethodGet, energyTypesEndpoint, nil)
	if err != nil {
		return nil, c.reportFailure(span, report_client_energy_types, err)
	}

	types := ParseEnergyTypes(c.tel, doc)
	c.tel.ReportCount(report_client_energy_types, int64(len(types)))
	return types, nil
}

// ParseEnergyUsage reads the summary at the top of the energy category page.
func ParseEnergyUsage(tel telemetry.API, doc *goquery.Document) EnergyUsage {
	top := doc.Find("div.energyTop").First()

	usage := EnergyUsage{
		Month: htmlutil.ExtractText(
			tel, top, "span.month",
			"에너지 사용 월을 찾을 수 없습니다.",
		),
		TotalUsage: strings.ReplaceAll(htmlutil.ExtractText(
			tel, top, "strong.data1",
			"총 에너지 사용량을 찾을 수 없습니다.",
		), ",", ""),
		AverageComparison: htmlutil.ExtractText(
			tel, doc.Find("div.energy_data").First(), "p.txt",
			"평균 대비 비교를 찾을 수 없습니다.",
		),
		Breakdown: map[string]string{},
	}

	doc.Find("div.energy_data2 li").Each(func(_ int, li *goquery.Selection) {
		kind := htmlutil.OwnText(li)
		share := strings.TrimSpace(li.Find("strong").First().Text())
		if kind == "" || share == "" {
			tel.ReportWarning(report_client_energy_category, "skipping breakdown entry", kind)
			return
		}
		usage.Breakdown[kind] = share + "%"
	})

	return usage
}

// ParseEnergyDetails reads every `div.engBox` of the energy category page,
// boxes without a heading are skipped.
func ParseEnergyDetails(tel telemetry.API, doc *goquery.Document) []EnergyDetail {
	var details []EnergyDetail
	doc.Find("div.engBox").Each(func(i int, box *goquery.Selection) {
		kind := strings.TrimSpace(box.Find("h3").First().Text())
		if kind == "" {
			tel.ReportWarning(report_client_energy_category, "skipping energy box without heading", i)
			return
		}

		costItem := box.Find("li.line").First().NextAllFiltered("li").First()
		details = append(details, EnergyDetail{
			Type: kind,
			Usage: htmlutil.ExtractText(
				tel, box.Find("li").First(), "strong",
				kind+" 사용량을 찾을 수 없습니다.",
			),
			Cost: strings.ReplaceAll(htmlutil.ExtractText(
				tel, costItem, "strong",
				kind+" 비용을 찾을 수 없습니다.",
			), ",", ""),
			Comparison: htmlutil.ExtractText(
				tel, box.Find("div.txtBox").First(), "strong",
				kind+" 비교를 찾을 수 없습니다.",
			),
		})
	})
	return details
}

// ParseEnergyTypes reads the bill panels of the energy type page. The first
// two panels are always electricity and heat, their headings are images, any
// further panel is named by its text heading.
func ParseEnergyTypes(tel telemetry.API, doc *goquery.Document) []EnergyType {
	var types []EnergyType
	doc.Find("div.billBox").Each(func(i int, panel *goquery.Selection) {
		var kind string
		switch i {
		case 0:
			kind = "전기"
		case 1:
			kind = "열"
		default:
			kind = htmlutil.ExtractText(tel, panel, "h3", "에너지 종류를 찾을 수 없습니다.")
			if kind == "" {
				return
			}
		}

		entry := EnergyType{
			Type: kind,
			TotalCost: textutil.CleanAmount(htmlutil.ExtractText(
				tel, panel, "div.enePay",
				kind+" 총액을 찾을 수 없습니다.",
			)),
			Comparison: htmlutil.ExtractText(
				tel, panel, "div.energy_data.date1 p.txt",
				kind+" 비교를 찾을 수 없습니다.",
			),
		}

		if i == 0 {
			entry.Usage = parenthesizedField(
				tel, panel, "p.eneDownTxt",
				kind+" 사용량을 찾을 수 없습니다.",
			)
			entry.AverageUsage = parenthesizedField(
				tel, panel, "p.eneUpTxt",
				kind+" 평균 사용량을 찾을 수 없습니다.",
			)
		}

		entry.Billing = parseBillTable(tel, panel)
		types = append(types, entry)
	})
	return types
}

func parenthesizedField(tel telemetry.API, root *goquery.Selection, selector, fallbackLog string) string {
	text := htmlutil.ExtractText(tel, root, selector, fallbackLog)
	if text == "" {
		return ""
	}
	value, ok := textutil.Parenthesized(text)
	if !ok {
		tel.ReportWarning(report_client_energy_types, fallbackLog, text)
		return ""
	}
	return value
}

// parseBillTable pairs the n-th th of every row with its n-th td, a row may
// hold more than one pair.
func parseBillTable(tel telemetry.API, panel *goquery.Selection) []BillingField {
	var fields []BillingField
	panel.Find("div.tbl_bill tr").Each(func(_ int, row *goquery.Selection) {
		headers := row.Find("th")
		cells := row.Find("td")
		if headers.Length() == 0 || cells.Length() == 0 {
			tel.ReportWarning(report_client_energy_types, "skipping bill row", strings.TrimSpace(row.Text()))
			return
		}
		for j := 0; j < headers.Length() && j < cells.Length(); j++ {
			label := strings.TrimSpace(headers.Eq(j).Text())
			if label == "" {
				continue
			}
			fields = append(fields, BillingField{
				Label: label,
				Value: strings.TrimSpace(cells.Eq(j).Text()),
			})
		}
	})
	return fields
}
