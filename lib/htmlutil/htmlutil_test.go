package htmlutil

import (
	"strings"
	"testing"

	"apti-backend/internal/components/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<div class="endBox"><span> 2024.03.25 </span></div>
<dl>
	<dt>2월분 부과 금액</dt>
	<dd> 234,560원 </dd>
	<dt>납부하실 금액</dt>
	<dd>240,000원</dd>
</dl>
<input type="hidden" name="dongho" value=" 01010203 ">
<ul><li>전기<strong>67</strong></li></ul>
</body></html>`

func parse(t testing.TB) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestExtractTextSelectOne(t *testing.T) {
	tel := &telemetry.RecorderAPI{}
	doc := parse(t)

	value := ExtractText(tel, doc.Selection, "div.endBox span", "missing due date")
	require.Equal(t, "2024.03.25", value)
	require.Len(t, tel.Reports(""), 0)
}

func TestExtractTextFindNext(t *testing.T) {
	tel := &telemetry.RecorderAPI{}
	doc := parse(t)

	dt := doc.Find("dt").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == "납부하실 금액"
	})
	value := ExtractText(tel, dt, "", "missing payable", ViaFindNext())
	require.Equal(t, "240,000원", value)

	value = ExtractText(tel, doc.Find("dt").First(), "dd", "missing levied", ViaFindNext())
	require.Equal(t, "234,560원", value)
	require.Len(t, tel.Reports(telemetry.KindWarning), 0)
}

func TestExtractTextAttr(t *testing.T) {
	tel := &telemetry.RecorderAPI{}
	doc := parse(t)

	value := ExtractText(tel, doc.Selection, "input[name=dongho]", "missing dongho", WithAttr("value"))
	require.Equal(t, "01010203", value)

	value = ExtractText(tel, doc.Selection, "input[name=dongho]", "missing attr", WithAttr("data-none"))
	require.Equal(t, "", value)
	require.Len(t, tel.Reports(telemetry.KindWarning), 1)
}

func TestExtractTextAbsentRoot(t *testing.T) {
	tel := &telemetry.RecorderAPI{}
	doc := parse(t)

	require.Equal(t, "", ExtractText(tel, nil, "span", "nil root"))
	require.Len(t, tel.Reports(telemetry.KindWarning), 1)

	tel.Reset()
	require.Equal(t, "", ExtractText(tel, doc.Find("div.none"), "span", "empty root"))
	warnings := tel.Reports(telemetry.KindWarning)
	require.Len(t, warnings, 1)
	require.Equal(t, "empty root", warnings[0].Params[0])
}

func TestExtractTextMissingTarget(t *testing.T) {
	tel := &telemetry.RecorderAPI{}
	doc := parse(t)

	require.Equal(t, "", ExtractText(tel, doc.Selection, "p.price", "missing price"))
	require.Len(t, tel.Reports(telemetry.KindWarning), 1)
}

func TestOwnText(t *testing.T) {
	doc := parse(t)
	require.Equal(t, "전기", OwnText(doc.Find("li")))
	require.Equal(t, "", OwnText(doc.Find("table")))
}
