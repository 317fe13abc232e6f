package telemetry

import "sync"

// Report is a single call made against a RecorderAPI.
type Report struct {
	Kind   string
	Id     string
	Params []any
}

const (
	KindBroken  = "broken"
	KindWarning = "warning"
	KindDebug   = "debug"
	KindCount   = "count"
)

// RecorderAPI is an API that keeps every report in memory so tests can make
// assertions on what was logged.
type RecorderAPI struct {
	mutex   sync.Mutex
	reports []Report
}

func (r *RecorderAPI) push(report Report) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, report)
}

func (r *RecorderAPI) ReportBroken(id string, params ...any) {
	r.push(Report{Kind: KindBroken, Id: id, Params: params})
}

func (r *RecorderAPI) ReportWarning(id string, params ...any) {
	r.push(Report{Kind: KindWarning, Id: id, Params: params})
}

func (r *RecorderAPI) ReportDebug(msg string, params ...any) {
	r.push(Report{Kind: KindDebug, Id: msg, Params: params})
}

func (r *RecorderAPI) ReportCount(id string, count int64) {
	r.push(Report{Kind: KindCount, Id: id, Params: []any{count}})
}

// Reports returns a copy of all reports of the given kind, or all of them if kind is empty.
func (r *RecorderAPI) Reports(kind string) []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var out []Report
	for _, report := range r.reports {
		if kind == "" || report.Kind == kind {
			out = append(out, report)
		}
	}
	return out
}

// Reset clears all recorded reports.
func (r *RecorderAPI) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = nil
}
