package notify

import (
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"apti-backend/internal/components/telemetry"
	"apti-backend/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jordan-wright/email"
)

const report_notify_send = "notify.send"

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
}

// Enabled reports whether enough of the config is set to send mail.
func (c SmtpConfig) Enabled() bool {
	return c.Server != "" && c.EmailAddress != "" && len(c.To) > 0
}

// Sender delivers a prepared email.
type Sender func(mail *email.Email) error

// SmtpSender sends mail through the configured server, falling back to an
// unauthenticated session when the server does not support AUTH.
func SmtpSender(config SmtpConfig) Sender {
	addr := fmt.Sprintf("%s:%d", config.Server, config.Port)
	return func(mail *email.Email) error {
		err := mail.Send(
			addr,
			smtp.PlainAuth("", config.EmailAddress, config.Password, config.Server),
		)
		if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
			return mail.Send(addr, nil)
		}
		return err
	}
}

// Notifier mails a summary of the snapshot every time one of its record
// groups was refreshed.
type Notifier struct {
	config SmtpConfig
	send   Sender
	tel    telemetry.API

	mutex           sync.Mutex
	lastMaintenance time.Time
	lastEnergy      time.Time
}

// New creates a Notifier, send defaults to SmtpSender(config).
func New(config SmtpConfig, send Sender, tel telemetry.API) *Notifier {
	if send == nil {
		send = SmtpSender(config)
	}
	return &Notifier{
		config: config,
		send:   send,
		tel:    telemetry.NewScopedAPI("notify", tel),
	}
}

// changed reports whether any group of the snapshot moved since the last
// mail and remembers the new stamps.
func (n *Notifier) changed(snapshot store.Snapshot) bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	maintenance := snapshot.Maintenance.UpdatedAt
	energy := snapshot.Energy.UpdatedAt
	moved := (!maintenance.IsZero() && !maintenance.Equal(n.lastMaintenance)) ||
		(!energy.IsZero() && !energy.Equal(n.lastEnergy))
	n.lastMaintenance = maintenance
	n.lastEnergy = energy
	return moved
}

// Compose builds the summary email of a snapshot.
func (n *Notifier) Compose(snapshot store.Snapshot) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("APT.i <%s>", n.config.EmailAddress)
	mail.To = n.config.To

	subject := "APT.i 관리비 알림"
	if amount, ok := snapshot.PayableAmount(); ok {
		subject = fmt.Sprintf("%s: %d원", subject, amount)
	}
	mail.Subject = subject
	mail.Text = []byte(Summary(snapshot))
	return mail
}

// Summary renders the snapshot as plain text tables.
func Summary(snapshot store.Snapshot) string {
	var sb strings.Builder

	payment := snapshot.Maintenance.Payment
	sb.WriteString("[관리비]\n")
	paymentTable := table.NewWriter()
	paymentTable.AppendRows([]table.Row{
		{"납부 마감일", payment.DueDate},
		{fmt.Sprintf("%s월분 부과 금액", payment.LeviedMonth), payment.LeviedAmount},
		{"납부할 금액", payment.PayableAmount},
		{"전년 동월 비교", payment.YearOverYear},
		{"우리집 이번달 금액", payment.CurrentMonthHousehold},
	})
	sb.WriteString(paymentTable.Render())
	sb.WriteString("\n\n")

	if len(snapshot.Maintenance.Items) > 0 {
		itemTable := table.NewWriter()
		itemTable.AppendHeader(table.Row{"항목", "당월", "전월", "증감"})
		for _, item := range snapshot.Maintenance.Items {
			itemTable.AppendRow(table.Row{item.Category, item.Current, item.Previous, item.Delta})
		}
		sb.WriteString(itemTable.Render())
		sb.WriteString("\n\n")
	}

	usage := snapshot.Energy.Usage
	sb.WriteString("[에너지]\n")
	if month, total, ok := snapshot.TotalEnergyUsage(); ok {
		sb.WriteString(fmt.Sprintf("%s 사용량: %g\n", month, total))
	}
	if usage.AverageComparison != "" {
		sb.WriteString(usage.AverageComparison)
		sb.WriteString("\n")
	}

	if len(snapshot.Energy.Types) > 0 {
		typeTable := table.NewWriter()
		typeTable.AppendHeader(table.Row{"유형", "총액", "사용량", "비교"})
		for _, entry := range snapshot.Energy.Types {
			typeTable.AppendRow(table.Row{entry.Type, entry.TotalCost, entry.Usage, entry.Comparison})
		}
		sb.WriteString(typeTable.Render())
		sb.WriteString("\n")
	}

	return sb.String()
}

// Observer returns a store observer that mails the summary whenever a
// record group was refreshed since the last mail.
func (n *Notifier) Observer() *store.Observer {
	return store.NewObserver(func(snapshot store.Snapshot) {
		if !n.changed(snapshot) {
			return
		}
		err := n.send(n.Compose(snapshot))
		if err != nil {
			n.tel.ReportBroken(report_notify_send, err, n.config.To)
			return
		}
		n.tel.ReportDebug("sent summary", "to", n.config.To)
	})
}
