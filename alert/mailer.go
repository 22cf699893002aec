package alert

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"cryomon/config"
	"cryomon/models"
	"cryomon/monitor"
)

const (
	alertSubject = "[URGENT] Cryostat Alert Triggered!"
	testSubject  = "[TEST] Cryostat Alert Test Email"
)

// Mailer composes and dispatches alert emails. It must never let a
// dispatch failure reach the ingestion path: every error ends in the log.
// With DebugDir set, messages land on disk instead of an SMTP server.
type Mailer struct {
	cfg config.MailConfig
	lg  *zap.Logger
}

func NewMailer(cfg config.MailConfig, lg *zap.Logger) *Mailer {
	return &Mailer{cfg: cfg, lg: lg}
}

// SendAlert dispatches the triggered-monitor report plus a full status
// dump.
func (m *Mailer) SendAlert(triggered []monitor.Triggered, status map[string]models.Reading) {
	body := alertBody(TriggeredText(triggered), StatusTable(status))
	m.dispatch(alertSubject, body)
}

// SendTest dispatches a manually requested test email with the status
// dump only.
func (m *Mailer) SendTest(status map[string]models.Reading) {
	body := testBody(StatusTable(status))
	m.dispatch(testSubject, body)
}

func (m *Mailer) dispatch(subject, body string) {
	if m.cfg.DebugDir != "" {
		m.writeDebugFile(subject, body)
		return
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.Sender)
	msg.SetHeader("To", m.cfg.Recipients...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	d := gomail.NewDialer(m.cfg.SMTPServer, m.cfg.SMTPPort, m.cfg.Sender, m.cfg.Password)
	d.SSL = m.cfg.SMTPPort == 465
	if err := d.DialAndSend(msg); err != nil {
		m.lg.Error("Failed to send email", zap.Error(err))
		return
	}
	m.lg.Info("Alert email sent", zap.Int("recipients", len(m.cfg.Recipients)))
}

func (m *Mailer) writeDebugFile(subject, body string) {
	stamp := time.Now().Format("06-01-02_15-04-05")
	path := filepath.Join(m.cfg.DebugDir, fmt.Sprintf("alert_%s.email", stamp))
	content := fmt.Sprintf("Subject: %s\nRecipients: %s\nBody:\n%s",
		subject, strings.Join(m.cfg.Recipients, ", "), body)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		m.lg.Error("Failed to write debug email", zap.String("path", path), zap.Error(err))
		return
	}
	m.lg.Info("Debug email written", zap.String("path", path))
}

func alertBody(triggeredText, dumpText string) string {
	return fmt.Sprintf(`
The following monitors triggered this alert:
%s

Fridge log dump:
%s

Sincerely,
The Cryostat
`, triggeredText, dumpText)
}

func testBody(dumpText string) string {
	return fmt.Sprintf(`
Do not panic, this test email was manually triggered to test the cryostat monitor system.

Fridge log dump:
%s

Sincerely,
The Cryostat
`, dumpText)
}

// TriggeredText renders each fired monitor as
// "<slot> is <description>" followed by one indented line per observed
// value this batch.
func TriggeredText(triggered []monitor.Triggered) string {
	var b strings.Builder
	for i, t := range triggered {
		if i > 0 {
			b.WriteString("\n")
		}
		slot := t.Channel
		if t.Subchannel != "" {
			slot += ":" + t.Subchannel
		}
		fmt.Fprintf(&b, "%s is %s", slot, t.Description)

		times := make([]int64, 0, len(t.Readings))
		for ts := range t.Readings {
			times = append(times, ts)
		}
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
		for _, ts := range times {
			fmt.Fprintf(&b, "\n\tRead '%v' at %s", t.Readings[ts], models.FormatTime(ts))
		}
	}
	return b.String()
}

// StatusTable tabulates every channel's last reading, one row per channel
// or per subchannel for mapping-valued channels.
func StatusTable(status map[string]models.Reading) string {
	channels := make([]string, 0, len(status))
	for channel := range status {
		channels = append(channels, channel)
	}
	sort.Strings(channels)

	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Channel", "Value", "Last Read Time"})

	for _, channel := range channels {
		reading := status[channel]
		if !reading.Known() {
			table.Append([]string{channel, "unknown", "never"})
			continue
		}
		when := models.FormatTime(reading.Time)
		if sub, ok := reading.Value.(map[string]any); ok {
			keys := make([]string, 0, len(sub))
			for k := range sub {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				table.Append([]string{channel + ":" + k, fmt.Sprintf("%v", sub[k]), when})
			}
			continue
		}
		table.Append([]string{channel, fmt.Sprintf("%v", reading.Value), when})
	}
	table.Render()
	return b.String()
}
