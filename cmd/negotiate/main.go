// negotiate 终端里模拟一次完整的议价：输入挂牌价，再逐轮输入承运商报价。
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/carrierdesk/carrierdesk/internal/pricing"
	"github.com/carrierdesk/carrierdesk/pkg/config"
	"github.com/carrierdesk/carrierdesk/pkg/logger"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	acceptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	counterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	rejectStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type phase int

const (
	phaseListed phase = iota
	phaseCounter
	phaseDone
)

// step 一轮报价及结果
type step struct {
	Round   int
	Counter decimal.Decimal
	Result  pricing.Result
}

type model struct {
	cfg     pricing.Config
	phase   phase
	input   string
	listed  decimal.Decimal
	round   int
	history []step
	err     string
}

func newModel(cfg pricing.Config) model {
	return model{cfg: cfg, phase: phaseListed}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "q":
		if m.input == "" {
			return m, tea.Quit
		}
	case "r":
		if m.phase == phaseDone {
			return newModel(m.cfg), nil
		}
	case "backspace":
		if n := len(m.input); n > 0 {
			m.input = m.input[:n-1]
		}
		return m, nil
	case "enter":
		return m.submit(), nil
	}

	if key.Type == tea.KeyRunes && m.phase != phaseDone {
		for _, r := range key.Runes {
			if (r >= '0' && r <= '9') || (r == '.' && !strings.Contains(m.input, ".")) {
				m.input += string(r)
			}
		}
	}
	return m, nil
}

func (m model) submit() model {
	if m.phase == phaseDone {
		return m
	}
	v, err := decimal.NewFromString(strings.TrimSpace(m.input))
	if err != nil || !v.IsPositive() {
		m.err = fmt.Sprintf("请输入正数金额（当前: %q）", m.input)
		return m
	}
	m.err = ""
	m.input = ""

	switch m.phase {
	case phaseListed:
		m.listed = v
		m.round = 1
		m.phase = phaseCounter
	case phaseCounter:
		res := pricing.Evaluate(pricing.Request{ListedRate: m.listed, CounterRate: v, Round: m.round}, m.cfg)
		m.history = append(m.history, step{Round: m.round, Counter: v, Result: res})
		logger.WithFields(logrus.Fields{
			"listed":   m.listed.String(),
			"counter":  v.String(),
			"round":    m.round,
			"decision": string(res.Decision),
		}).Info("evaluate")
		if res.Decision.Terminal() {
			m.phase = phaseDone
		} else {
			m.round++
		}
	}
	return m
}

func decisionText(d pricing.Decision) string {
	switch d {
	case pricing.DecisionAccept:
		return acceptStyle.Render("ACCEPT")
	case pricing.DecisionCounter:
		return counterStyle.Render("COUNTER")
	default:
		return rejectStyle.Render("REJECT")
	}
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render(fmt.Sprintf("议价模拟 | 最多 %d 轮 | 上浮 min($%s, %s%%)",
		m.cfg.MaxRounds,
		m.cfg.MaxBufferAmount.StringFixed(2),
		m.cfg.BufferPercentage.Mul(decimal.NewFromInt(100)).String())))
	s.WriteString("\n\n")

	if m.phase != phaseListed {
		ceiling := pricing.RoundCents(pricing.MaxAcceptableRate(m.listed, m.cfg))
		s.WriteString(fmt.Sprintf("%s $%s   %s $%s\n\n",
			labelStyle.Render("挂牌价"), m.listed.StringFixed(2),
			labelStyle.Render("可接受上限"), ceiling.StringFixed(2)))
	}

	if len(m.history) > 0 {
		var rows strings.Builder
		for i, st := range m.history {
			if i > 0 {
				rows.WriteString("\n")
			}
			rows.WriteString(fmt.Sprintf("第 %d 轮  报价 $%-10s %s  %s",
				st.Round, st.Counter.StringFixed(2), decisionText(st.Result.Decision), st.Result.Reason))
		}
		s.WriteString(borderStyle.Render(rows.String()))
		s.WriteString("\n\n")
	}

	switch m.phase {
	case phaseListed:
		s.WriteString("挂牌价: $" + m.input + "█\n")
	case phaseCounter:
		s.WriteString(fmt.Sprintf("第 %d 轮承运商报价: $%s█\n", m.round, m.input))
	case phaseDone:
		s.WriteString("议价结束，按 r 重新开始\n")
	}
	if m.err != "" {
		s.WriteString(errStyle.Render(m.err) + "\n")
	}
	s.WriteString("\n" + labelStyle.Render("enter 确认 | q 退出"))
	return s.String()
}

func main() {
	configPath := flag.String("config", os.Getenv("CARRIERDESK_CONFIG"), "config file (yaml/json)")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := cfg.Pricing.Validate(); err != nil {
		log.Fatalf("定价配置无效: %v", err)
	}

	// 日志只写文件，避免干扰 TUI
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		logDir = os.TempDir()
	}
	if f, err := os.OpenFile(filepath.Join(logDir, "negotiate.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
		defer f.Close()
		logger.SetOutput(f)
		logrus.SetOutput(f)
	} else {
		logger.SetOutput(os.NewFile(0, os.DevNull))
	}

	p := tea.NewProgram(newModel(cfg.Pricing), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("运行程序失败: %v", err)
	}
}
