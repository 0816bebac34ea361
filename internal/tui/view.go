package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/timebox/internal/timer"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	timeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))

	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	pausedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

	categoryStyles = map[timer.Category]lipgloss.Style{
		timer.Workout: lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
		timer.Study:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		timer.Break:   lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
	}

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("125")).
			Padding(0, 2)

	formStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render(fmt.Sprintf("  timebox  session %s", shortSession(m.eng.SessionID())))

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %s ", tabNames[i])
		if i == tabHistory {
			label = fmt.Sprintf(" %s (%d) ", tabNames[i], len(m.history))
		}
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	rows := []string{title, tabRow}
	if m.banner != "" {
		rows = append(rows, bannerStyle.Width(m.width).Render(m.banner+"   (enter to dismiss)"))
	}

	switch {
	case m.adding:
		rows = append(rows, m.renderForm())
	case m.activeTab == tabTimers:
		rows = append(rows, m.renderTimers())
	default:
		rows = append(rows, m.historyVP.View())
	}

	rows = append(rows, m.renderStatus())
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func (m Model) renderTimers() string {
	var sb strings.Builder
	cat := m.selectedCategory()
	sb.WriteString(heading(fmt.Sprintf("Timers (%d)   category: %s", len(m.timers),
		categoryStyles[cat].Render(string(cat)))))

	if len(m.timers) == 0 {
		sb.WriteString(dimStyle.Render("  (no timers; press a to add one)") + "\n")
		return sb.String()
	}
	for i, t := range m.timers {
		row := m.renderTimerRow(t)
		if i == m.cursor {
			row = selectedRowStyle.Width(max(m.width-2, 1)).Render(row)
		}
		sb.WriteString(row + "\n")
	}
	return sb.String()
}

func (m Model) renderTimerRow(t timer.Timer) string {
	status := pausedStyle.Render("PAUSED ")
	if t.Status == timer.StatusRunning {
		status = runningStyle.Render("RUNNING")
	}
	half := " "
	if t.HalfwayTriggered {
		half = "½"
	}
	name := t.Name
	if len(name) > 18 {
		name = name[:17] + "…"
	}
	return fmt.Sprintf("  %-18s %s  %s  %s %s  %s",
		name,
		categoryStyles[t.Category].Render(fmt.Sprintf("%-7s", t.Category)),
		status,
		m.bar.ViewAs(t.Progress()),
		timeStyle.Render(clock(t.Remaining)),
		half,
	)
}

func (m Model) renderHistory() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("History (%d)", len(m.history))))

	var counts []string
	for _, c := range timer.Categories() {
		counts = append(counts, fmt.Sprintf("%s %d", categoryStyles[c].Render(string(c)), m.stats[c]))
	}
	sb.WriteString("  " + strings.Join(counts, dimStyle.Render("  ·  ")) + "\n\n")

	if len(m.history) == 0 {
		sb.WriteString(dimStyle.Render("  (nothing completed yet)") + "\n")
		return sb.String()
	}
	for _, e := range m.history {
		when := e.CompletedAt
		if t, ok := e.CompletedTime(); ok {
			when = t.Local().Format("2006-01-02 15:04:05")
		}
		sb.WriteString(fmt.Sprintf("  %s  %s  %s\n", timeStyle.Render(when),
			categoryStyles[e.Category].Render(fmt.Sprintf("%-7s", e.Category)), e.Name))
	}
	return sb.String()
}

func (m Model) renderForm() string {
	var sb strings.Builder
	sb.WriteString(sectionHeader.Render("New timer") + "\n\n")
	sb.WriteString("Name      " + m.inputs[0].View() + "\n")
	sb.WriteString("Duration  " + m.inputs[1].View() + "\n")
	cat := m.selectedCategory()
	sb.WriteString("Category  " + categoryStyles[cat].Render(string(cat)) + dimStyle.Render("  (ctrl+t to change)") + "\n\n")
	sb.WriteString(dimStyle.Render("enter add · tab next field · esc cancel"))
	return "\n" + formStyle.Render(sb.String()) + "\n"
}

func (m Model) renderStatus() string {
	hint := "a add  s/p/r/x timer  S/P/R category  c category  C clear  e export  tab  q quit"
	if m.activeTab == tabHistory {
		hint = "↑/↓ scroll  C clear  e export  f save  tab  q quit"
	}
	line := hint
	if m.status != "" {
		msg := m.status
		if m.err != nil {
			msg = errorStyle.Render(msg)
		}
		line = msg + dimStyle.Render("   │ "+hint)
	}
	if m.pending {
		line = errorStyle.Render("● unsaved ") + line
	}
	return statusBarStyle.Width(m.width).Render(line)
}

// clock formats seconds as m:ss, or h:mm:ss from an hour up.
func clock(secs int) string {
	if secs < 0 {
		secs = 0
	}
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
