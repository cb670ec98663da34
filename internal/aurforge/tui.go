package aurforge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type logInfo struct {
	pkgName string
	path    string
	content string
}

// collectBuildLogs loads every per-package build log under LogsDir.
func collectBuildLogs() ([]logInfo, error) {
	entries, err := os.ReadDir(LogsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var logs []logInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		path := filepath.Join(LogsDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		logs = append(logs, logInfo{
			pkgName: strings.TrimSuffix(e.Name(), ".log"),
			path:    path,
			content: string(data),
		})
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].pkgName < logs[j].pkgName })
	return logs, nil
}

// runLogViewer shows the build logs in a tabbed TUI.
// Left/Right switch packages, Up/Down/PgUp/PgDn scroll, Esc or q quits.
func runLogViewer() int {
	logs, err := collectBuildLogs()
	if err != nil {
		cPrintf(colError, "could not read build logs: %v\n", err)
		return 1
	}
	if len(logs) == 0 {
		fmt.Printf("No build logs found in %s\n", LogsDir)
		return 0
	}

	app := tview.NewApplication()
	activeIdx := 0

	header := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetTextAlign(tview.AlignLeft)
	header.SetBorder(true)
	header.SetTitle("aurforge Build Log Viewer")

	logView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetScrollable(true)
	logView.SetBorder(true)

	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetTextAlign(tview.AlignLeft)
	footer.SetBorder(true)
	footer.SetText("[yellow]←/→[-] switch package  [yellow]↑/↓ PgUp/PgDn[-] scroll  [yellow]Esc/q[-] quit")

	show := func() {
		log := logs[activeIdx]
		var tabs []string
		for i, l := range logs {
			if i == activeIdx {
				tabs = append(tabs, fmt.Sprintf("[black:yellow] %s [-:-]", l.pkgName))
			} else {
				tabs = append(tabs, fmt.Sprintf(" %s ", l.pkgName))
			}
		}
		header.SetText(strings.Join(tabs, "|"))
		logView.SetText(tview.Escape(log.content))
		logView.SetTitle(log.path)
		logView.ScrollToEnd()
	}

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 3, 0, false).
		AddItem(logView, 0, 1, true).
		AddItem(footer, 3, 0, false)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyCtrlQ:
			app.Stop()
			return nil
		case tcell.KeyLeft:
			activeIdx--
			if activeIdx < 0 {
				activeIdx = len(logs) - 1
			}
			show()
			return nil
		case tcell.KeyRight:
			activeIdx++
			if activeIdx >= len(logs) {
				activeIdx = 0
			}
			show()
			return nil
		case tcell.KeyHome:
			logView.ScrollToBeginning()
			return nil
		case tcell.KeyEnd:
			logView.ScrollToEnd()
			return nil
		}
		if event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})

	show()
	if err := app.SetRoot(flex, true).Run(); err != nil {
		cPrintf(colError, "log viewer failed: %v\n", err)
		return 1
	}
	return 0
}
