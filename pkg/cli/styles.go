/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/carverauto/proxyconsole/pkg/gateway"
)

// Dracula theme colors.
const (
	draculaCyan    = "#8BE9FD"
	draculaGreen   = "#50FA7B"
	draculaYellow  = "#F1FA8C"
	draculaRed     = "#FF5555"
	draculaComment = "#6272A4"
)

// logStyles defines styles for logging messages
type logStyles struct {
	info, success, warning, error, muted lipgloss.Style
}

func newLogStyles() logStyles {
	return logStyles{
		info: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaCyan)),
		success: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaGreen)),
		warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaYellow)),
		error: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaRed)).
			Bold(true),
		muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaComment)),
	}
}

// TerminalNotifier renders gateway notifications as styled lines, the
// terminal counterpart of the console's toast.
type TerminalNotifier struct {
	mu     sync.Mutex
	out    io.Writer
	styles logStyles
}

var _ gateway.Notifier = (*TerminalNotifier)(nil)

func NewTerminalNotifier(out io.Writer) *TerminalNotifier {
	return &TerminalNotifier{out: out, styles: newLogStyles()}
}

func (n *TerminalNotifier) Notify(_ context.Context, note gateway.Notification) {
	style, tag := n.styles.error, "[ERROR]"

	switch note.Level {
	case gateway.LevelWarning:
		style, tag = n.styles.warning, "[WARN]"
	case gateway.LevelInfo:
		style, tag = n.styles.info, "[INFO]"
	case gateway.LevelError:
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	_, _ = fmt.Fprintln(n.out, style.Render(tag+" "+note.Message))
}

// TerminalIndicator is the single loading affordance of the CLI. It only
// draws when the output is a terminal.
type TerminalIndicator struct {
	mu      sync.Mutex
	out     io.Writer
	enabled bool
	style   lipgloss.Style
}

var _ gateway.BusyIndicator = (*TerminalIndicator)(nil)

func NewTerminalIndicator(out io.Writer) *TerminalIndicator {
	return &TerminalIndicator{
		out:     out,
		enabled: isTerminal(out),
		style:   newLogStyles().muted,
	}
}

func (t *TerminalIndicator) Show() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.enabled {
		_, _ = fmt.Fprint(t.out, t.style.Render("loading..."))
	}
}

func (t *TerminalIndicator) Hide() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.enabled {
		_, _ = fmt.Fprint(t.out, "\r\033[K")
	}
}

// isTerminal determines if w is a terminal rather than a pipe or file.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}

	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
