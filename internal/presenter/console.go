// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
)

// ReadLine returns the next line of input without the line break. It returns io.EOF once the input is
// exhausted and the context error if ctx is done first.
func (p *Presenter) ReadLine(ctx context.Context) (string, error) {
	p.readOnce.Do(p.startReader)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

// startReader feeds input lines into p.lines. A single reader goroutine owns the input, so an
// abandoned ReadLine does not swallow the next line.
func (p *Presenter) startReader() {
	p.lines = make(chan string)
	if p.input == nil {
		close(p.lines)
		return
	}
	go func() {
		defer close(p.lines)
		scanner := bufio.NewScanner(p.input)
		for scanner.Scan() {
			p.lines <- strings.TrimRight(scanner.Text(), "\r")
		}
	}()
}

// Alert prints a boxed notification. In interactive mode it blocks until the user pressed Enter.
func (p *Presenter) Alert(title, body string) {
	p.ClearLoading()
	p.writeLock.Lock()
	_, _ = fmt.Fprint(p.alertOut, box(title, body))
	p.writeLock.Unlock()

	p.writeLock.Lock()
	interactive := p.interactive
	p.writeLock.Unlock()
	if !interactive {
		return
	}
	release := p.prompt(p.loc("continue") + " ")
	defer release()
	_, _ = p.ReadLine(context.Background())
}

// Confirm asks a yes/no question on the console. Anything but an explicit yes is a no. The loading
// indicator is held back until the question is answered.
func (p *Presenter) Confirm(ctx context.Context, question string) (bool, error) {
	release := p.prompt(question + " [y/N] ")
	defer release()
	answer, err := p.ReadLine(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "j", "ja":
		return true, nil
	default:
		return false, nil
	}
}

// prompt clears the loading indicator and prints text. Until the returned function is called, Loading
// draws nothing, so the prompt stays readable while the answer is pending.
func (p *Presenter) prompt(text string) func() {
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	p.clearStatus()
	p.prompting++
	_, _ = fmt.Fprint(p.out, text)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.writeLock.Lock()
			p.prompting--
			p.writeLock.Unlock()
		})
	}
}

func box(title, body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\t", "    "), "\n")
	width := runewidth.StringWidth(title) + 2
	for _, line := range lines {
		width = max(width, runewidth.StringWidth(line))
	}

	buf := bytes.NewBuffer(nil)
	fmt.Fprintf(buf, "┌─ %s %s┐\n", title, strings.Repeat("─", width-runewidth.StringWidth(title)-1))
	for _, line := range lines {
		fmt.Fprintf(buf, "│ %s │\n", runewidth.FillRight(line, width))
	}
	fmt.Fprintf(buf, "└%s┘\n", strings.Repeat("─", width+2))
	return buf.String()
}
