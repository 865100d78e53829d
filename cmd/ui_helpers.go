// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// startInlineSpinner draws frames followed by text on a single line until the
// returned function is called, which clears the line.
func startInlineSpinner(w io.Writer, text string, frames []string, interval time.Duration) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			line := fmt.Sprintf("%s %s", frames[i%len(frames)], text)
			select {
			case <-stop:
				fmt.Fprintf(w, "\r%*s\r", len(line), "")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s", line)
				i++
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
		})
	}
}

// areaSpinner animates a relabelable status line in a pterm area. Printing
// while it runs must go through pause and resume so output is not overdrawn.
type areaSpinner struct {
	mu    sync.Mutex
	area  *pterm.AreaPrinter
	label string
	frame int
	stop  chan struct{}
	wg    sync.WaitGroup
}

func startAreaSpinner(label string) *areaSpinner {
	s := &areaSpinner{label: label}
	s.resume()
	return s
}

func (s *areaSpinner) setLabel(label string) {
	s.mu.Lock()
	s.label = label
	s.mu.Unlock()
}

func (s *areaSpinner) resume() {
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		cursor.Show()
		return
	}
	s.area = area
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go func(stop chan struct{}) {
		defer s.wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.mu.Lock()
				s.frame++
				area.Update(fmt.Sprintf("%s %s", spinnerFrames[s.frame%len(spinnerFrames)], s.label))
				s.mu.Unlock()
			case <-stop:
				return
			}
		}
	}(s.stop)
}

func (s *areaSpinner) pause() {
	if s.area == nil {
		return
	}
	close(s.stop)
	s.wg.Wait()
	_ = s.area.Stop()
	s.area = nil
	cursor.Show()
}
