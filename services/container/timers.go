package container

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// per item timers report average/max and list every sample
var perItemTimers = []string{"item_api"}

// Timers collects named durations for the directory timer report. Safe for
// concurrent use; a nil *Timers records nothing.
type Timers struct {
	mu    sync.Mutex
	lists map[string][]time.Duration
	order []string
}

func NewTimers() *Timers {
	return &Timers{lists: make(map[string][]time.Duration)}
}

// Start begins timing name and returns the function that records it.
func (t *Timers) Start(name string) func() {
	if t == nil {
		return func() {}
	}
	start := time.Now()
	return func() { t.Add(name, time.Since(start)) }
}

func (t *Timers) Add(name string, d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.lists[name]; !ok {
		t.order = append(t.order, name)
	}
	t.lists[name] = append(t.lists[name], d)
}

func (t *Timers) Samples(name string) []time.Duration {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.lists[name])
}

func stats(v []time.Duration) (sum, max time.Duration) {
	for _, d := range v {
		sum += d
		if d > max {
			max = d
		}
	}
	return sum, max
}

func secs(d time.Duration) string {
	return fmt.Sprintf("%7.3f sec", d.Seconds())
}

// Report renders the DIRECTORY TIMER REPORT block.
func (t *Timers) Report(buildID, paramstring string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "DIRECTORY TIMER REPORT build=%s\n%s\n", buildID, paramstring)
	b.WriteString("------------------------------\n")
	for _, name := range t.order {
		if name == "total" {
			continue
		}
		v := t.lists[name]
		sum, max := stats(v)
		avg := sum / time.Duration(len(v))
		switch {
		case slices.Contains(perItemTimers, name):
			fmt.Fprintf(&b, " - %-12s: %s avg | %s max | %3d\n", name, secs(avg), secs(max), len(v))
		case strings.HasPrefix(name, "item"):
			fmt.Fprintf(&b, " - %-12s: %s avg | %s all | %3d\n", name, secs(avg), secs(sum), len(v))
		default:
			fmt.Fprintf(&b, "%-15s: %s\n", name, secs(avg))
		}
	}
	b.WriteString("------------------------------\n")
	if total := t.lists["total"]; len(total) > 0 {
		sum, _ := stats(total)
		fmt.Fprintf(&b, "%-15s: %s\n", "Total", secs(sum/time.Duration(len(total))))
	} else {
		fmt.Fprintf(&b, "%-15s:   None\n", "Total")
	}
	for _, name := range t.order {
		if !slices.Contains(perItemTimers, name) {
			continue
		}
		samples := make([]string, 0, len(t.lists[name]))
		for _, d := range t.lists[name] {
			samples = append(samples, fmt.Sprintf("%.3f", d.Seconds()))
		}
		fmt.Fprintf(&b, "\n%s:\n%s\n", name, strings.Join(samples, " "))
	}
	return b.String()
}
