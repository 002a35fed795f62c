package output

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// Counter counts results per status.
type Counter struct {
	mu     sync.Mutex
	counts map[model.Status]int
	total  int
}

// NewCounter creates an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[model.Status]int)}
}

// Add counts one result.
func (c *Counter) Add(s model.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[s]++
	c.total++
}

// Total returns the number of counted results.
func (c *Counter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Count returns the number of results with status s.
func (c *Counter) Count(s model.Status) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[s]
}

// Percentage returns the share of status s in percent.
func (c *Counter) Percentage(s model.Status) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.total == 0 {
		return 0
	}
	return float64(c.counts[s]) * 100 / float64(c.total)
}

// Snapshot returns the counts of every status that appeared, in display order.
func (c *Counter) Snapshot() []StatusCount {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []StatusCount
	for _, s := range model.Statuses {
		n := c.counts[s]
		if n == 0 {
			continue
		}
		out = append(out, StatusCount{
			Status:     s,
			Count:      n,
			Percentage: float64(n) * 100 / float64(c.total),
		})
	}
	return out
}

// StatusCount is one line of the summary.
type StatusCount struct {
	Status     model.Status
	Count      int
	Percentage float64
}

// WriteMarkdown renders the summary as a Markdown table followed by a
// mermaid pie chart.
func (c *Counter) WriteMarkdown(w io.Writer, title string) error {
	snapshot := c.Snapshot()
	total := c.Total()

	md := markdown.NewMarkdown(w)
	md.H1(title)
	md.PlainText("")

	rows := make([][]string, 0, len(snapshot)+1)
	for _, sc := range snapshot {
		rows = append(rows, []string{
			upper.String(string(sc.Status)),
			strconv.Itoa(sc.Count),
			fmt.Sprintf("%.2f%%", sc.Percentage),
		})
	}
	rows = append(rows, []string{"TOTAL", strconv.Itoa(total), "100.00%"})

	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count", "Percentage"},
		Rows:   rows,
	})

	if len(snapshot) > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Status Distribution"),
			piechart.WithShowData(true),
		)
		for _, sc := range snapshot {
			chart.LabelAndIntValue(upper.String(string(sc.Status)), uint64(sc.Count)) //nolint:gosec // counts are never negative
		}

		md.PlainText("")
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	}

	return md.Build()
}
