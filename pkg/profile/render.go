// pkg/profile/render.go
package profile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
)

// Render writes the profile as a Markdown document
func (a *Accumulator) Render(w io.Writer) error {
	var sb strings.Builder

	sb.WriteString("# User profile\n\n")
	sb.WriteString(fmt.Sprintf("%s rows across %s batches.\n", humanize.Comma(int64(a.rows)), humanize.Comma(int64(a.batches))))

	genders := a.Genders()
	section(&sb, "Countries by gender", func() [][]string {
		header := append([]string{"country", "rows", "share"}, genders...)
		rows := [][]string{header}
		for _, c := range a.Countries() {
			line := []string{c.Country, humanize.Comma(int64(c.Rows)), percent(c.Rows, a.rows)}
			for _, g := range genders {
				line = append(line, humanize.Comma(int64(c.ByGender[g])))
			}
			rows = append(rows, line)
		}
		return rows
	})

	section(&sb, "Provinces", func() [][]string {
		rows := [][]string{{"province", "rows", "mean income", "mean average_price"}}
		for _, p := range a.Provinces() {
			rows = append(rows, []string{
				p.Province,
				humanize.Comma(int64(p.Rows)),
				optional(p.MeanIncome, p.HasIncome),
				optional(p.MeanAvgPrice, p.HasAveragePrice),
			})
		}
		return rows
	})

	section(&sb, "Age ranges", groupTable("age", a.AgeBuckets()))
	section(&sb, "Payment methods", groupTable("payment_method", a.PaymentMethods()))
	section(&sb, "Categories", groupTable("category", a.Categories()))

	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteFile renders the profile to path, replacing any existing file atomically
func (a *Accumulator) WriteFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-profile-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := a.Render(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func groupTable(key string, groups []GroupRow) func() [][]string {
	return func() [][]string {
		rows := [][]string{{key, "rows", "mean average_price", "items"}}
		for _, g := range groups {
			rows = append(rows, []string{
				g.Key,
				humanize.Comma(int64(g.Rows)),
				optional(g.MeanAvgPrice, g.HasAveragePrice),
				humanize.Comma(int64(g.Items)),
			})
		}
		return rows
	}
}

func section(sb *strings.Builder, title string, table func() [][]string) {
	sb.WriteString("\n## " + title + "\n\n")
	rows := table()
	if len(rows) < 2 {
		sb.WriteString("_no rows_\n")
		return
	}
	writeTable(sb, rows)
}

// writeTable pads cells to the display width of the widest cell in each column
func writeTable(sb *strings.Builder, rows [][]string) {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		if widths[i] < 3 {
			widths[i] = 3
		}
	}

	line := func(cells []string, fill func(i int, cell string) string) {
		sb.WriteString("|")
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			sb.WriteString(" " + fill(i, cell) + " |")
		}
		sb.WriteString("\n")
	}
	pad := func(i int, cell string) string {
		return cell + strings.Repeat(" ", widths[i]-runewidth.StringWidth(cell))
	}

	line(rows[0], pad)
	line(nil, func(i int, _ string) string { return strings.Repeat("-", widths[i]) })
	for _, row := range rows[1:] {
		line(row, pad)
	}
}

func percent(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return strconv.FormatFloat(float64(n)/float64(total)*100, 'f', 1, 64) + "%"
}

func money(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}

func optional(v float64, ok bool) string {
	if !ok {
		return "-"
	}
	return money(v)
}
