package survival

import (
	"bytes"
	"fmt"
	"strings"
)

// SummaryTable renders a titled fixed-width text table with a block of
// header values on top and optional messages below, in the house
// summary style.
type SummaryTable struct {

	// Title.
	Title string

	// Values at the top of the summary.
	Top []string

	// Column names.
	ColNames []string

	// Rows of pre-formatted cells, aligned with ColNames.
	Rows [][]string

	// Messages displayed below the table.
	Msg []string

	// Total width of the table.
	tw int
}

// line draws a line of the given character filling the table width.
func (s *SummaryTable) line(c string) string {
	return strings.Repeat(c, s.tw) + "\n"
}

// String returns the table as a string.
func (s *SummaryTable) String() string {

	// Column widths
	wx := make([]int, len(s.ColNames))
	for j, c := range s.ColNames {
		wx[j] = len(c)
	}
	for _, row := range s.Rows {
		for j, c := range row {
			if len(c) > wx[j] {
				wx[j] = len(c)
			}
		}
	}

	s.tw = 0
	for _, w := range wx {
		s.tw += w + 1
	}
	if s.tw < len(s.Title) {
		s.tw = len(s.Title)
	}
	for _, x := range s.Top {
		if s.tw < len(x) {
			s.tw = len(x)
		}
	}

	var buf bytes.Buffer

	// Center the title
	kr := (s.tw - len(s.Title)) / 2
	if kr < 0 {
		kr = 0
	}
	buf.WriteString(strings.Repeat(" ", kr))
	buf.WriteString(s.Title)
	buf.WriteString("\n")
	buf.WriteString(s.line("="))

	for _, x := range s.Top {
		buf.WriteString(x)
		buf.WriteString("\n")
	}
	buf.WriteString(s.line("-"))

	for j, c := range s.ColNames {
		buf.WriteString(fmt.Sprintf("%*s ", wx[j], c))
	}
	buf.WriteString("\n")
	buf.WriteString(s.line("-"))

	for _, row := range s.Rows {
		for j, c := range row {
			buf.WriteString(fmt.Sprintf("%*s ", wx[j], c))
		}
		buf.WriteString("\n")
	}
	buf.WriteString(s.line("-"))

	for _, msg := range s.Msg {
		buf.WriteString(msg + "\n")
	}

	return buf.String()
}
