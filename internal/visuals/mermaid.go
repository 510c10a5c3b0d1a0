package visuals

import (
	"fmt"
	"math"
	"strings"

	"pulse-mcp/internal/stats"
)

// SprintPoint is one sprint on a series chart.
type SprintPoint struct {
	Label          string
	Velocity       float64
	CompletionRate float64
}

// GenerateVelocityChart creates a Mermaid bar chart of completed story points per sprint.
func GenerateVelocityChart(points []SprintPoint) string {
	if len(points) == 0 {
		return ""
	}

	var labels []string
	var values []string
	maxVal := 0.0
	for _, p := range points {
		labels = append(labels, quote(p.Label))
		values = append(values, fmt.Sprintf("%.1f", p.Velocity))
		if p.Velocity > maxVal {
			maxVal = p.Velocity
		}
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Velocity per Sprint\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Story Points\" 0 --> %d\n", headroom(maxVal)))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateCompletionRateChart creates a Mermaid line chart of completion rate (0-100%) per sprint.
func GenerateCompletionRateChart(points []SprintPoint) string {
	if len(points) == 0 {
		return ""
	}

	var labels []string
	var values []string
	for _, p := range points {
		labels = append(labels, quote(p.Label))
		values = append(values, fmt.Sprintf("%.1f", p.CompletionRate))
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Completion Rate per Sprint\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString("    y-axis \"Completion %\" 0 --> 100\n")
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateCadenceChart creates a Mermaid bar chart of items delivered per week.
func GenerateCadenceChart(cadence []stats.DeliveryCadence) string {
	if len(cadence) == 0 {
		return ""
	}

	var labels []string
	var values []string
	maxVal := 0
	for _, c := range cadence {
		labels = append(labels, quote(c.WeekStarting.Format("Jan 02")))
		values = append(values, fmt.Sprintf("%d", c.ItemsDelivered))
		if c.ItemsDelivered > maxVal {
			maxVal = c.ItemsDelivered
		}
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Weekly Delivery Cadence\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Items Delivered\" 0 --> %d\n", headroom(float64(maxVal))))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// headroom leaves 20% (at least 1) above the tallest value.
func headroom(maxVal float64) int {
	return int(math.Ceil(maxVal + math.Max(1, maxVal*0.2)))
}

func quote(label string) string {
	return fmt.Sprintf("\"%s\"", strings.ReplaceAll(label, "\"", "'"))
}
