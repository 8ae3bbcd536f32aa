package agent

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/osteele/liquid"
)

//go:embed templates/brief.liquid
var defaultBriefTemplate string

// Renderer turns briefs into prompt text.
type Renderer struct {
	engine *liquid.Engine
	tpl    *liquid.Template
}

// NewRenderer parses the built-in brief template, or the file at
// templatePath when one is given.
func NewRenderer(templatePath string) (*Renderer, error) {
	src := defaultBriefTemplate
	if templatePath != "" {
		data, err := os.ReadFile(templatePath)
		if err != nil {
			return nil, fmt.Errorf("reading brief template: %w", err)
		}
		src = string(data)
	}

	engine := liquid.NewEngine()
	registerFilters(engine)
	tpl, err := engine.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("parsing brief template: %w", err)
	}
	return &Renderer{engine: engine, tpl: tpl}, nil
}

// Render renders a brief.
func (r *Renderer) Render(b Brief) (string, error) {
	out, err := r.tpl.RenderString(b.bindings())
	if err != nil {
		return "", fmt.Errorf("rendering brief for %s: %w", b.Cohort, err)
	}
	return out, nil
}

func registerFilters(engine *liquid.Engine) {
	// {{ value | money }} -> 1,234.50
	engine.RegisterFilter("money", func(value any) string {
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		return formatMoney(f)
	})

	// {{ score | pct }} -> 42.0%
	engine.RegisterFilter("pct", func(value any) string {
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		return strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
	})

	// {{ recency | days }} -> 12 days
	engine.RegisterFilter("days", func(value any) string {
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		n := int(math.Round(f))
		if n == 1 {
			return "1 day"
		}
		return strconv.Itoa(n) + " days"
	})
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func formatMoney(f float64) string {
	neg := f < 0
	s := strconv.FormatFloat(math.Abs(f), 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
