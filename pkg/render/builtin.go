package render

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/openfroyo/descriptions/pkg/schema"
)

// EmptyText is shown for nil values.
const EmptyText = "-"

// now is swapped in tests.
var now = time.Now

func builtinRenderers() map[schema.ValueType]Renderer {
	text := textRenderer()
	enum := enumRenderer()
	return map[schema.ValueType]Renderer{
		schema.ValueTypeText:     text,
		schema.ValueTypeTextarea: RendererFuncs{EditFunc: editor("textarea")},
		schema.ValueTypeCode:     RendererFuncs{ReadFunc: codeText, EditFunc: editor("code")},
		schema.ValueTypeJSONCode: RendererFuncs{ReadFunc: codeText, EditFunc: editor("code")},
		schema.ValueTypePassword: RendererFuncs{
			ReadFunc: func(v interface{}, _ FieldContext) Presentation {
				if v == nil {
					return Presentation{Text: EmptyText}
				}
				return Presentation{Text: "********"}
			},
			EditFunc: editor("password"),
		},
		schema.ValueTypeMoney:    RendererFuncs{ReadFunc: numeric(formatMoney), EditFunc: editor("number")},
		schema.ValueTypeDigit:    RendererFuncs{ReadFunc: numeric(formatDigit), EditFunc: editor("number")},
		schema.ValueTypePercent:  RendererFuncs{ReadFunc: numeric(formatPercent), EditFunc: editor("number")},
		schema.ValueTypeProgress: RendererFuncs{ReadFunc: numeric(formatPercent), EditFunc: editor("number")},
		schema.ValueTypeDate:     RendererFuncs{ReadFunc: timeText("2006-01-02"), EditFunc: editor("date-picker")},
		schema.ValueTypeDateTime: RendererFuncs{ReadFunc: timeText("2006-01-02 15:04:05"), EditFunc: editor("datetime-picker")},
		schema.ValueTypeTime:     RendererFuncs{ReadFunc: timeText("15:04:05"), EditFunc: editor("time-picker")},
		schema.ValueTypeFromNow:  RendererFuncs{ReadFunc: fromNow, EditFunc: editor("datetime-picker")},
		schema.ValueTypeSelect:   enum,
		schema.ValueTypeRadio:    enum,
		schema.ValueTypeCheckbox: enum,
		schema.ValueTypeSwitch: RendererFuncs{
			ReadFunc: func(v interface{}, _ FieldContext) Presentation {
				if truthy(v) {
					return Presentation{Text: "on", Value: true}
				}
				return Presentation{Text: "off", Value: false}
			},
			EditFunc: editor("switch"),
		},
		schema.ValueTypeRate: RendererFuncs{
			ReadFunc: numeric(formatRate),
			EditFunc: editor("rate"),
		},
		schema.ValueTypeColor:  RendererFuncs{EditFunc: editor("color-picker")},
		schema.ValueTypeImage:  RendererFuncs{ReadFunc: linkText("image"), EditFunc: editor("input")},
		schema.ValueTypeAvatar: RendererFuncs{ReadFunc: linkText("avatar"), EditFunc: editor("input")},
		schema.ValueTypeLink:   RendererFuncs{ReadFunc: linkText("link"), EditFunc: editor("input")},
		schema.ValueTypeOption: RendererFuncs{
			ReadFunc: func(v interface{}, _ FieldContext) Presentation {
				if list, ok := v.([]interface{}); ok {
					parts := make([]string, 0, len(list))
					for _, item := range list {
						parts = append(parts, Stringify(item))
					}
					return Presentation{Text: strings.Join(parts, " "), Widget: "actions"}
				}
				return Presentation{Text: Stringify(v), Widget: "actions"}
			},
		},
	}
}

func textRenderer() Renderer {
	return RendererFuncs{}
}

func editor(widget string) func(interface{}, FieldContext) Presentation {
	return func(v interface{}, _ FieldContext) Presentation {
		return Presentation{Text: Stringify(v), Widget: widget, Value: v}
	}
}

func enumRenderer() Renderer {
	return RendererFuncs{
		ReadFunc: func(v interface{}, fc FieldContext) Presentation {
			if list, ok := v.([]interface{}); ok {
				parts := make([]string, 0, len(list))
				for _, item := range list {
					parts = append(parts, enumText(item, fc.ValueEnum).Text)
				}
				return Presentation{Text: strings.Join(parts, ", ")}
			}
			return enumText(v, fc.ValueEnum)
		},
		EditFunc: func(v interface{}, fc FieldContext) Presentation {
			return Presentation{Text: Stringify(v), Widget: "select", Value: v}
		},
	}
}

func enumText(v interface{}, enum schema.ValueEnum) Presentation {
	if v == nil {
		return Presentation{Text: EmptyText}
	}
	if item, ok := enum[Stringify(v)]; ok {
		return Presentation{Text: item.Text, Status: item.Status, Value: v}
	}
	return Presentation{Text: Stringify(v), Value: v}
}

func numeric(format func(float64) string) func(interface{}, FieldContext) Presentation {
	return func(v interface{}, _ FieldContext) Presentation {
		f, ok := toFloat(v)
		if !ok {
			return Presentation{Text: Stringify(v)}
		}
		return Presentation{Text: format(f), Value: v}
	}
}

func formatDigit(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return groupThousands(strconv.FormatInt(int64(f), 10))
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	return groupThousands(intPart) + "." + frac
}

func formatMoney(f float64) string {
	s := strconv.FormatFloat(math.Abs(f), 'f', 2, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	sign := ""
	if f < 0 {
		sign = "-"
	}
	return sign + "$" + groupThousands(intPart) + "." + frac
}

func formatPercent(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64) + "%"
}

// MaxRate is the most stars a rate value draws.
const MaxRate = 10

func formatRate(f float64) string {
	switch {
	case math.IsNaN(f) || f < 0:
		f = 0
	case f > MaxRate:
		f = MaxRate
	}
	return strings.Repeat("★", int(math.Round(f)))
}

func groupThousands(digits string) string {
	neg := strings.HasPrefix(digits, "-")
	if neg {
		digits = digits[1:]
	}
	if len(digits) <= 3 {
		if neg {
			return "-" + digits
		}
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func timeText(layout string) func(interface{}, FieldContext) Presentation {
	return func(v interface{}, _ FieldContext) Presentation {
		ts, ok := toTime(v)
		if !ok {
			return Presentation{Text: Stringify(v)}
		}
		return Presentation{Text: ts.Format(layout), Value: v}
	}
}

func fromNow(v interface{}, _ FieldContext) Presentation {
	ts, ok := toTime(v)
	if !ok {
		return Presentation{Text: Stringify(v)}
	}
	return Presentation{Text: relative(now().Sub(ts)), Value: v}
}

func relative(d time.Duration) string {
	suffix := "ago"
	if d < 0 {
		d = -d
		suffix = "from now"
	}
	switch {
	case d < time.Minute:
		return "a few seconds " + suffix
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute") + " " + suffix
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour") + " " + suffix
	default:
		return plural(int(d/(24*time.Hour)), "day") + " " + suffix
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

func codeText(v interface{}, _ FieldContext) Presentation {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		b, err := json.MarshalIndent(v, "", "  ")
		if err == nil {
			return Presentation{Text: string(b), Widget: "code"}
		}
	}
	return Presentation{Text: Stringify(v), Widget: "code"}
}

func linkText(widget string) func(interface{}, FieldContext) Presentation {
	return func(v interface{}, _ FieldContext) Presentation {
		return Presentation{Text: Stringify(v), Widget: widget, Value: v}
	}
}

// Stringify renders any value as display text.
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return EmptyText
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02", "15:04:05"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	default:
		// numbers are unix milliseconds
		if f, ok := toFloat(v); ok {
			return time.UnixMilli(int64(f)).UTC(), true
		}
		return time.Time{}, false
	}
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(t)
		return err == nil && b
	case nil:
		return false
	default:
		f, ok := toFloat(v)
		return ok && f != 0
	}
}
