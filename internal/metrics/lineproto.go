package metrics

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hamed0406/fleethealth/internal/domain"
)

var (
	measurementEscaper = strings.NewReplacer(",", `\,`, " ", `\ `)
	tagEscaper         = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)
)

// Line renders p in InfluxDB line protocol with second precision:
//
//	node_status,host=10.0.0.1 value=1 1700000000
//
// host comes first, remaining tags follow in key order.
func Line(p domain.MetricPoint) string {
	var b strings.Builder
	b.WriteString(measurementEscaper.Replace(p.Measurement))
	b.WriteString(",host=")
	b.WriteString(tagEscaper.Replace(p.Host))

	keys := make([]string, 0, len(p.Tags))
	for k := range p.Tags {
		if k != "host" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := p.Tags[k]
		if v == "" {
			continue
		}
		b.WriteByte(',')
		b.WriteString(tagEscaper.Replace(k))
		b.WriteByte('=')
		b.WriteString(tagEscaper.Replace(v))
	}

	b.WriteString(" value=")
	b.WriteString(strconv.FormatFloat(p.Value, 'f', -1, 64))
	if !p.Timestamp.IsZero() {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(p.Timestamp.Unix(), 10))
	}
	return b.String()
}

// Encode joins lines with '\n', the body format of /write.
func Encode(points []domain.MetricPoint) string {
	lines := make([]string, len(points))
	for i, p := range points {
		lines[i] = Line(p)
	}
	return strings.Join(lines, "\n")
}
