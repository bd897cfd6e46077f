package render

import (
	"html/template"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"mvdan.cc/xurls/v2"
)

// linkPattern matches web links; other schemes are left as text
var linkPattern *regexp.Regexp

func init() {
	re, err := xurls.StrictMatchingScheme(`https?://|ftp://`)
	if err != nil {
		panic(err)
	}
	linkPattern = re
}

// Linkify escapes text and turns every web address in it into a link
func Linkify(text string) template.HTML {
	var b strings.Builder
	last := 0
	for _, loc := range linkPattern.FindAllStringIndex(text, -1) {
		b.WriteString(template.HTMLEscapeString(text[last:loc[0]]))
		link := template.HTMLEscapeString(text[loc[0]:loc[1]])
		b.WriteString(`<a href="` + link + `" rel="nofollow noopener">` + link + `</a>`)
		last = loc[1]
	}
	b.WriteString(template.HTMLEscapeString(text[last:]))
	return template.HTML(b.String())
}

// FormatBody renders a message body: links become anchors, line breaks are kept
func FormatBody(text string) template.HTML {
	html := string(Linkify(strings.TrimRight(text, "\n")))
	return template.HTML(strings.ReplaceAll(html, "\n", "<br>\n"))
}

// FormatDuration spells out a conversation length ("now", "12 minutes", "2 hours")
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "now"
	}
	var epoch time.Time
	return strings.TrimSpace(humanize.RelTime(epoch, epoch.Add(d), "", ""))
}

// FormatDate renders a full timestamp
func FormatDate(t time.Time) string {
	return t.Format("Monday, 2 January 2006, 3:04 PM")
}

// FormatClock renders the time of day a message was sent
func FormatClock(t time.Time) string {
	return t.Format("03:04:05 pm")
}
