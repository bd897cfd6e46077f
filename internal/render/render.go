package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/vadim/chatlogs/internal/domain/chatlog/entity"
)

//go:embed templates/*.html
var templateFS embed.FS

// ListPage is a page of the conversation listing
type ListPage struct {
	Conversations []entity.ConversationSummary
	Total         int64
	Sort          entity.ConversationSort
	Asc           bool
	Limit         int
	Offset        int
	HasMore       bool
}

// ConversationPage is a single conversation with its neighbours
type ConversationPage struct {
	Conversation entity.Conversation
	Previous     *entity.Conversation
	Next         *entity.Conversation
	Messages     []entity.MessageView
}

// Renderer turns chat log pages into HTML
type Renderer struct {
	list         *template.Template
	conversation *template.Template
	baseURL      string
}

// Option configures the Renderer
type Option func(*Renderer)

// WithBaseURL makes every generated link absolute
func WithBaseURL(baseURL string) Option {
	return func(r *Renderer) {
		r.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// New parses the page templates
func New(opts ...Option) (*Renderer, error) {
	r := &Renderer{}
	for _, opt := range opts {
		opt(r)
	}

	var err error
	r.list, err = template.ParseFS(templateFS, "templates/layout.html", "templates/list.html")
	if err != nil {
		return nil, fmt.Errorf("parsing list template: %w", err)
	}
	r.conversation, err = template.ParseFS(templateFS, "templates/layout.html", "templates/conversation.html")
	if err != nil {
		return nil, fmt.Errorf("parsing conversation template: %w", err)
	}

	return r, nil
}

// ListURL returns the address of the conversation listing
func (r *Renderer) ListURL() string {
	return r.baseURL + "/"
}

// ConversationURL returns the address of a conversation page
func (r *Renderer) ConversationURL(id int64) string {
	return r.baseURL + "/conversations/" + strconv.FormatInt(id, 10)
}

type column struct {
	Label string
	URL   string
	Arrow string
}

type listRow struct {
	ID           int64
	URL          string
	Participants string
	MessageCount string
	Start        string
	End          string
	Duration     string
}

// RenderList writes the conversation listing
func (r *Renderer) RenderList(w io.Writer, page ListPage) error {
	sort := page.Sort
	if sort == "" {
		sort = entity.SortByTimeEnd
	}

	columns := []column{
		r.sortColumn("ID", entity.SortByID, sort, page.Asc),
		{Label: "Participants"},
		r.sortColumn("Messages", entity.SortByMessageCount, sort, page.Asc),
		r.sortColumn("Start", entity.SortByTimeStart, sort, page.Asc),
		r.sortColumn("End", entity.SortByTimeEnd, sort, page.Asc),
		{Label: "Duration"},
	}

	rows := make([]listRow, len(page.Conversations))
	for i, c := range page.Conversations {
		rows[i] = listRow{
			ID:           c.ID,
			URL:          r.ConversationURL(c.ID),
			Participants: strings.Join(c.Participants, ", "),
			MessageCount: humanize.Comma(int64(c.MessageCount)),
			Start:        FormatDate(c.TimeStart),
			End:          FormatDate(c.TimeEnd),
			Duration:     FormatDuration(c.Duration()),
		}
	}

	data := struct {
		Title   string
		Total   string
		Columns []column
		Rows    []listRow
		PrevURL string
		NextURL string
	}{
		Title:   "Chat logs",
		Total:   humanize.Comma(page.Total),
		Columns: columns,
		Rows:    rows,
	}
	if page.Offset > 0 && page.Limit > 0 {
		data.PrevURL = r.listURL(sort, page.Asc, page.Limit, max(page.Offset-page.Limit, 0))
	}
	if page.HasMore && page.Limit > 0 {
		data.NextURL = r.listURL(sort, page.Asc, page.Limit, page.Offset+page.Limit)
	}

	if err := r.list.ExecuteTemplate(w, "layout", data); err != nil {
		return fmt.Errorf("rendering conversation list: %w", err)
	}
	return nil
}

func (r *Renderer) sortColumn(label string, col, current entity.ConversationSort, asc bool) column {
	c := column{Label: label}
	// Clicking the active column flips its direction; other columns start descending.
	nextAsc := false
	if col == current {
		nextAsc = !asc
		c.Arrow = "▼"
		if asc {
			c.Arrow = "▲"
		}
	}
	c.URL = r.listURL(col, nextAsc, 0, 0)
	return c
}

func (r *Renderer) listURL(sort entity.ConversationSort, asc bool, limit, offset int) string {
	q := url.Values{}
	q.Set("sort", string(sort))
	if asc {
		q.Set("dir", "asc")
	} else {
		q.Set("dir", "desc")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return r.ListURL() + "?" + q.Encode()
}

type navLink struct {
	URL   string
	Label string
}

type nav struct {
	Previous *navLink
	Next     *navLink
	Title    string
	TitleURL string
}

type messageRow struct {
	Anchor   string
	Sender   string
	Nickname string
	Time     string
	Action   bool
	Body     template.HTML
}

// RenderConversation writes a conversation page
func (r *Renderer) RenderConversation(w io.Writer, page ConversationPage) error {
	conv := page.Conversation

	var prev, next *navLink
	if page.Previous != nil {
		prev = &navLink{URL: r.ConversationURL(page.Previous.ID), Label: messagesLabel(page.Previous.MessageCount)}
	}
	if page.Next != nil {
		next = &navLink{URL: r.ConversationURL(page.Next.ID), Label: messagesLabel(page.Next.MessageCount)}
	}

	rows := make([]messageRow, len(page.Messages))
	for i, m := range page.Messages {
		row := messageRow{
			Anchor:   "c" + m.ID.String(),
			Sender:   m.FromIdentity + "/" + m.FromOrigin,
			Nickname: m.Nickname,
			Time:     FormatClock(m.SentAt),
		}
		if row.Nickname == "" {
			row.Nickname = m.FromNick
		}
		if m.IsAction() {
			row.Action = true
			row.Body = FormatBody(m.ActionText())
		} else {
			row.Body = FormatBody(m.Body)
		}
		rows[i] = row
	}

	data := struct {
		Title    string
		Header   nav
		Footer   nav
		Messages []messageRow
	}{
		Title: fmt.Sprintf("Conversation %d", conv.ID),
		Header: nav{
			Previous: prev,
			Next:     next,
			Title:    FormatDate(conv.TimeStart) + ", for " + FormatDuration(conv.Duration()),
		},
		Footer: nav{
			Previous: prev,
			Next:     next,
			Title:    "All conversations",
			TitleURL: r.ListURL(),
		},
		Messages: rows,
	}

	if err := r.conversation.ExecuteTemplate(w, "layout", data); err != nil {
		return fmt.Errorf("rendering conversation %d: %w", conv.ID, err)
	}
	return nil
}

func messagesLabel(n int) string {
	if n == 1 {
		return "1 message"
	}
	return humanize.Comma(int64(n)) + " messages"
}
