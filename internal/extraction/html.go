package extraction

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

// minTableFields is the number of fields a table scan must produce before
// the flattened text scan is skipped.
const minTableFields = 2

type tableField int

const (
	fieldEmail tableField = iota
	fieldAmount
	fieldEventDate
	fieldReservationDate
	fieldLocation
	fieldBookingID
	fieldBookingType
)

// tableLabels is checked in order against the lower-cased label cell.
// Date rows come before the booking id so that "Booking Date" is a date.
var tableLabels = []struct {
	field    tableField
	contains []string
}{
	{fieldEmail, []string{"email", "e-mail"}},
	{fieldAmount, []string{"amount", "total", "price", "paid"}},
	{fieldEventDate, []string{"event", "parking date", "start", "arrival"}},
	{fieldReservationDate, []string{"reservation date", "booking date", "booked", "created", "purchase"}},
	{fieldLocation, []string{"location", "facility", "address", "garage"}},
	{fieldBookingID, []string{"booking", "order", "confirmation", "reservation"}},
	{fieldBookingType, []string{"type"}},
}

var bookingIDValueRe = bookingIDPatterns[0]

func extractHTML(raw string) ticket.BookingInfo {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return extractPlain(stripTags(raw))
	}

	info, n := scanTables(doc)
	text := textContent(doc)
	if n < minTableFields {
		return extractPlain(text)
	}
	if info.BookingType == nil {
		if bt, ok := inferBookingType(text); ok {
			info.BookingType = &bt
		}
	}
	return info
}

// scanTables reads label/value pairs from the first two cells of every
// table row and returns the fields it could parse.
func scanTables(doc *html.Node) (ticket.BookingInfo, int) {
	var info ticket.BookingInfo
	n := 0

	for row := range doc.Descendants() {
		if row.Type != html.ElementNode || row.DataAtom != atom.Tr {
			continue
		}
		var cells []string
		for c := row.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
				cells = append(cells, collapse(textContent(c)))
			}
		}
		if len(cells) < 2 {
			continue
		}
		if applyTableRow(&info, strings.ToLower(strings.TrimRight(cells[0], ": ")), cells[1]) {
			n++
		}
	}
	return info, n
}

func applyTableRow(info *ticket.BookingInfo, label, value string) bool {
	if value == "" {
		return false
	}
	for _, l := range tableLabels {
		if !containsAny(label, l.contains) {
			continue
		}
		if setTableField(info, l.field, value) {
			return true
		}
	}
	return false
}

// setTableField stores value if the field is empty and the value parses.
func setTableField(info *ticket.BookingInfo, field tableField, value string) bool {
	switch field {
	case fieldEmail:
		if info.CustomerEmail != nil {
			return false
		}
		if email := emailRe.FindString(value); email != "" {
			info.CustomerEmail = ticket.Ptr(strings.ToLower(email))
			return true
		}
	case fieldAmount:
		if info.Amount != nil {
			return false
		}
		if v, ok := parseAmount(value); ok {
			info.Amount = &v
			return true
		}
	case fieldEventDate:
		if info.EventDate != nil {
			return false
		}
		if d, ok := normalizeDate(value); ok {
			info.EventDate = &d
			return true
		}
	case fieldReservationDate:
		if info.ReservationDate != nil {
			return false
		}
		if d, ok := normalizeDate(value); ok {
			info.ReservationDate = &d
			return true
		}
	case fieldLocation:
		if info.Location != nil {
			return false
		}
		if loc := cleanLocation(value); loc != "" {
			info.Location = &loc
			return true
		}
	case fieldBookingID:
		if info.BookingID != nil {
			return false
		}
		if id := bookingIDValueRe.FindString(value); id != "" {
			info.BookingID = &id
			return true
		}
		if id := strings.TrimLeft(strings.TrimSpace(value), "#"); isDigits(id) && len(id) >= 4 {
			info.BookingID = &id
			return true
		}
	case fieldBookingType:
		if info.BookingType != nil {
			return false
		}
		if bt := ticket.ParseBookingType(value); bt != ticket.BookingUnknown {
			info.BookingType = &bt
			return true
		}
	}
	return false
}

// textContent flattens the text under n, separating block elements with
// newlines. Script and style content is dropped.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Head:
				return
			case atom.Br:
				b.WriteByte('\n')
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch {
			case isBlock(n.DataAtom):
				b.WriteByte('\n')
			case n.DataAtom == atom.Td || n.DataAtom == atom.Th:
				b.WriteByte('\t')
			}
		}
	}
	walk(n)
	return b.String()
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Tr, atom.Li, atom.Table, atom.H1, atom.H2, atom.H3, atom.H4, atom.Section:
		return true
	}
	return false
}

func stripTags(s string) string {
	return htmlTagRe.ReplaceAllString(s, " ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
