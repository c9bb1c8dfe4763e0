package extraction

import (
	"context"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

var (
	htmlTagRe = regexp.MustCompile(`<[a-zA-Z][^>]*>`)

	// Booking ids, most specific first.
	bookingIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bPW-\d+\b`),
		regexp.MustCompile(`(?i)\b(?:booking|order|confirmation|reservation)(?:\s+(?:id|number|no\.?|code))?\s*[:#]?\s*#?\s*(\d{4,})\b`),
		regexp.MustCompile(`\b\d{9,12}\b`),
	}

	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})(?:\b|T)`)
	usDateRe    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	monthDateRe = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)

	eventLabelRe        = regexp.MustCompile(`(?i)\b(?:event|parking|arrival|start)(?:\s+date)?(?:\s+is)?\s*[:\-]?\s*(?:on\s+)?$`)
	reservationLabelRe  = regexp.MustCompile(`(?i)\b(?:reservation|booked|purchase|purchased|created|order)(?:\s+date)?(?:\s+on)?\s*[:\-]?\s*$`)
	cancellationLabelRe = regexp.MustCompile(`(?i)\bcancel(?:led|ed|lation)?(?:\s+date)?(?:\s+on)?\s*[:\-]?\s*$`)

	locationLabelRe = regexp.MustCompile(`(?i)\b(?:location|facility|garage|lot|address)(?:\s*[:\-]|\t)\s*([^\n\t,;]+)`)
	locationNameRe  = regexp.MustCompile(`\b(?:at|@)\s+((?:[A-Z][\w'&.-]*\s+){0,4}(?:Garage|Lot|Parking|Deck|Ramp|Structure))\b`)

	emailRe  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	amountRe = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`)

	bookingTypeLabelRe = regexp.MustCompile(`(?i)\b(?:booking|reservation|parking)\s+type\s*[:\-]\s*([a-z]+(?:[-_ ][a-z]+)?)`)
)

// label prefixes are inspected this far back from a date.
const labelWindow = 32

var monthNumbers = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

type bookingTypeKeywords struct {
	bookingType ticket.BookingType
	keywords    []string
}

// Checked in order; on-demand wording wins over generic "confirmed".
var bookingTypeTable = []bookingTypeKeywords{
	{ticket.BookingOnDemand, []string{"on-demand", "on demand", "ondemand", "drive-up", "drive up"}},
	{ticket.BookingThirdParty, []string{"third-party", "third party", "thirdparty", "reseller", "partner site"}},
	{ticket.BookingConfirmed, []string{"confirmed booking", "confirmed reservation", "reservation confirmed", "booking confirmed", "pre-booked", "prebooked", "pre-paid reservation"}},
}

// PatternExtractor extracts booking fields with regular expressions.
// It is stateless and safe for concurrent use.
type PatternExtractor struct{}

// NewPatternExtractor creates a PatternExtractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

// Extract implements Extractor. The context is unused.
func (p *PatternExtractor) Extract(_ context.Context, text string) Result {
	return p.ExtractText(text)
}

// ExtractText extracts booking fields from plain text or HTML.
func (p *PatternExtractor) ExtractText(text string) Result {
	var info ticket.BookingInfo
	if IsHTML(text) {
		info = extractHTML(text)
	} else {
		info = extractPlain(text)
	}
	return result(info, MethodPattern)
}

// IsHTML reports whether text contains element markup.
func IsHTML(text string) bool {
	return htmlTagRe.MatchString(text)
}

func result(info ticket.BookingInfo, method Method) Result {
	return Result{
		Found:      info.CriticalCount() > 0,
		Booking:    info,
		Confidence: ScoreConfidence(info),
		Method:     method,
	}
}

func extractPlain(text string) ticket.BookingInfo {
	var info ticket.BookingInfo

	if id := findBookingID(text); id != "" {
		info.BookingID = &id
	}
	assignDates(&info, findDates(text))
	if loc := findLocation(text); loc != "" {
		info.Location = &loc
	}
	if email := emailRe.FindString(text); email != "" {
		info.CustomerEmail = ticket.Ptr(strings.ToLower(email))
	}
	if amount, ok := findAmount(text); ok {
		info.Amount = &amount
	}
	if bt, ok := inferBookingType(text); ok {
		info.BookingType = &bt
	}
	return info
}

func findBookingID(text string) string {
	for _, re := range bookingIDPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) > 1 && m[1] != "" {
			return m[1]
		}
		return m[0]
	}
	return ""
}

type dateLabel int

const (
	labelNone dateLabel = iota
	labelEvent
	labelReservation
	labelCancellation
)

type foundDate struct {
	pos   int
	value time.Time
	label dateLabel
}

// findDates returns valid dates in order of appearance. A date that
// appears twice keeps its first position and any label.
func findDates(text string) []foundDate {
	var dates []foundDate

	collect := func(re *regexp.Regexp, build func(m []string) (time.Time, bool)) {
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			m := make([]string, len(idx)/2)
			for i := range m {
				if idx[2*i] >= 0 {
					m[i] = text[idx[2*i]:idx[2*i+1]]
				}
			}
			t, ok := build(m)
			if !ok {
				continue
			}
			dates = append(dates, foundDate{pos: idx[0], value: t, label: labelBefore(text, idx[0])})
		}
	}

	collect(isoDateRe, func(m []string) (time.Time, bool) {
		return makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	})
	collect(usDateRe, func(m []string) (time.Time, bool) {
		return makeDate(atoi(m[3]), atoi(m[1]), atoi(m[2]))
	})
	collect(monthDateRe, func(m []string) (time.Time, bool) {
		month, ok := monthNumbers[strings.ToLower(m[1])[:3]]
		if !ok {
			return time.Time{}, false
		}
		return makeDate(atoi(m[3]), int(month), atoi(m[2]))
	})

	slices.SortStableFunc(dates, func(a, b foundDate) int { return a.pos - b.pos })

	out := dates[:0]
	for _, d := range dates {
		dup := slices.IndexFunc(out, func(o foundDate) bool { return o.value.Equal(d.value) })
		if dup < 0 {
			out = append(out, d)
			continue
		}
		if out[dup].label == labelNone {
			out[dup].label = d.label
		}
	}
	return out
}

func labelBefore(text string, pos int) dateLabel {
	prefix := text[max(0, pos-labelWindow):pos]
	switch {
	case cancellationLabelRe.MatchString(prefix):
		return labelCancellation
	case eventLabelRe.MatchString(prefix):
		return labelEvent
	case reservationLabelRe.MatchString(prefix):
		return labelReservation
	}
	return labelNone
}

// assignDates fills date fields. Labelled dates win. Of the unlabelled
// dates, a single one is the event date and two are reservation then
// event; more than two are ambiguous and left unset.
func assignDates(info *ticket.BookingInfo, dates []foundDate) {
	var unlabelled []time.Time
	for _, d := range dates {
		s := ticket.FormatDate(d.value)
		switch d.label {
		case labelEvent:
			if info.EventDate == nil {
				info.EventDate = &s
			}
		case labelReservation:
			if info.ReservationDate == nil {
				info.ReservationDate = &s
			}
		case labelCancellation:
			if info.CancellationDate == nil {
				info.CancellationDate = &s
			}
		default:
			unlabelled = append(unlabelled, d.value)
		}
	}

	switch {
	case info.EventDate == nil && info.ReservationDate == nil:
		switch len(unlabelled) {
		case 1:
			info.EventDate = ticket.Ptr(ticket.FormatDate(unlabelled[0]))
		case 2:
			earlier, later := unlabelled[0], unlabelled[1]
			if later.Before(earlier) {
				earlier, later = later, earlier
			}
			info.ReservationDate = ticket.Ptr(ticket.FormatDate(earlier))
			info.EventDate = ticket.Ptr(ticket.FormatDate(later))
		}
	case info.EventDate == nil:
		if len(unlabelled) == 1 {
			info.EventDate = ticket.Ptr(ticket.FormatDate(unlabelled[0]))
		}
	case info.ReservationDate == nil:
		if len(unlabelled) == 1 {
			if event, err := ticket.ParseDate(*info.EventDate); err == nil && !unlabelled[0].After(event) {
				info.ReservationDate = ticket.Ptr(ticket.FormatDate(unlabelled[0]))
			}
		}
	}
}

// normalizeDate parses any supported date format into YYYY-MM-DD.
func normalizeDate(s string) (string, bool) {
	if t, err := ticket.ParseDate(s); err == nil {
		return ticket.FormatDate(t), true
	}
	dates := findDates(s)
	if len(dates) == 0 {
		return "", false
	}
	return ticket.FormatDate(dates[0].value), true
}

func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1900 || year > 2200 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// Reject overflow such as February 30.
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func findLocation(text string) string {
	if m := locationLabelRe.FindStringSubmatch(text); m != nil {
		if loc := cleanLocation(m[1]); loc != "" {
			return loc
		}
	}
	if m := locationNameRe.FindStringSubmatch(text); m != nil {
		return cleanLocation(m[1])
	}
	return ""
}

func cleanLocation(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".!?:")
	if len(s) > 120 {
		s = s[:120]
	}
	return strings.TrimSpace(s)
}

func findAmount(text string) (float64, bool) {
	m := amountRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return parseAmount(m[1])
}

func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(strings.NewReplacer("$", "", ",", "", "USD", "", "usd", "").Replace(s))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func inferBookingType(text string) (ticket.BookingType, bool) {
	if m := bookingTypeLabelRe.FindStringSubmatch(text); m != nil {
		if bt := ticket.ParseBookingType(m[1]); bt != ticket.BookingUnknown {
			return bt, true
		}
		if bt := ticket.ParseBookingType(strings.Fields(m[1])[0]); bt != ticket.BookingUnknown {
			return bt, true
		}
	}
	lower := strings.ToLower(text)
	for _, row := range bookingTypeTable {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				return row.bookingType, true
			}
		}
	}
	return "", false
}
