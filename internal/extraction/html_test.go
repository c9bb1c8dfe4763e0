package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

const receiptHTML = `<html><head><style>td { color: red; }</style></head><body>
<p>Thanks for parking with us!</p>
<table>
  <tr><th>Booking Number</th><td>PW-778899001</td></tr>
  <tr><td>Event Date:</td><td>November 25, 2025</td></tr>
  <tr><td>Booking Date</td><td>11/01/2025</td></tr>
  <tr><td>Total Paid</td><td>$32.50</td></tr>
  <tr><td>Facility</td><td>Arena Garage East</td></tr>
  <tr><td>Email</td><td>FAN@example.com</td></tr>
  <tr><td>Booking Type</td><td>Confirmed</td></tr>
</table>
</body></html>`

func TestExtractHTML_Table(t *testing.T) {
	res := NewPatternExtractor().ExtractText(receiptHTML)

	assert.True(t, res.Found)
	assert.Equal(t, ticket.ConfidenceHigh, res.Confidence)

	b := res.Booking
	assert.Equal(t, "PW-778899001", ticket.Value(b.BookingID))
	assert.Equal(t, "2025-11-25", ticket.Value(b.EventDate))
	assert.Equal(t, "2025-11-01", ticket.Value(b.ReservationDate))
	require.NotNil(t, b.Amount)
	assert.InDelta(t, 32.5, *b.Amount, 0.001)
	assert.Equal(t, "Arena Garage East", ticket.Value(b.Location))
	assert.Equal(t, "fan@example.com", ticket.Value(b.CustomerEmail))
	assert.Equal(t, ticket.BookingConfirmed, b.Type())
}

func TestExtractHTML_UnparseableValuesSkipped(t *testing.T) {
	html := `<table>
<tr><td>Event</td><td>Big Concert</td></tr>
<tr><td>Event Date</td><td>2025-12-01</td></tr>
<tr><td>Order</td><td>#123456</td></tr>
</table>`
	b := NewPatternExtractor().ExtractText(html).Booking

	assert.Equal(t, "2025-12-01", ticket.Value(b.EventDate))
	assert.Equal(t, "123456", ticket.Value(b.BookingID))
}

func TestExtractHTML_FallsBackToText(t *testing.T) {
	html := `<div><p>Hello, my booking PW-5550001 for <b>2025-12-24</b> was at Location: Harbor Lot.</p>
<table><tr><td>Note</td><td>nothing useful</td></tr></table></div>`

	res := NewPatternExtractor().ExtractText(html)
	b := res.Booking
	assert.Equal(t, "PW-5550001", ticket.Value(b.BookingID))
	assert.Equal(t, "2025-12-24", ticket.Value(b.EventDate))
	assert.Equal(t, "Harbor Lot", ticket.Value(b.Location))
}

func TestTextContent_DropsScriptsAndSeparatesBlocks(t *testing.T) {
	res := NewPatternExtractor().ExtractText(`<div>first</div><script>var x = "PW-1111";</script><div>PW-2222</div>`)
	assert.Equal(t, "PW-2222", ticket.Value(res.Booking.BookingID))
}
