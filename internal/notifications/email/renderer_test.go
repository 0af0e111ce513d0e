package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAlert() AlertData {
	return AlertData{
		RuleName:   "Bali dawn patrol",
		SpotName:   "Uluwatu",
		Origin:     "LIS",
		Dest:       "DPS",
		DepartDate: "2026-05-04",
		ReturnDate: "2026-05-07",
		TripDays:   3,
		GoodDays:   []string{"2026-05-04", "2026-05-05"},
		Price:      639.6,
		Currency:   "USD",
		Outlook:    "confident",
		Thresholds: "wave 1.0-2.5 m, wind ≤ 20 km/h",
		FlightLink: "https://www.aviasales.com/search/LIS0405DPS0705?marker=1&sub_id=alert_r1",
		HotelLink:  "https://search.hotellook.com/?destination=Bali",
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "Surf+Flight (confident): Uluwatu + LIS→DPS ≈ USD 640", Subject(sampleAlert()))
}

func TestRenderer_Render(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(sampleAlert())
	require.NoError(t, err)

	assert.Equal(t, Subject(sampleAlert()), out.Subject)
	body := out.BodyHTML
	assert.Contains(t, body, "Uluwatu: surf is on")
	assert.Contains(t, body, "LIS &rarr; DPS")
	assert.Contains(t, body, "2026-05-04 &rarr; 2026-05-07 (3 days)")
	assert.Contains(t, body, "2026-05-04, 2026-05-05")
	assert.Contains(t, body, "USD 640")
	assert.Contains(t, body, `href="https://www.aviasales.com/search/LIS0405DPS0705?marker=1&amp;sub_id=alert_r1"`)
	assert.Contains(t, body, "Find hotels")
	assert.Contains(t, body, "Bali dawn patrol")
}

func TestRenderer_OmitsHotelWhenEmpty(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	d := sampleAlert()
	d.HotelLink = ""
	d.Thresholds = ""
	out, err := r.Render(d)
	require.NoError(t, err)
	assert.NotContains(t, out.BodyHTML, "Find hotels")
	assert.NotContains(t, out.BodyHTML, "Conditions")
}

func TestRenderer_EscapesUserContent(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	d := sampleAlert()
	d.RuleName = `<script>alert(1)</script>`
	out, err := r.Render(d)
	require.NoError(t, err)
	assert.NotContains(t, out.BodyHTML, "<script>")
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "k***@surf.io", RedactEmail("kai@surf.io"))
	assert.Equal(t, "***", RedactEmail("nobody"))
	assert.Equal(t, "***@surf.io", RedactEmail("@surf.io"))
	assert.Equal(t, "", RedactEmail(""))
}
