package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	data := Dataset{Headers: []string{"Student", "Status", "Balance"}}
	data.Append("Ana Cruz", "pending", "16000.00")
	data.Append("=HYPERLINK(\"x\")", "approved", "-500.00")

	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)
	assert.Equal(t, "Student,Status,Balance\nAna Cruz,pending,16000.00\n\"'=HYPERLINK(\"\"x\"\")\",approved,-500.00\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRenderBilling(t *testing.T) {
	out, err := NewPDFExporter().RenderBilling(BillingDocument{
		Title:      "Invoice",
		SchoolName: "Christian Bible Heritage Learning Center",
		Number:     "INV-20250601-ABC123",
		IssuedAt:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		BilledTo:   "Maria Cruz",
		Lines:      []Line{{Description: "Tuition Fee", Amount: "15,000.00"}},
		Totals:     []Line{{Description: "Total", Amount: "PHP 15,000.00"}},
		Footer:     "Thank you.",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().RenderBilling(BillingDocument{})
	assert.Error(t, err)
}

func TestPDFExporterRenderTable(t *testing.T) {
	data := Dataset{Headers: []string{"A", "B"}}
	data.Append("1", "2")
	out, err := NewPDFExporter().RenderTable(data, "Enrollments")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
