package fetcher

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dt(s string) *backend.RawTime { return &backend.RawTime{DateTime: s} }

func local(s string) *backend.RawTime { return &backend.RawTime{DateTime: s, TimeZone: "UTC"} }

func date(s string) *backend.RawTime { return &backend.RawTime{Date: s} }

func TestParse(t *testing.T) {
	nine := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		raw       backend.RawEvent
		wantStart time.Time
		wantEnd   time.Time
		wantAll   bool
		wantField string
	}{
		{
			name:      "rfc3339 with offset",
			raw:       backend.RawEvent{ID: "e1", Start: dt("2026-06-01T11:00:00+02:00"), End: dt("2026-06-01T11:30:00+02:00")},
			wantStart: nine,
			wantEnd:   nine.Add(30 * time.Minute),
		},
		{
			name:      "zone-less with time zone",
			raw:       backend.RawEvent{ID: "e2", Start: local("2026-06-01T09:00:00.0000000"), End: local("2026-06-01T10:00:00.0000000")},
			wantStart: nine,
			wantEnd:   nine.Add(time.Hour),
		},
		{
			name:      "all day",
			raw:       backend.RawEvent{ID: "e3", Start: date("2026-06-01"), End: date("2026-06-02")},
			wantStart: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC),
			wantAll:   true,
		},
		{
			name:      "missing start",
			raw:       backend.RawEvent{ID: "e4", End: dt("2026-06-01T10:00:00Z")},
			wantField: "start",
		},
		{
			name:      "missing end",
			raw:       backend.RawEvent{ID: "e5", Start: dt("2026-06-01T10:00:00Z")},
			wantField: "end",
		},
		{
			name:      "garbage start",
			raw:       backend.RawEvent{ID: "e6", Start: dt("tomorrow"), End: dt("2026-06-01T10:00:00Z")},
			wantField: "start",
		},
		{
			name:      "empty end",
			raw:       backend.RawEvent{ID: "e7", Start: dt("2026-06-01T10:00:00Z"), End: &backend.RawTime{}},
			wantField: "end",
		},
		{
			name:      "end not after start",
			raw:       backend.RawEvent{ID: "e8", Start: dt("2026-06-01T10:00:00Z"), End: dt("2026-06-01T10:00:00Z")},
			wantField: "end",
		},
		{
			name:      "missing id",
			raw:       backend.RawEvent{Start: dt("2026-06-01T09:00:00Z"), End: dt("2026-06-01T10:00:00Z")},
			wantField: "id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Parse("int-1", tt.raw)
			if tt.wantField != "" {
				require.ErrorIs(t, err, common.ErrMalformedEvent)
				var pe *ParseError
				require.True(t, errors.As(err, &pe))
				assert.Equal(t, tt.wantField, pe.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "int-1", ev.IntegrationID)
			assert.True(t, tt.wantStart.Equal(ev.Start), "start %s", ev.Start)
			assert.True(t, tt.wantEnd.Equal(ev.End), "end %s", ev.End)
			assert.Equal(t, tt.wantAll, ev.AllDay)
		})
	}
}

func TestParse_OptionalFields(t *testing.T) {
	ev, err := Parse("int-1", backend.RawEvent{
		ID:                   "e1",
		Title:                "Dr. Smith",
		Location:             "Room 4",
		Status:               "Cancelled",
		IsMedicalAppointment: true,
		Updated:              "2026-05-30T12:00:00Z",
		Start:                dt("2026-06-01T09:00:00Z"),
		End:                  dt("2026-06-01T10:00:00Z"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Dr. Smith", ev.Title)
	assert.Equal(t, "Room 4", ev.Location)
	assert.Equal(t, StatusCancelled, ev.Status)
	assert.True(t, ev.IsMedicalAppointment)
	assert.Equal(t, time.Date(2026, 5, 30, 12, 0, 0, 0, time.UTC), ev.LastModified)
	assert.Equal(t, "int-1/e1", ev.Key())
}
