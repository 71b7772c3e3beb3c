package authflow

import (
	"testing"

	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Message
		wantErr bool
	}{
		{name: "success", in: `{"type":"success","code":"c","state":"s"}`, want: Message{Kind: MessageSuccess, Code: "c", State: "s"}},
		{name: "error", in: `{"type":"error","message":"denied"}`, want: Message{Kind: MessageError, Error: "denied"}},
		{name: "complete", in: `{"type":"complete"}`, want: Message{Kind: MessageRefreshHint}},
		{name: "success without state", in: `{"type":"success","code":"c"}`, wantErr: true},
		{name: "success without code", in: `{"type":"success","state":"s"}`, wantErr: true},
		{name: "unknown type", in: `{"type":"oauth-ok"}`, wantErr: true},
		{name: "not json", in: `code=c`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMessage([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeMessage_RoundTripWithIntegration(t *testing.T) {
	m := Message{Kind: MessageSuccess, State: "s", Integration: &models.Integration{ID: "i1", CalendarName: "Work"}}
	data, err := EncodeMessage(m)
	require.NoError(t, err)

	got, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, "i1", got.Integration.ID)
	assert.Equal(t, "Work", got.Integration.CalendarName)
}
