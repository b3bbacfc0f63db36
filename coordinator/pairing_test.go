package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wapair/session-backend/interfaces"
)

func TestFormatPairingAddress(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		want    string
		wantErr bool
	}{
		{name: "digits", phone: "50912345678", want: "50912345678@s.whatsapp.net"},
		{name: "surrounding whitespace trimmed", phone: "  50912345678 ", want: "50912345678@s.whatsapp.net"},
		{name: "empty", phone: "", wantErr: true},
		{name: "whitespace only", phone: "   ", wantErr: true},
		{name: "leading plus", phone: "+50912345678", wantErr: true},
		{name: "inner spaces", phone: "509 1234 5678", wantErr: true},
		{name: "letters", phone: "phone", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatPairingAddress(tc.phone)
			if tc.wantErr {
				assert.ErrorIs(t, err, interfaces.ErrInvalidPhoneNumber)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPairingRequest_IssuesOnce(t *testing.T) {
	client := new(MockProtocolClient)
	client.On("RequestPairingCode", mock.Anything, "50912345678@s.whatsapp.net").
		Return("ABCD-EFGH", nil).Once()

	var p pairingRequest
	code, err := p.issue(context.Background(), client, "50912345678@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "ABCD-EFGH", code)

	// Second issuance within the same attempt is rejected locally.
	_, err = p.issue(context.Background(), client, "50912345678@s.whatsapp.net")
	assert.ErrorIs(t, err, interfaces.ErrPairingRequestFailed)
	client.AssertExpectations(t)
}

func TestPairingRequest_WrapsClientError(t *testing.T) {
	client := new(MockProtocolClient)
	client.On("RequestPairingCode", mock.Anything, mock.Anything).
		Return("", assert.AnError)

	var p pairingRequest
	_, err := p.issue(context.Background(), client, "509@s.whatsapp.net")
	assert.ErrorIs(t, err, interfaces.ErrPairingRequestFailed)
}

func TestPairingRequest_RejectsEmptyCode(t *testing.T) {
	client := new(MockProtocolClient)
	client.On("RequestPairingCode", mock.Anything, mock.Anything).
		Return("", nil)

	var p pairingRequest
	_, err := p.issue(context.Background(), client, "509@s.whatsapp.net")
	assert.ErrorIs(t, err, interfaces.ErrPairingRequestFailed)
}
