package coordinator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/wapair/session-backend/interfaces"
)

// pairingAddressSuffix is the protocol's addressing suffix for phone-number
// identities.
const pairingAddressSuffix = "@s.whatsapp.net"

var phoneDigits = regexp.MustCompile(`^[0-9]+$`)

// FormatPairingAddress validates a phone number (digits only, no leading +,
// no spaces) and returns it in the protocol's addressing form.
func FormatPairingAddress(phoneNumber string) (string, error) {
	trimmed := strings.TrimSpace(phoneNumber)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", interfaces.ErrInvalidPhoneNumber)
	}
	if !phoneDigits.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q must contain digits only", interfaces.ErrInvalidPhoneNumber, phoneNumber)
	}
	return trimmed + pairingAddressSuffix, nil
}

// pairingRequest issues a pairing code at most once per connection attempt.
// The protocol layer enforces a cooldown on repeated requests, so a second
// issuance within the same attempt is rejected locally.
type pairingRequest struct {
	mu     sync.Mutex
	issued bool
}

func (p *pairingRequest) issue(ctx context.Context, client interfaces.ProtocolClient, address string) (string, error) {
	p.mu.Lock()
	if p.issued {
		p.mu.Unlock()
		return "", fmt.Errorf("%w: pairing code already requested for this attempt", interfaces.ErrPairingRequestFailed)
	}
	p.issued = true
	p.mu.Unlock()

	code, err := client.RequestPairingCode(ctx, address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrPairingRequestFailed, err)
	}
	if code == "" {
		return "", fmt.Errorf("%w: protocol returned an empty code", interfaces.ErrPairingRequestFailed)
	}
	return code, nil
}
