package mgpg

import (
	"strings"

	"github.com/kevin07696/purchase-gateway/internal/domain"
)

// Reserved keys; item keys always contain "|"
const (
	mainKey    = "main"
	sessionKey = "session"
)

// ChargeIdentity maps (site, bundle, add-on) keys to the charge ids generated
// at init, so a later process call can resolve selected cross-sales.
type ChargeIdentity map[string]string

func (c ChargeIdentity) add(key domain.ItemKey, chargeID string, primary bool) {
	c[key.String()] = chargeID
	if primary {
		c[mainKey] = chargeID
	}
}

// MainChargeID returns the primary charge id, or "" if none was recorded
func (c ChargeIdentity) MainChargeID() string {
	return c[mainKey]
}

// SetSessionID records the MGPG session the charges belong to
func (c ChargeIdentity) SetSessionID(id string) {
	c[sessionKey] = id
}

// SessionID returns the MGPG session id
func (c ChargeIdentity) SessionID() string {
	return c[sessionKey]
}

// ChargeID resolves an item key
func (c ChargeIdentity) ChargeID(key domain.ItemKey) (string, bool) {
	id, ok := c[key.String()]
	return id, ok
}

// KeyOf resolves a charge id back to its item key
func (c ChargeIdentity) KeyOf(chargeID string) (domain.ItemKey, bool) {
	for k, id := range c {
		if k == mainKey || k == sessionKey || id != chargeID {
			continue
		}
		parts := strings.SplitN(k, "|", 3)
		if len(parts) != 3 {
			continue
		}
		return domain.ItemKey{SiteID: parts[0], BundleID: parts[1], AddonID: parts[2]}, true
	}
	return domain.ItemKey{}, false
}
