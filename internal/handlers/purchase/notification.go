package purchase

import (
	"net/url"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/services/postback"
)

// Notification is the biller result posted to the postback endpoint
type Notification struct {
	ItemID        string            `json:"itemId"`
	TransactionID string            `json:"transactionId"`
	BillerName    string            `json:"billerName"`
	Status        string            `json:"status"`
	DeclineCode   string            `json:"declineCode,omitempty"`
	DeclineReason string            `json:"declineReason,omitempty"`
	Secured3DS    bool              `json:"securedWithThreeD,omitempty"`
	ThreeDVersion int               `json:"threeDVersion,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// PostbackAck answers an applied postback
type PostbackAck struct {
	SessionID     string `json:"sessionId"`
	State         string `json:"state"`
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

func (b Notification) toNotification(sessionID string) postback.Notification {
	n := postback.Notification{
		SessionID:     sessionID,
		ItemID:        b.ItemID,
		TransactionID: b.TransactionID,
		BillerName:    b.BillerName,
		Status:        toStatus(b.Status),
		ThreeDS:       domain.ThreeDSInfo{Secured: b.Secured3DS, Version: b.ThreeDVersion},
		RawFields:     b.Fields,
	}
	if b.DeclineCode != "" || b.DeclineReason != "" {
		n.Decline = &domain.DeclineInfo{Code: b.DeclineCode, Message: b.DeclineReason}
	}
	return n
}

// Return parameters the handler understands; anything else is kept raw
var returnKeys = map[string]bool{
	"itemId": true, "transactionId": true, "billerName": true,
	"status": true, "declineCode": true, "declineReason": true,
}

func notificationFromValues(sessionID string, v url.Values) postback.Notification {
	b := Notification{
		ItemID:        v.Get("itemId"),
		TransactionID: v.Get("transactionId"),
		BillerName:    v.Get("billerName"),
		Status:        v.Get("status"),
		DeclineCode:   v.Get("declineCode"),
		DeclineReason: v.Get("declineReason"),
	}
	for k := range v {
		if returnKeys[k] {
			continue
		}
		if b.Fields == nil {
			b.Fields = make(map[string]string)
		}
		b.Fields[k] = v.Get(k)
	}
	return b.toNotification(sessionID)
}

// toStatus maps a biller status; anything unrecognized must be reconciled
// later rather than guessed
func toStatus(s string) domain.TransactionStatus {
	switch domain.TransactionStatus(s) {
	case domain.TransactionStatusApproved, domain.TransactionStatusDeclined,
		domain.TransactionStatusPending, domain.TransactionStatusAborted:
		return domain.TransactionStatus(s)
	}
	switch s {
	case "success", "approve":
		return domain.TransactionStatusApproved
	case "decline", "failed":
		return domain.TransactionStatusDeclined
	}
	return domain.TransactionStatusUnknown
}

func firstOf(v url.Values, keys ...string) string {
	for _, k := range keys {
		if s := v.Get(k); s != "" {
			return s
		}
	}
	return ""
}
