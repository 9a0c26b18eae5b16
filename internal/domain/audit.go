package domain

import "time"

// AuditAction tags a committed domain event.
type AuditAction string

const (
	AuditOrderCreated    AuditAction = "ORDER_CREATED"
	AuditOrderCancelled  AuditAction = "ORDER_CANCELLED"
	AuditPositionOpened  AuditAction = "POSITION_OPENED"
	AuditPositionClosed  AuditAction = "POSITION_CLOSED"
	AuditBalanceUpdated  AuditAction = "BALANCE_UPDATED"
	AuditUserLogin       AuditAction = "USER_LOGIN"
	AuditUserRegistered  AuditAction = "USER_REGISTERED"
)

// AuditEntry is one append-only record of who did what and when.
// IPAddress and UserAgent are supplied by the transport layer.
type AuditEntry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Action    AuditAction    `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IPAddress string         `json:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
