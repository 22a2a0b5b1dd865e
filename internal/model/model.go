// Package model drží doménové typy platformy: senzory, měření, granty a principal.
package model

import "time"

// Role určuje, v jaké roli principal vystupuje.
// Hodnoty odpovídají rolím, které vydává externí správa uživatelů.
type Role string

const (
	RolePlatformAdmin Role = "SystemAdmin"
	RoleTenantAdmin   Role = "CompanyAdmin"
	RoleMember        Role = "User"
)

// Valid vrací true pro známé role.
func (r Role) Valid() bool {
	switch r {
	case RolePlatformAdmin, RoleTenantAdmin, RoleMember:
		return true
	}
	return false
}

// Permission je jedno z oprávnění, která může grant udělit.
type Permission string

const (
	PermView   Permission = "view"
	PermEdit   Permission = "edit"
	PermDelete Permission = "delete"
)

// ParsePermission převádí textovou hodnotu (např. z query stringu) na Permission.
// Prázdný string znamená "view".
func ParsePermission(s string) (Permission, bool) {
	switch Permission(s) {
	case "":
		return PermView, true
	case PermView, PermEdit, PermDelete:
		return Permission(s), true
	}
	return "", false
}

// Sensor je záznam z registru senzorů.
// SensorID je externí klíč zařízení (stejný jako v MQTT topicu), ID je interní primární klíč.
type Sensor struct {
	ID          string `json:"id"`
	SensorID    string `json:"sensor_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Type        string `json:"type,omitempty"`
	CompanyID   string `json:"companyId"`
	IsActive    bool   `json:"isActive"`
}

// Reading je jedno uložené měření. Záznamy se nikdy neupravují.
//
// Temperature a Humidity jsou pointery: nil znamená, že zařízení hodnotu neposlalo.
// SensorID není cizí klíč, měření od neregistrovaného senzoru se ukládá také.
type Reading struct {
	ID             string         `json:"id"`
	SensorID       string         `json:"sensor_id"`
	Timestamp      time.Time      `json:"timestamp"`
	Temperature    *float64       `json:"temperature"`
	Humidity       *float64       `json:"humidity"`
	AdditionalData map[string]any `json:"additional_data"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AccessGrant je výjimka z hranice tenanta: konkrétní uživatel smí pracovat s konkrétním senzorem.
// Dvojice (SensorID, UserID) je unikátní. SensorID je interní ID senzoru.
type AccessGrant struct {
	ID          string    `json:"id"`
	SensorID    string    `json:"sensorId"`
	UserID      string    `json:"userId"`
	CanView     bool      `json:"canView"`
	CanEdit     bool      `json:"canEdit"`
	CanDelete   bool      `json:"canDelete"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Allows vrací hodnotu příznaku pro dané oprávnění.
func (g AccessGrant) Allows(p Permission) bool {
	switch p {
	case PermView:
		return g.CanView
	case PermEdit:
		return g.CanEdit
	case PermDelete:
		return g.CanDelete
	}
	return false
}

// Principal je ověřený aktér, pod kterým operace běží. Existuje jen za běhu.
// Prázdné CompanyID znamená uživatele bez firmy.
type Principal struct {
	UserID    string `json:"userId"`
	Role      Role   `json:"role"`
	CompanyID string `json:"companyId,omitempty"`
	Email     string `json:"email,omitempty"`
}

// HasCompany vrací true, pokud je principal členem nějakého tenanta.
func (p Principal) HasCompany() bool { return p.CompanyID != "" }

// Akce zapisované do access logu.
const (
	ActionSubscribed = "subscribed_to_sensor"
	ActionViewedLogs = "viewed_logs"
)

// AccessLogEntry je auditní záznam o přístupu uživatele k datům senzoru.
type AccessLogEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	SensorID  string    `json:"sensorId"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}
