package partner

import "github.com/erp/crm/internal/domain/shared"

// Row stores for the relational consistency layer
type (
	ClientStore  = shared.RecordStore[Client]
	ContactStore = shared.RecordStore[Contact]
	LinkStore    = shared.RecordStore[Link]
	TagStore     = shared.RecordStore[Tag]
	GroupStore   = shared.RecordStore[EconomicGroup]
)

// Column names used in filters and updates
const (
	ColName           = "name"
	ColNameKey        = "name_key"
	ColDescription    = "description"
	ColClassification = "classification"
	ColDocument       = "document"
	ColEmail          = "email"
	ColPhone          = "phone"
	ColAttributes     = "attributes"
	ColTags           = "tags"
	ColGroupID        = "group_id"
	ColChannels       = "channels"
	ColNotes          = "notes"
	ColClientID       = "client_id"
	ColContactID      = "contact_id"
	ColRole           = "role"
	ColNotifyEmail    = "notify_email"
	ColNotifyPhone    = "notify_phone"
	ColNotifyGroup    = "notify_group"
	ColIsPrincipal    = "is_principal"
)
