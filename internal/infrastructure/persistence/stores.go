package persistence

import (
	"github.com/erp/crm/internal/domain/partner"
	"gorm.io/gorm"
)

// PartnerStores bundles the row stores of the relational consistency layer
type PartnerStores struct {
	Clients  *GormRecordStore[partner.Client]
	Contacts *GormRecordStore[partner.Contact]
	Links    *GormRecordStore[partner.Link]
	Tags     *GormRecordStore[partner.Tag]
	Groups   *GormRecordStore[partner.EconomicGroup]
}

// NewPartnerStores creates every store on db
func NewPartnerStores(db *gorm.DB) *PartnerStores {
	return &PartnerStores{
		Clients:  NewGormRecordStore[partner.Client](db, "client").WithSortFields(ClientSortFields),
		Contacts: NewGormRecordStore[partner.Contact](db, "contact").WithSortFields(ContactSortFields),
		Links:    NewGormRecordStore[partner.Link](db, "link"),
		Tags:     NewGormRecordStore[partner.Tag](db, "tag").WithSortFields(NamedSortFields).WithFoldKey(partner.ColName, partner.ColNameKey),
		Groups:   NewGormRecordStore[partner.EconomicGroup](db, "economic group").WithSortFields(NamedSortFields).WithFoldKey(partner.ColName, partner.ColNameKey),
	}
}
