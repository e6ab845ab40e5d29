package storage

import (
	"fmt"
	"time"

	"rentledger/internal/model"
)

// Dataset is the whole persisted state. It is serialized as one JSON document.
type Dataset struct {
	Tenants  []model.Tenant  `json:"tenants"`
	Payments []model.Payment `json:"payments"`
	Images   []model.Image   `json:"images"`
	BankInfo model.BankInfo  `json:"bankInfo"`

	// LastTenantID is the highest tenant id ever issued.
	LastTenantID int64 `json:"lastTenantId,omitempty"`
}

// DefaultBankInfo is used when a dataset is created from scratch.
func DefaultBankInfo(now time.Time) model.BankInfo {
	return model.BankInfo{
		BankName:      "元大銀行",
		BranchName:    "營業部",
		AccountName:   "廣大城",
		AccountNumber: "1111-2222-3333",
		UpdatedAt:     now,
	}
}

// EmptyDataset has no records and the default bank info.
func EmptyDataset(now time.Time) *Dataset {
	return &Dataset{
		Tenants:  []model.Tenant{},
		Payments: []model.Payment{},
		Images:   []model.Image{},
		BankInfo: DefaultBankInfo(now),
	}
}

// Clone returns a deep copy. Records hold only value fields, so copying the
// slices is enough.
func (d *Dataset) Clone() *Dataset {
	return &Dataset{
		Tenants:  append(make([]model.Tenant, 0, len(d.Tenants)), d.Tenants...),
		Payments: append(make([]model.Payment, 0, len(d.Payments)), d.Payments...),
		Images:   append(make([]model.Image, 0, len(d.Images)), d.Images...),
		BankInfo: d.BankInfo,

		LastTenantID: d.LastTenantID,
	}
}

func (d *Dataset) normalize() {
	if d.Tenants == nil {
		d.Tenants = []model.Tenant{}
	}
	if d.Payments == nil {
		d.Payments = []model.Payment{}
	}
	if d.Images == nil {
		d.Images = []model.Image{}
	}
	d.LastTenantID = d.highestTenantID()
}

func (d *Dataset) highestTenantID() int64 {
	last := d.LastTenantID
	for _, t := range d.Tenants {
		if t.ID > last {
			last = t.ID
		}
	}
	return last
}

// NextTenantID allocates a tenant id. Ids of deleted tenants are never
// handed out again, since their tokens stay valid until they expire.
func (d *Dataset) NextTenantID() int64 {
	d.LastTenantID = d.highestTenantID() + 1
	return d.LastTenantID
}

func (d *Dataset) NextPaymentID() int64 {
	var max int64
	for _, p := range d.Payments {
		if p.ID > max {
			max = p.ID
		}
	}
	return max + 1
}

func (d *Dataset) NextImageID() int64 {
	var max int64
	for _, img := range d.Images {
		if img.ID > max {
			max = img.ID
		}
	}
	return max + 1
}

func (d *Dataset) FindTenant(id int64) (int, bool) {
	for i, t := range d.Tenants {
		if t.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (d *Dataset) FindTenantByUsername(username string) (int, bool) {
	for i, t := range d.Tenants {
		if t.Username == username {
			return i, true
		}
	}
	return -1, false
}

func (d *Dataset) FindPayment(id int64) (int, bool) {
	for i, p := range d.Payments {
		if p.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (d *Dataset) FindImage(id int64) (int, bool) {
	for i, img := range d.Images {
		if img.ID == id {
			return i, true
		}
	}
	return -1, false
}

// ActiveTenant returns the index of a tenant caller's record. A tenant whose
// record is gone is rejected; admins are not tenants and get -1.
func (d *Dataset) ActiveTenant(caller model.Identity) (int, error) {
	if caller.IsAdmin() {
		return -1, nil
	}
	i, ok := d.FindTenant(caller.ID)
	if !ok {
		return -1, fmt.Errorf("%w: tenant account %d no longer exists", model.ErrInvalidCredential, caller.ID)
	}
	return i, nil
}

// RoomNumbers maps tenant id to room number, for join enrichment.
func (d *Dataset) RoomNumbers() map[int64]string {
	rooms := make(map[int64]string, len(d.Tenants))
	for _, t := range d.Tenants {
		rooms[t.ID] = t.RoomNumber
	}
	return rooms
}
