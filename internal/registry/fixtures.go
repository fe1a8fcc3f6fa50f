package registry

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Package fleet is inlined here rather than split into its own package: the
// two fixtures below exist purely to exercise the registry's round-trip,
// idempotence and unique-fallback invariants against testable shapes, not to
// offer a CRUD surface for driver/workstation data.

// Workstation is the UUID-keyed, scalar-only reference fixture.
type Workstation struct {
	ID       uuid.UUID `json:"id" sync:"pk"`
	Name     string    `json:"name" sync:"scalar,unique"`
	Timezone string    `json:"timezone" sync:"scalar"`
}

// Driver is the int-keyed reference fixture exercising the scalar, datetime,
// decimal, foreign-reference (to Workstation) and embedded-file field kinds.
type Driver struct {
	ID             int64           `json:"id" sync:"pk"`
	FullName       string          `json:"full_name" sync:"scalar"`
	License        string          `json:"license" sync:"scalar,unique"`
	HiredAt        time.Time       `json:"hired_at" sync:"datetime"`
	HourlyRate     decimal.Decimal `json:"hourly_rate" sync:"decimal"`
	HomeWorkstation string         `json:"home_workstation" sync:"fk=workstation"`
	HomeWorkstationID uuid.UUID    `json:"-"`
	Photo          File            `json:"photo" sync:"file"`
}

// RegisterFixtures registers the driver and workstation demo entities into
// r, with fileURL used to build pulled-context file URLs for Driver.Photo.
func RegisterFixtures(r *Registry, fileURL func(filename string) string) {
	r.Register(Describe[Workstation]("workstation", PKUUID, fileURL))
	r.Register(Describe[Driver]("driver", PKInt, fileURL))
	r.WireForeignKeys()
}
