package scheduler

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PropertyAsset is a depreciable improvement tracked for the monthly
// straight-line schedule.
type PropertyAsset struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	OrgID             snowflake.ID `gorm:"not null;index"`
	PropertyID        snowflake.ID `gorm:"not null;index"`
	Name              string       `gorm:"type:text;not null"`
	Cost              int64        `gorm:"not null"`
	SalvageValue      int64        `gorm:"not null;default:0"`
	UsefulLifeMonths  int          `gorm:"not null"`
	MonthsDepreciated int          `gorm:"not null;default:0"`
	InServiceDate     time.Time    `gorm:"not null"`
	Active            bool         `gorm:"not null;default:true"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PropertyAsset) TableName() string { return "property_assets" }

// MonthlyAmount is the straight-line charge for the asset's next period.
// The final month absorbs the division remainder so the schedule always
// writes off exactly cost minus salvage.
func (a PropertyAsset) MonthlyAmount() int64 {
	base := a.Cost - a.SalvageValue
	if base <= 0 || a.UsefulLifeMonths <= 0 {
		return 0
	}
	monthly := base / int64(a.UsefulLifeMonths)
	if a.MonthsDepreciated == a.UsefulLifeMonths-1 {
		return base - monthly*int64(a.UsefulLifeMonths-1)
	}
	return monthly
}

// NextChargeDate is when the asset's next monthly charge falls due.
func (a PropertyAsset) NextChargeDate() time.Time {
	return a.InServiceDate.AddDate(0, a.MonthsDepreciated+1, 0)
}

// FullyDepreciated reports whether the schedule has run its course.
func (a PropertyAsset) FullyDepreciated() bool {
	return a.MonthsDepreciated >= a.UsefulLifeMonths
}
