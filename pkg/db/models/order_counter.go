package models

// OrderCounter is the per-year order number sequence. Allocation happens with
// a single atomic upsert so concurrent order creation can never hand out the
// same number twice.
type OrderCounter struct {
	Year  int   `gorm:"column:year;primaryKey"`
	Value int64 `gorm:"column:value;not null;default:0"`
}
