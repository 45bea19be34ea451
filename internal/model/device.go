package model

import "time"

// Device is a robot, a central storage cabinet or a trolley.
type Device struct {
	ID                 int64      `gorm:"primaryKey"`
	SystemID           int64      `gorm:"index;not null"`
	Name               string     `gorm:"size:128;not null"`
	SerialNumber       string     `gorm:"uniqueIndex;size:64;not null"`
	Role               DeviceRole `gorm:"not null"`
	Active             bool       `gorm:"not null;default:true"`
	LocationsPerDrawer int        // trolley profile; 0 for robots and CSRs
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// Associations
	Containers []Container `gorm:"foreignKey:DeviceID"`
}

// Container is a drawer of a device.
type Container struct {
	ID           int64     `gorm:"primaryKey"`
	DeviceID     int64     `gorm:"index;not null"`
	Name         string    `gorm:"size:32;not null"`
	SerialNumber string    `gorm:"size:64;index"`
	Quadrant     int       `gorm:"not null"`
	Size         SizeClass `gorm:"not null"`
	Delicate     bool      `gorm:"not null;default:false"`
	Level        int       `gorm:"not null"`
	Capacity     int       `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Associations
	Device    Device     `gorm:"constraint:OnDelete:CASCADE"`
	Locations []Location `gorm:"foreignKey:ContainerID"`
}

// Location is one addressable slot inside a container.
type Location struct {
	ID          int64 `gorm:"primaryKey"`
	ContainerID int64 `gorm:"index;not null"`
	DeviceID    int64 `gorm:"index;not null"`
	Quadrant    int   `gorm:"not null"`
	Number      int   `gorm:"not null"`
	Disabled    bool  `gorm:"not null;default:false"`
}
