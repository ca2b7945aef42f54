package models

import "time"

// Flag is a user-defined inbox category. The sorting engine reads flags,
// never writes them; mutations go through the flags API only.
type Flag struct {
	ID          string    `json:"id" bson:"_id,omitempty"`
	Email       string    `json:"-" bson:"email"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description" bson:"description"`
	Color       string    `json:"color" bson:"color"`
	IsActive    bool      `json:"isActive" bson:"isActive"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// SaveFlagsRequest replaces the caller's whole flag set.
type SaveFlagsRequest struct {
	Flags []FlagInput `json:"flags" binding:"required"`
}

type FlagInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Color       string `json:"color"`
	IsActive    bool   `json:"isActive"`
}

// LabelMapping is one cached row of the flag-name -> Gmail-label-id mapping.
// At most one row per (email, flagName).
type LabelMapping struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	Email     string    `json:"-" bson:"email"`
	FlagName  string    `json:"flagName" bson:"flagName"`
	LabelID   string    `json:"labelId" bson:"labelId"`
	Color     string    `json:"color,omitempty" bson:"color,omitempty"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
