package models

import "time"

// Profile defaults applied on registration.
const (
	DefaultPhoto = "https://i.ibb.co/4pDNDk1/avatar.png"
	DefaultPhone = "+234"
	DefaultBio   = "bio"
)

// User represents a registered account. Password always holds a bcrypt hash.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)" bson:"_id"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null" bson:"name"`
	Email     string    `json:"email" gorm:"uniqueIndex;type:varchar(255);not null" bson:"email"`
	Password  string    `json:"-" gorm:"type:varchar(255);not null" bson:"password"` // never serialized
	Photo     string    `json:"photo" gorm:"type:varchar(512)" bson:"photo"`
	Phone     string    `json:"phone" gorm:"type:varchar(32)" bson:"phone"`
	Bio       string    `json:"bio" gorm:"type:varchar(250)" bson:"bio"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// ApplyDefaults fills the optional profile fields that were left empty.
func (u *User) ApplyDefaults() {
	if u.Photo == "" {
		u.Photo = DefaultPhoto
	}
	if u.Phone == "" {
		u.Phone = DefaultPhone
	}
	if u.Bio == "" {
		u.Bio = DefaultBio
	}
}

// UserResponse is the public view of a user returned by the API.
type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Photo string `json:"photo"`
	Phone string `json:"phone"`
	Bio   string `json:"bio"`
	Token string `json:"token,omitempty"`
}

// Profile returns the public fields of u.
func (u *User) Profile() UserResponse {
	return UserResponse{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Photo: u.Photo,
		Phone: u.Phone,
		Bio:   u.Bio,
	}
}
