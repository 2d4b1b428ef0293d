// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "time"

// User is the public profile of an account. The password hash never leaves storage.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Avatar       *string   `json:"avatar,omitempty" db:"avatar"`
	Bio          *string   `json:"bio,omitempty" db:"bio"`
	Institution  *string   `json:"institution,omitempty" db:"institution"`
	FieldOfStudy *string   `json:"field_of_study,omitempty" db:"field_of_study"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Credentials is what login needs from storage.
type Credentials struct {
	UserID       int64
	PasswordHash string
}

type NewUser struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

type ProfileUpdate struct {
	FirstName    string  `json:"first_name" validate:"required"`
	LastName     string  `json:"last_name" validate:"required"`
	Bio          *string `json:"bio"`
	Institution  *string `json:"institution"`
	FieldOfStudy *string `json:"field_of_study"`
	Avatar       *string `json:"avatar"`
}

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    *User  `json:"user"`
}
