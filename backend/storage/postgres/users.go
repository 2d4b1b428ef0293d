// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/peerfusion/peerfusion/backend/models"
	"github.com/peerfusion/peerfusion/backend/storage"
)

const userColumns = `id, email, first_name, last_name, avatar, bio, institution, field_of_study, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user                                   models.User
		avatar, bio, institution, fieldOfStudy sql.NullString
	)
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName,
		&avatar, &bio, &institution, &fieldOfStudy, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	user.Avatar = nullableString(avatar)
	user.Bio = nullableString(bio)
	user.Institution = nullableString(institution)
	user.FieldOfStudy = nullableString(fieldOfStudy)
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, newUser models.NewUser) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		newUser.Email, newUser.PasswordHash, newUser.FirstName, newUser.LastName)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return user, nil
}

func (s *Store) GetCredentialsByEmail(ctx context.Context, email string) (*models.Credentials, error) {
	var creds models.Credentials
	err := s.db.QueryRowContext(ctx, `SELECT id, password FROM users WHERE email = $1`, email).
		Scan(&creds.UserID, &creds.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	return &creds, nil
}

// UpdateProfile overwrites the name and optional profile fields. A nil avatar
// keeps the stored one.
func (s *Store) UpdateProfile(ctx context.Context, id int64, update models.ProfileUpdate) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET first_name = $1,
			last_name = $2,
			bio = $3,
			institution = $4,
			field_of_study = $5,
			avatar = COALESCE($6, avatar)
		WHERE id = $7
		RETURNING `+userColumns,
		update.FirstName, update.LastName, update.Bio, update.Institution,
		update.FieldOfStudy, update.Avatar, id)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile for user %d: %w", id, err)
	}
	return user, nil
}
