// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package accounts

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/peerfusion/peerfusion/backend/apperrors"
	"github.com/peerfusion/peerfusion/backend/models"
	"github.com/peerfusion/peerfusion/backend/storage"
)

const DefaultBcryptCost = 12

type TokenIssuer interface {
	Issue(userID int64) (string, error)
}

// Service handles registration, login and profile edits.
type Service struct {
	users      storage.UserStore
	tokens     TokenIssuer
	bcryptCost int
	log        *zap.SugaredLogger
}

func NewService(users storage.UserStore, tokens TokenIssuer, bcryptCost int, log *zap.SugaredLogger) *Service {
	return &Service{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		log:        log,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.LastName == "" {
		return nil, apperrors.InvalidArg("all fields are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, apperrors.Internal("failed to register user", err)
	}

	user, err := s.users.CreateUser(ctx, models.NewUser{
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	})
	if errors.Is(err, storage.ErrDuplicateEmail) {
		return nil, apperrors.AlreadyExists("user already exists with this email")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to register user", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to register user", err)
	}

	s.log.Infow("user registered", "user_id", user.ID)
	return &models.AuthResponse{Message: "User registered successfully", Token: token, User: user}, nil
}

func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperrors.InvalidArg("email and password are required")
	}

	creds, err := s.users.GetCredentialsByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to login", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperrors.Unauthorized("invalid email or password")
	}

	user, err := s.users.GetUserByID(ctx, creds.UserID)
	if err != nil {
		return nil, apperrors.Internal("failed to login", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to login", err)
	}
	return &models.AuthResponse{Message: "Login successful", Token: token, User: user}, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, apperrors.InvalidArg("invalid user id")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to fetch user", err)
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id int64, update models.ProfileUpdate) (*models.User, error) {
	update.FirstName = strings.TrimSpace(update.FirstName)
	update.LastName = strings.TrimSpace(update.LastName)
	if update.FirstName == "" || update.LastName == "" {
		return nil, apperrors.InvalidArg("first name and last name are required")
	}

	user, err := s.users.UpdateProfile(ctx, id, update)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to update profile", err)
	}
	return user, nil
}
