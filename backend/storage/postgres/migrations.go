// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package postgres

import (
	"context"
	"fmt"
)

func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			password VARCHAR(255) NOT NULL,
			first_name VARCHAR(100) NOT NULL,
			last_name VARCHAR(100) NOT NULL,
			avatar TEXT,
			bio TEXT,
			institution VARCHAR(255),
			field_of_study VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			sender_id BIGINT NOT NULL REFERENCES users(id),
			receiver_id BIGINT NOT NULL REFERENCES users(id),
			content TEXT NOT NULL,
			message_type VARCHAR(50) NOT NULL DEFAULT 'text',
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// History lookups go through the pair in both directions
		`CREATE INDEX IF NOT EXISTS idx_messages_pair
		ON messages(sender_id, receiver_id, created_at)`,

		// Unread badge
		`CREATE INDEX IF NOT EXISTS idx_messages_unread
		ON messages(receiver_id)
		WHERE is_read = FALSE`,

		// One row per unordered pair of distinct users. Self-notes never get a row.
		`CREATE TABLE IF NOT EXISTS conversations (
			id BIGSERIAL PRIMARY KEY,
			user1_id BIGINT NOT NULL REFERENCES users(id),
			user2_id BIGINT NOT NULL REFERENCES users(id),
			last_message_id BIGINT REFERENCES messages(id),
			last_message_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT unique_conversation_pair UNIQUE (user1_id, user2_id),
			CONSTRAINT ordered_users CHECK (user1_id < user2_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_conversations_user2
		ON conversations(user2_id)`,
	}

	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	return nil
}
