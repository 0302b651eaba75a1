package main

import (
	"context"
	"flag"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"

	"github.com/rollbook/rollbook-api/pkg/config"
	"github.com/rollbook/rollbook-api/pkg/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT,
    role TEXT NOT NULL CHECK (role IN ('ADMIN', 'TEACHER')),
    secret_hash TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    last_login TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS students (
    id UUID PRIMARY KEY,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    sex TEXT NOT NULL CHECK (sex IN ('MALE', 'FEMALE')),
    grade INTEGER NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_by_user_id UUID,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS attendance_records (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id),
    date TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('PRESENT', 'ABSENT', 'LATE', 'EXCUSED')),
    reason TEXT,
    student_name TEXT NOT NULL,
    recorded_by_user_id UUID NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (student_id, date)
);

CREATE TABLE IF NOT EXISTS log_entries (
    id UUID PRIMARY KEY,
    user_id UUID,
    action TEXT NOT NULL,
    entity_type TEXT,
    entity_id TEXT,
    before JSONB,
    after JSONB,
    ip_address TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS grades (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    number INTEGER NOT NULL,
    teacher_id UUID NOT NULL REFERENCES users(id),
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id),
    token TEXT NOT NULL UNIQUE,
    expires_at TIMESTAMPTZ NOT NULL,
    revoked BOOLEAN NOT NULL DEFAULT FALSE,
    revoked_at TIMESTAMPTZ,
    ip_address TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_attendance_student_date ON attendance_records (student_id, date);
CREATE INDEX IF NOT EXISTS idx_attendance_recorder ON attendance_records (recorded_by_user_id);
CREATE INDEX IF NOT EXISTS idx_log_entries_user ON log_entries (user_id);
CREATE INDEX IF NOT EXISTS idx_log_entries_action ON log_entries (action);
CREATE INDEX IF NOT EXISTS idx_grades_teacher ON grades (teacher_id);
`

// Applies the schema and bootstraps the first admin account so the API has
// something to log into on a fresh database.
func main() {
	var (
		adminName     string
		adminPassword string
	)
	flag.StringVar(&adminName, "admin-name", "Administrator", "Name for the bootstrap admin account")
	flag.StringVar(&adminPassword, "admin-password", "", "Password for the bootstrap admin account (required)")
	flag.Parse()

	if adminPassword == "" {
		log.Fatal("-admin-password is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	var admins int
	if err := db.GetContext(ctx, &admins, `SELECT COUNT(*) FROM users WHERE role = 'ADMIN' AND active = TRUE`); err != nil {
		log.Fatalf("failed to count admins: %v", err)
	}
	if admins > 0 {
		log.Println("schema applied; active admin already present, nothing to seed")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash admin password: %v", err)
	}

	const insert = `INSERT INTO users (id, name, role, secret_hash, active, created_at, updated_at)
        VALUES ($1, $2, 'ADMIN', $3, TRUE, NOW(), NOW())`
	id := uuid.NewString()
	if _, err := db.ExecContext(ctx, insert, id, adminName, string(hash)); err != nil {
		log.Fatalf("failed to create admin: %v", err)
	}

	log.Printf("schema applied; admin account created (id %s)", id)
}
