package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/canteenhq/canteen"
)

// User is one identity record. StudentID is the principal identifier used
// as the token subject.
type User struct {
	ID             canteen.UUID
	StudentID      string
	Email          string
	HashedPassword string
	FullName       string
	IsAdmin        bool
	IsActive       bool
	CreatedAt      time.Time
}

type userRepository struct{}

// NewUserRepository manages the users table and its email uniqueness lookup.
func NewUserRepository() *userRepository {
	return &userRepository{}
}

// Get reads one user by principal identifier. found=false when unknown.
func (r *userRepository) Get(ctx context.Context, studentID string) (bool, User, error) {
	if connection == nil {
		return false, User{}, fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	selectStatement := fmt.Sprintf("SELECT id, email, hashed_password, full_name, is_admin, is_active, created_at FROM %s.users WHERE student_id = ?;", connection.Config.Keyspace)
	u := User{StudentID: studentID}
	var id gocql.UUID
	err := connection.Session.Query(selectStatement, studentID).WithContext(ctx).
		Scan(&id, &u.Email, &u.HashedPassword, &u.FullName, &u.IsAdmin, &u.IsActive, &u.CreatedAt)
	if err == gocql.ErrNotFound {
		return false, User{}, nil
	}
	if err != nil {
		return false, User{}, err
	}
	u.ID = canteen.UUID(id)
	return true, u, nil
}

// EmailTaken reports whether another account already registered the email.
func (r *userRepository) EmailTaken(ctx context.Context, email string) (bool, error) {
	if connection == nil {
		return false, fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	selectStatement := fmt.Sprintf("SELECT student_id FROM %s.users_by_email WHERE email = ?;", connection.Config.Keyspace)
	var owner string
	err := connection.Session.Query(selectStatement, email).WithContext(ctx).Scan(&owner)
	if err == gocql.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Add persists a new user and claims their email.
func (r *userRepository) Add(ctx context.Context, u User) error {
	if connection == nil {
		return fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	insertStatement := fmt.Sprintf("INSERT INTO %s.users (student_id, id, email, hashed_password, full_name, is_admin, is_active, created_at) VALUES(?,?,?,?,?,?,?,?);", connection.Config.Keyspace)
	if err := connection.Session.Query(insertStatement,
		u.StudentID, gocql.UUID(u.ID), u.Email, u.HashedPassword, u.FullName, u.IsAdmin, u.IsActive, time.Now().UTC()).WithContext(ctx).
		Exec(); err != nil {
		return err
	}
	emailStatement := fmt.Sprintf("INSERT INTO %s.users_by_email (email, student_id) VALUES(?,?);", connection.Config.Keyspace)
	return connection.Session.Query(emailStatement, u.Email, u.StudentID).WithContext(ctx).Exec()
}

// UpdatePassword stores a new password hash for the user.
func (r *userRepository) UpdatePassword(ctx context.Context, studentID string, hashed string) error {
	if connection == nil {
		return fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	updateStatement := fmt.Sprintf("UPDATE %s.users SET hashed_password = ? WHERE student_id = ?;", connection.Config.Keyspace)
	return connection.Session.Query(updateStatement, hashed, studentID).WithContext(ctx).Exec()
}
