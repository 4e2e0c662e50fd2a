package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/mlaanderson/budget-v3/internal/graph"
	"github.com/mlaanderson/budget-v3/internal/pool"
)

// ErrUserExists reports a registration against an email already in use.
var ErrUserExists = errors.New("user already exists")

// UserRecord is the caller-visible shape of a user. The credential hash is
// stored on the node but never decoded back out.
type UserRecord struct {
	Email string
	Name  string
}

// Users manages user records over one pooled session. Users are created by
// registration and read-only thereafter; credential hashing happens outside
// this package, which only ever sees the hash.
type Users struct {
	sess *pool.Session
}

// NewUsers acquires a session for user operations.
func NewUsers(ctx context.Context, p *pool.Pool) (*Users, error) {
	sess, err := p.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	return &Users{sess: sess}, nil
}

// Create registers a new user. Fails with ErrUserExists when the email is
// already taken.
func (u *Users) Create(ctx context.Context, email, credentialHash, name string) (UserRecord, error) {
	record, err := u.sess.Create(ctx, graph.Create{
		Node: graph.Node{
			Label: graph.LabelUser,
			Props: graph.Props{
				"email":    email,
				"name":     name,
				"password": credentialHash,
			},
		},
	})
	if err != nil {
		if errors.Is(err, graph.ErrConstraintViolation) {
			return UserRecord{}, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return UserRecord{}, fmt.Errorf("create user: %w", err)
	}
	return decodeUser(record)
}

// Get returns the user with the given email, or ErrNotFound.
func (u *Users) Get(ctx context.Context, email string) (UserRecord, error) {
	records, err := u.sess.Find(ctx, graph.Query{
		Node: graph.Node{Label: graph.LabelUser, Props: graph.Props{"email": email}},
	})
	if err != nil {
		return UserRecord{}, fmt.Errorf("get user: %w", err)
	}
	if len(records) == 0 {
		return UserRecord{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return decodeUser(records[0])
}

// Login returns the user matching both email and credential hash, or
// ErrNotFound when either does not match.
func (u *Users) Login(ctx context.Context, email, credentialHash string) (UserRecord, error) {
	records, err := u.sess.Find(ctx, graph.Query{
		Node: graph.Node{Label: graph.LabelUser, Props: graph.Props{
			"email":    email,
			"password": credentialHash,
		}},
	})
	if err != nil {
		return UserRecord{}, fmt.Errorf("login: %w", err)
	}
	if len(records) == 0 {
		return UserRecord{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return decodeUser(records[0])
}

// BudgetNames lists the names of the budgets owned by a user.
func (u *Users) BudgetNames(ctx context.Context, email string) ([]string, error) {
	records, err := u.sess.Find(ctx, graph.Query{
		Node: graph.Node{Label: graph.LabelBudget},
		Rels: []graph.Rel{{
			Type:      graph.RelOwner,
			Direction: graph.Outgoing,
			Peer:      graph.Node{Label: graph.LabelUser, Props: graph.Props{"email": email}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	names := make([]string, 0, len(records))
	for _, rec := range records {
		name, err := rec.String("name")
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// Close releases the session back to the pool.
func (u *Users) Close(ctx context.Context) error {
	return u.sess.Close(ctx)
}

func decodeUser(rec graph.Record) (UserRecord, error) {
	email, err := rec.String("email")
	if err != nil {
		return UserRecord{}, fmt.Errorf("decode user: %w", err)
	}
	name, err := rec.String("name")
	if err != nil {
		return UserRecord{}, fmt.Errorf("decode user: %w", err)
	}
	return UserRecord{Email: email, Name: name}, nil
}
