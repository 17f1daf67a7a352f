package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"text/tabwriter"

	"github.com/vereinsportal/portal/internal/api"
	"github.com/vereinsportal/portal/internal/domain"
)

// userAdmin is the storage used by the user bootstrap flags
type userAdmin interface {
	CreateUser(u *domain.User) error
	GetUserByUsername(username string) (*domain.User, error)
	ListUsers() ([]*domain.User, error)
	UpdateUserRole(id int64, role domain.UserRole) error
	DeleteUser(id int64) error
}

var errUnknownUser = errors.New("unknown user")

type userFlags struct {
	add     string
	setRole string
	del     string
	list    bool
}

func (f userFlags) any() bool {
	return f.add != "" || f.setRole != "" || f.del != "" || f.list
}

// run executes the first user command that was given
func (f userFlags) run(store userAdmin, out io.Writer) error {
	switch {
	case f.add != "":
		return createUser(store, f.add)
	case f.setRole != "":
		return changeRole(store, f.setRole)
	case f.del != "":
		return deleteUser(store, f.del)
	case f.list:
		return printUsers(store, out)
	}
	return nil
}

func parseRole(s string) (domain.UserRole, error) {
	role := domain.UserRole(s)
	if !domain.ValidRole(role) {
		return "", fmt.Errorf("unknown role %q (admin, member, guest)", s)
	}
	return role, nil
}

func findUser(store userAdmin, name string) (*domain.User, error) {
	u, err := store.GetUserByUsername(name)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %s", errUnknownUser, name)
	}
	return u, nil
}

// createUser handles -adduser name:password:role
func createUser(store userAdmin, arg string) error {
	parts := strings.SplitN(arg, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("expected name:password:role")
	}

	role, err := parseRole(parts[2])
	if err != nil {
		return err
	}

	hash, err := api.HashPassword(parts[1])
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{Username: parts[0], PasswordHash: hash, Role: role}
	if err := store.CreateUser(user); err != nil {
		return err
	}

	log.Printf("User %s created with role %s", user.Username, user.Role)
	return nil
}

// changeRole handles -setrole name:role
func changeRole(store userAdmin, arg string) error {
	name, roleName, ok := strings.Cut(arg, ":")
	if !ok || name == "" {
		return fmt.Errorf("expected name:role")
	}

	role, err := parseRole(roleName)
	if err != nil {
		return err
	}

	u, err := findUser(store, name)
	if err != nil {
		return err
	}
	if err := store.UpdateUserRole(u.ID, role); err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	log.Printf("User %s now has role %s", name, role)
	return nil
}

func deleteUser(store userAdmin, name string) error {
	u, err := findUser(store, name)
	if err != nil {
		return err
	}
	if err := store.DeleteUser(u.ID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	log.Printf("User %s deleted", name)
	return nil
}

func printUsers(store userAdmin, out io.Writer) error {
	users, err := store.ListUsers()
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tROLE\tCREATED")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, u.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}
