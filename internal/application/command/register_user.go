package command

import (
	"context"

	"github.com/skillmate/skillmate-core/internal/domain/user"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

// RegisterUserCommand syncs an identity-provider user into the local store.
type RegisterUserCommand struct {
	ID       string   `field:"id" validate:"required,max=128"`
	Username string   `field:"username" validate:"required,min=3,max=50"`
	Email    string   `field:"email" validate:"required,email,max=254"`
	Roles    []string `field:"roles" validate:"max=3"`
}

// RegisterUserHandler handles RegisterUserCommand.
type RegisterUserHandler struct {
	users user.Repository
	log   *logger.Logger
	now   Clock
}

// NewRegisterUserHandler creates a new RegisterUserHandler.
func NewRegisterUserHandler(users user.Repository, log *logger.Logger, clock Clock) *RegisterUserHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RegisterUserHandler{users: users, log: log, now: defaultClock(clock)}
}

// Handle executes the command. Duplicate usernames or emails fail with an
// AlreadyExists error.
func (h *RegisterUserHandler) Handle(ctx context.Context, cmd RegisterUserCommand) (*user.User, error) {
	if err := validateCommand("user", "Register", cmd); err != nil {
		return nil, err
	}
	u, err := user.NewUser(user.NewUserParams{
		ID:       cmd.ID,
		Username: cmd.Username,
		Email:    cmd.Email,
		Roles:    cmd.Roles,
		Now:      h.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := h.users.Create(ctx, u); err != nil {
		return nil, err
	}
	h.log.Info("user registered", logger.UserID(string(u.ID)))
	return u, nil
}
