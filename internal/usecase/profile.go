package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/core/port"
	"github.com/nnh2x/hemidi-authen/internal/repository"
)

// ErrProfileForbidden is returned when a non-admin touches someone else's profile.
var ErrProfileForbidden = fmt.Errorf("%w: cannot update another user's profile", domain.ErrForbidden)

// GetProfile returns the public view of userID.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (domain.UserPublicView, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return domain.UserPublicView{}, err
	}
	return user.PublicView(), nil
}

// UpdateProfile applies update to targetID on behalf of actor. Non-admins may only
// change their own password; identity and role fields are dropped for them.
func (s *AuthService) UpdateProfile(ctx context.Context, targetID string, update domain.ProfileUpdate, actor domain.User) (view domain.UserPublicView, err error) {
	ctx, span := s.startSpan(ctx, "UpdateProfile")
	defer func() { s.finish(span, "update_profile", err) }()

	if actor.ID != targetID && !actor.IsAdmin {
		return domain.UserPublicView{}, ErrProfileForbidden
	}
	if !actor.IsAdmin {
		update = update.StripPrivileged()
	}

	user, err := s.loadUser(ctx, targetID)
	if err != nil {
		return domain.UserPublicView{}, err
	}
	if update.Empty() {
		return user.PublicView(), nil
	}

	var changed []string
	renamed := false

	if update.UserName != nil {
		name := strings.TrimSpace(*update.UserName)
		if name == "" {
			return domain.UserPublicView{}, fmt.Errorf("%w: userName must not be empty", domain.ErrInvalidInput)
		}
		if name != user.UserName {
			user.UserName = name
			changed = append(changed, "userName")
			renamed = true
		}
	}
	if update.UserCode != nil {
		code := strings.TrimSpace(*update.UserCode)
		if len(code) < s.minCodeLength {
			return domain.UserPublicView{}, fmt.Errorf("%w: userCode must be at least %d characters", domain.ErrInvalidInput, s.minCodeLength)
		}
		if code != user.UserCode {
			user.UserCode = code
			changed = append(changed, "userCode")
			renamed = true
		}
	}
	if update.IsAdmin != nil && *update.IsAdmin != user.IsAdmin {
		user.IsAdmin = *update.IsAdmin
		changed = append(changed, "isAdmin")
	}

	passwordChanged := false
	if update.NewPassword != nil {
		if err := s.policy.Validate(*update.NewPassword, user.UserName, user.UserCode); err != nil {
			return domain.UserPublicView{}, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
		}
		hash, err := s.hasher.Hash(*update.NewPassword)
		if err != nil {
			return domain.UserPublicView{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
		passwordChanged = true
	}

	if len(changed) == 0 && !passwordChanged {
		return user.PublicView(), nil
	}

	if renamed {
		other, err := s.users.FindByNameAndCode(ctx, user.UserName, user.UserCode)
		switch {
		case err == nil && other != nil && other.ID != user.ID:
			return domain.UserPublicView{}, ErrUserExists
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return domain.UserPublicView{}, domain.Unavailable(fmt.Errorf("lookup user: %w", err))
		}
	}

	now := s.now()
	user.UpdatedAt = now
	if err := s.users.Save(ctx, *user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return domain.UserPublicView{}, ErrUserExists
		case errors.Is(err, repository.ErrNotFound):
			return domain.UserPublicView{}, ErrUserNotFound
		default:
			return domain.UserPublicView{}, domain.Unavailable(fmt.Errorf("save user: %w", err))
		}
	}

	s.publish(ctx, domain.EventUserProfileUpdated, func(ctx context.Context, events port.EventPublisher) error {
		return events.PublishUserProfileUpdated(ctx, domain.UserProfileUpdatedEvent{
			UserID:          user.ID,
			UpdatedBy:       actor.ID,
			ChangedFields:   changed,
			PasswordChanged: passwordChanged,
			UpdatedAt:       now,
		})
	})

	return user.PublicView(), nil
}

func (s *AuthService) loadUser(ctx context.Context, userID string) (*domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, domain.Unavailable(fmt.Errorf("lookup user: %w", err))
	}
	return user, nil
}
