package mlc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize/english"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/miyoyo/CTFd-BetterPlugins/instrumentation"
	"github.com/miyoyo/CTFd-BetterPlugins/providers"
	"github.com/miyoyo/CTFd-BetterPlugins/settings"
	"github.com/miyoyo/CTFd-BetterPlugins/storage"
)

// provision resolves the profile to a local user. Each store call commits
// before the next one reads.
func (p *Provider) provision(ctx context.Context, profile *providers.Profile) (*storage.User, error) {
	ctx, span := p.startSpan(ctx, "mlc.provision")
	defer span.End()

	user, err := p.store.GetUserByEmail(ctx, profile.Email)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		user, err = p.registerUser(ctx, profile)
		if err != nil {
			return nil, err
		}
		instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrUserCreated, true))
	case err != nil:
		return nil, fmt.Errorf("look up user by email: %w", err)
	}

	teams, err := p.settings.TeamsMode(ctx)
	if err != nil {
		return nil, err
	}
	mode := settings.UserModeUsers
	if teams {
		mode = settings.UserModeTeams
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrUserMode, mode))
	if teams && user.TeamID == nil {
		if err := p.joinTeam(ctx, user, profile); err != nil {
			return nil, err
		}
		instrumentation.SetSpanAttributes(span,
			attribute.Bool(instrumentation.AttrTeamAdmitted, true),
			attribute.Int64(instrumentation.AttrTeamID, *user.TeamID),
		)
	}

	if !user.Linked() {
		if err := p.linkUser(ctx, user, profile.ID); err != nil {
			return nil, err
		}
		instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrUserLinked, true))
	} else if user.OAuthID != profile.ID {
		p.logger.Warn("Email matched a user linked to another MLC account",
			"user_id", user.ID)
	}

	instrumentation.SetSpanSuccess(span)
	return user, nil
}

// registerUser creates a verified user for an email seen for the first time.
func (p *Provider) registerUser(ctx context.Context, profile *providers.Profile) (*storage.User, error) {
	public, err := p.settings.PublicRegistration(ctx)
	if err != nil {
		return nil, err
	}
	if !public {
		allowed, err := p.CanLogin(ctx)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, providers.NewError(providers.KindRegistrationDisabled, msgRegistrationClosed, nil)
		}
	}

	limit, err := p.limit(ctx, settings.KeyNumUsers)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		count, err := p.store.CountActiveUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("count users: %w", err)
		}
		if count >= limit {
			return nil, providers.NewError(providers.KindUserLimit, fmt.Sprintf(msgUserLimitFormat, limit), nil)
		}
	}

	user := &storage.User{
		Name:     displayName(profile),
		Email:    profile.Email,
		OAuthID:  profile.ID,
		Verified: true,
	}
	if err := p.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	p.logger.Info("Provisioned user", "user_id", user.ID)
	p.auditor.LogUserProvisioned(providerName, user.ID)
	if p.instrumentation != nil {
		p.instrumentation.Metrics().RecordUserProvisioned(ctx, providerName)
	}
	return user, nil
}

// joinTeam places the user on the team MLC reports, founding it when it has
// no local record yet.
func (p *Provider) joinTeam(ctx context.Context, user *storage.User, profile *providers.Profile) error {
	if profile.Team == nil {
		return providers.NewError(providers.KindProfile, msgProfileFailure,
			fmt.Errorf(msgProfileMissingClaim, "team"))
	}

	team, err := p.store.GetTeamByOAuthID(ctx, profile.Team.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		team, err = p.createTeam(ctx, user, profile.Team)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("look up team: %w", err)
	}

	size, err := p.limit(ctx, settings.KeyTeamSize)
	if err != nil {
		return err
	}
	if size > 0 {
		members, err := p.store.CountTeamMembers(ctx, team.ID)
		if err != nil {
			return fmt.Errorf("count team members: %w", err)
		}
		if members >= size {
			return providers.NewError(providers.KindTeamFull,
				fmt.Sprintf(msgTeamFullFormat, english.Plural(size, "member", "")), nil)
		}
	}

	if err := p.store.AddTeamMember(ctx, team.ID, user.ID); err != nil {
		return fmt.Errorf("add team member: %w", err)
	}
	teamID := team.ID
	user.TeamID = &teamID

	p.logger.Info("User joined team", "user_id", user.ID, "team_id", team.ID)
	p.auditor.LogTeamJoined(providerName, team.ID, user.ID)
	if p.instrumentation != nil {
		p.instrumentation.Metrics().RecordTeamMemberAdmitted(ctx, providerName)
	}
	return nil
}

func (p *Provider) createTeam(ctx context.Context, captain *storage.User, claim *providers.TeamClaim) (*storage.Team, error) {
	limit, err := p.limit(ctx, settings.KeyNumTeams)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		count, err := p.store.CountActiveTeams(ctx)
		if err != nil {
			return nil, fmt.Errorf("count teams: %w", err)
		}
		if count >= limit {
			return nil, providers.NewError(providers.KindTeamLimit, fmt.Sprintf(msgTeamLimitFormat, limit), nil)
		}
	}

	name := claim.Name
	if name == "" {
		name = "Team " + claim.ID
	}
	team := &storage.Team{
		Name:      name,
		OAuthID:   claim.ID,
		CaptainID: captain.ID,
	}
	if err := p.store.CreateTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}
	if err := p.sessions.ClearTeamSession(ctx, team.ID); err != nil {
		return nil, fmt.Errorf("clear team session: %w", err)
	}
	instrumentation.SetSpanAttributes(trace.SpanFromContext(ctx), attribute.Bool(instrumentation.AttrTeamCreated, true))

	p.logger.Info("Provisioned team", "team_id", team.ID, "captain_id", captain.ID)
	p.auditor.LogTeamProvisioned(providerName, team.ID, captain.ID)
	if p.instrumentation != nil {
		p.instrumentation.Metrics().RecordTeamProvisioned(ctx, providerName)
	}
	return team, nil
}

// linkUser attaches the MLC subject id to an existing, never-linked user.
func (p *Provider) linkUser(ctx context.Context, user *storage.User, oauthID string) error {
	if err := p.store.LinkUser(ctx, user.ID, oauthID); err != nil {
		return fmt.Errorf("link user: %w", err)
	}
	user.OAuthID = oauthID
	user.Verified = true

	if err := p.sessions.ClearUserSession(ctx, user.ID); err != nil {
		return fmt.Errorf("clear user session: %w", err)
	}

	p.logger.Info("Linked user", "user_id", user.ID)
	p.auditor.LogUserLinked(providerName, user.ID)
	if p.instrumentation != nil {
		p.instrumentation.Metrics().RecordUserLinked(ctx, providerName)
	}
	return nil
}

// limit reads a numeric limit; a malformed value is a configuration failure.
func (p *Provider) limit(ctx context.Context, key string) (int, error) {
	n, err := p.settings.Limit(ctx, key)
	if err != nil {
		return 0, providers.NewError(providers.KindConfiguration, msgNotConfigured, err)
	}
	return n, nil
}

func displayName(profile *providers.Profile) string {
	if profile.Name != "" {
		return profile.Name
	}
	local, _, _ := strings.Cut(profile.Email, "@")
	return local
}
