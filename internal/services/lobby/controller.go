package lobby

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/partygate/internal/dependencies/clock"
	"github.com/mcoot/partygate/internal/dependencies/random"
	"github.com/mcoot/partygate/internal/model"
	"github.com/mcoot/partygate/internal/services/lifecycle"
	"github.com/mcoot/partygate/internal/services/token"
	"github.com/mcoot/partygate/internal/services/verify"
	"github.com/mcoot/partygate/internal/storage"
)

const (
	// LobbyCodeLength is the length of generated lobby codes
	LobbyCodeLength = 6
	// LobbyCodeAlphabet is the characters used in lobby codes (avoid confusing chars)
	LobbyCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	maxCodeAttempts = 10
)

// Config holds the lobby controller settings shared by every lobby
type Config struct {
	MaxNameLength int
	PasscodeCost  int

	Methods            []verify.Method
	ReservationTimeout time.Duration
	ChannelTimeout     time.Duration
	ReconnectTimeout   time.Duration

	// Bounds storage calls made from lifecycle callbacks, which have no request context
	StorageTimeout time.Duration
}

// DefaultConfig returns the default controller configuration
func DefaultConfig() Config {
	lc := lifecycle.DefaultConfig("")
	return Config{
		MaxNameLength:      20,
		PasscodeCost:       bcrypt.DefaultCost,
		Methods:            lc.Methods,
		ReservationTimeout: lc.ReservationTimeout,
		ChannelTimeout:     lc.ChannelTimeout,
		ReconnectTimeout:   lc.ReconnectTimeout,
		StorageTimeout:     5 * time.Second,
	}
}

// EventPublisher delivers lobby events to listeners
type EventPublisher interface {
	Publish(ev model.Event)
	CloseLobby(code model.LobbyCode)
}

// JoinTicket is handed to a player whose join request reserved a slot
type JoinTicket struct {
	Token       string
	DisplayName string
	GameCode    model.LobbyCode
}

// Controller runs lobbies: it owns one lifecycle manager per lobby and keeps
// the persisted member list in step with the managers' callbacks.
type Controller struct {
	cfg       Config
	storage   storage.Storage
	tokens    *token.Manager
	publisher EventPublisher
	clock     clock.Clock
	random    random.Random
	logger    *slog.Logger

	// mu guards managers. It may be held while taking lobbyMu, never the reverse.
	mu       sync.Mutex
	managers map[model.LobbyCode]*lifecycle.Manager

	// lobbyMu serialises read-modify-write of stored lobbies
	lobbyMu sync.Mutex
}

// NewController creates a new lobby Controller
func NewController(
	cfg Config,
	storage storage.Storage,
	tokens *token.Manager,
	publisher EventPublisher,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		cfg:       cfg,
		storage:   storage,
		tokens:    tokens,
		publisher: publisher,
		clock:     clock,
		random:    random,
		logger:    logger.With(slog.String("component", "lobby")),
		managers:  make(map[model.LobbyCode]*lifecycle.Manager),
	}
}

// CreateLobby creates a new empty lobby. An empty passcode leaves it open.
func (c *Controller) CreateLobby(ctx context.Context, cfg model.LobbyConfig, passcode string) (*model.Lobby, error) {
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = model.DefaultLobbyConfig().MaxPlayers
	}

	code, err := c.newCode(ctx)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	lobby := &model.Lobby{
		Code:      code,
		State:     model.LobbyStateWaiting,
		Config:    cfg,
		Members:   []model.LobbyMember{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if passcode != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(passcode), c.cfg.PasscodeCost)
		if err != nil {
			return nil, fmt.Errorf("hash passcode: %w", err)
		}
		lobby.PasscodeHash = string(hash)
	}

	if err := c.storage.SaveLobby(ctx, lobby); err != nil {
		return nil, err
	}

	c.logger.Info("lobby created",
		slog.String("lobby", string(code)),
		slog.Int("max_players", cfg.MaxPlayers),
		slog.Bool("passcode", lobby.HasPasscode()))
	return lobby, nil
}

func (c *Controller) newCode(ctx context.Context) (model.LobbyCode, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := model.LobbyCode(c.random.String(LobbyCodeLength, LobbyCodeAlphabet))
		if code == "" {
			continue
		}
		exists, err := c.storage.LobbyExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("could not generate an unused lobby code")
}

// GetLobby retrieves a lobby by code
func (c *Controller) GetLobby(ctx context.Context, code model.LobbyCode) (*model.Lobby, error) {
	return c.storage.GetLobby(ctx, code)
}

// ListLobbies returns the codes of every stored lobby
func (c *Controller) ListLobbies(ctx context.Context) ([]model.LobbyCode, error) {
	return c.storage.ListLobbies(ctx)
}

// Join validates a join request and reserves a connection slot for it.
// The player becomes a lobby member only once its channel verifies.
func (c *Controller) Join(ctx context.Context, code model.LobbyCode, displayName, passcode, address string) (*JoinTicket, error) {
	displayName = strings.TrimSpace(displayName)
	if n := utf8.RuneCountInString(displayName); n == 0 || n > c.cfg.MaxNameLength {
		return nil, model.ErrInvalidName
	}

	lobby, err := c.storage.GetLobby(ctx, code)
	if err != nil {
		return nil, err
	}

	if lobby.HasPasscode() {
		if err := bcrypt.CompareHashAndPassword([]byte(lobby.PasscodeHash), []byte(passcode)); err != nil {
			return nil, model.ErrWrongPasscode
		}
	}

	mgr, err := c.Manager(ctx, code)
	if err != nil {
		return nil, err
	}

	if lobby.GetMember(displayName) != nil {
		// A disconnected member rejoining from its own address gets a fresh
		// token for the reconnect; its session keeps its slot.
		s, ok := mgr.Session(displayName)
		if !ok || s.Connected || s.Address != address {
			return nil, model.ErrNameTaken
		}
		return c.ticket(displayName, code)
	}

	if mgr.Stats().Live() >= lobby.Config.MaxPlayers {
		return nil, model.ErrLobbyFull
	}

	ticket, err := c.ticket(displayName, code)
	if err != nil {
		return nil, err
	}

	reserved := mgr.Reserve(displayName, ticket.Token, address,
		lifecycle.WithReconnects(lobby.Config.AllowReconnects),
		lifecycle.WithCapacity(lobby.Config.MaxPlayers))
	if !reserved {
		// Another join may have taken the last slot since the check above
		if mgr.Stats().Live() >= lobby.Config.MaxPlayers {
			return nil, model.ErrLobbyFull
		}
		return nil, model.ErrNameTaken
	}

	return ticket, nil
}

func (c *Controller) ticket(displayName string, code model.LobbyCode) (*JoinTicket, error) {
	tok, err := c.tokens.Issue(displayName, code)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &JoinTicket{Token: tok, DisplayName: displayName, GameCode: code}, nil
}

// Manager returns the lifecycle manager for a lobby, starting it on first use
func (c *Controller) Manager(ctx context.Context, code model.LobbyCode) (*lifecycle.Manager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mgr, ok := c.managers[code]; ok {
		return mgr, nil
	}

	// A fresh manager has no sessions, so members left over from a previous
	// process can never reconnect.
	err := c.updateLobby(ctx, code, func(l *model.Lobby) (bool, error) {
		if len(l.Members) == 0 {
			return false, nil
		}
		c.logger.Info("dropping members without sessions",
			slog.String("lobby", string(code)),
			slog.Int("members", len(l.Members)))
		l.Members = []model.LobbyMember{}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	mgr, err := lifecycle.New(c.lifecycleConfig(code), c.clock, c.tokens.Verifier(), c.logger)
	if err != nil {
		return nil, err
	}
	c.managers[code] = mgr
	return mgr, nil
}

// ExistingManager returns the lifecycle manager for a lobby if one is running
func (c *Controller) ExistingManager(code model.LobbyCode) (*lifecycle.Manager, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mgr, ok := c.managers[code]
	return mgr, ok
}

func (c *Controller) lifecycleConfig(code model.LobbyCode) lifecycle.Config {
	cfg := lifecycle.DefaultConfig(string(code))
	cfg.Methods = c.cfg.Methods
	cfg.ReservationTimeout = c.cfg.ReservationTimeout
	cfg.ChannelTimeout = c.cfg.ChannelTimeout
	cfg.ReconnectTimeout = c.cfg.ReconnectTimeout
	cfg.OnJoin = func(s model.Session) { c.onJoin(code, s) }
	cfg.OnLeave = func(s model.Session, intentional bool) model.LeaveDecision {
		return c.onLeave(code, s, intentional)
	}
	cfg.OnReconnect = func(s model.Session) { c.onReconnect(code, s) }
	return cfg
}

// Start moves a lobby into the game. Players joining from now on are spectators.
func (c *Controller) Start(ctx context.Context, code model.LobbyCode) (*model.Lobby, error) {
	var started *model.Lobby
	err := c.updateLobby(ctx, code, func(l *model.Lobby) (bool, error) {
		if l.State == model.LobbyStateInGame {
			return false, model.ErrGameInProgress
		}
		connected := 0
		for _, m := range l.GetPlayers() {
			if m.Connected {
				connected++
			}
		}
		if connected == 0 {
			return false, model.ErrNotEnoughPlayers
		}
		l.State = model.LobbyStateInGame
		started = l
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("game started",
		slog.String("lobby", string(code)),
		slog.Int("players", len(started.GetPlayers())))
	c.publish(code, model.EventGameStarted, "", "", "")
	return started, nil
}

// Kick removes a member or pending joiner from a lobby without consulting the leave policy
func (c *Controller) Kick(ctx context.Context, code model.LobbyCode, displayName string) error {
	if _, err := c.storage.GetLobby(ctx, code); err != nil {
		return err
	}

	removed := false
	if mgr, ok := c.ExistingManager(code); ok {
		removed = mgr.Remove(displayName, "kicked")
	}

	var member *model.LobbyMember
	err := c.updateLobby(ctx, code, func(l *model.Lobby) (bool, error) {
		if m := l.GetMember(displayName); m != nil {
			copied := *m
			member = &copied
			return l.RemoveMember(displayName), nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	if member == nil && !removed {
		return model.ErrMemberNotFound
	}
	if member != nil {
		c.publish(code, model.EventPlayerLeft, member.DisplayName, member.Role, "kicked")
	}
	c.logger.Info("member kicked", slog.String("lobby", string(code)), slog.String("display_name", displayName))
	return nil
}

// DeleteLobby stops the lobby's manager, closes its event stream and deletes it
func (c *Controller) DeleteLobby(ctx context.Context, code model.LobbyCode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.storage.GetLobby(ctx, code); err != nil {
		return err
	}

	if mgr, ok := c.managers[code]; ok {
		mgr.Close()
		delete(c.managers, code)
	}
	c.publisher.CloseLobby(code)

	if err := c.storage.DeleteLobby(ctx, code); err != nil {
		return err
	}
	c.logger.Info("lobby deleted", slog.String("lobby", string(code)))
	return nil
}

// ActiveLobbies counts lobbies with a running lifecycle manager
func (c *Controller) ActiveLobbies() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.managers)
}

// Close stops every lifecycle manager
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for code, mgr := range c.managers {
		mgr.Close()
		delete(c.managers, code)
	}
}

// Callbacks below run on a lifecycle manager's event loop. They must not call
// back into that manager.

func (c *Controller) onJoin(code model.LobbyCode, s model.Session) {
	var role model.LobbyMemberRole
	err := c.callbackUpdate(code, func(l *model.Lobby) bool {
		role = model.RolePlayer
		if l.State == model.LobbyStateInGame {
			role = model.RoleSpectator
		}
		l.Members = append(l.Members, model.LobbyMember{
			DisplayName: s.DisplayName,
			Role:        role,
			Connected:   true,
			JoinedAt:    s.FirstConnectedAt,
		})
		return true
	})
	if err != nil {
		c.logger.Error("failed to record joined member",
			slog.String("lobby", string(code)),
			slog.String("display_name", s.DisplayName),
			slog.Any("error", err))
		return
	}
	c.publish(code, model.EventPlayerJoined, s.DisplayName, role, "")
}

func (c *Controller) onLeave(code model.LobbyCode, s model.Session, intentional bool) model.LeaveDecision {
	var (
		verdict Verdict
		role    model.LobbyMemberRole
	)
	err := c.callbackUpdate(code, func(l *model.Lobby) bool {
		member := l.GetMember(s.DisplayName)
		if member == nil {
			verdict = Verdict{LeaveDecision: model.LeaveDecision{ShouldRemove: true, RemovalReason: "not a member"}}
			return false
		}
		role = member.Role
		verdict = Decide(*member, l.State, l.Config, intentional)
		if verdict.ShouldRemove {
			return l.RemoveMember(s.DisplayName)
		}
		member.Connected = false
		if verdict.Eliminate {
			member.Eliminated = true
		}
		return true
	})
	if err != nil {
		c.logger.Error("failed to record departed member",
			slog.String("lobby", string(code)),
			slog.String("display_name", s.DisplayName),
			slog.Any("error", err))
		return model.LeaveDecision{ShouldRemove: true, RemovalReason: "lobby unavailable"}
	}

	if verdict.ShouldRemove {
		c.publish(code, model.EventPlayerLeft, s.DisplayName, role, verdict.RemovalReason)
	} else {
		reason := ""
		if verdict.Eliminate {
			reason = "eliminated"
		}
		c.publish(code, model.EventPlayerDisconnected, s.DisplayName, role, reason)
	}
	return verdict.LeaveDecision
}

func (c *Controller) onReconnect(code model.LobbyCode, s model.Session) {
	var role model.LobbyMemberRole
	err := c.callbackUpdate(code, func(l *model.Lobby) bool {
		member := l.GetMember(s.DisplayName)
		if member == nil {
			return false
		}
		member.Connected = true
		role = member.Role
		return true
	})
	if err != nil {
		c.logger.Error("failed to record reconnected member",
			slog.String("lobby", string(code)),
			slog.String("display_name", s.DisplayName),
			slog.Any("error", err))
		return
	}
	c.publish(code, model.EventPlayerReconnected, s.DisplayName, role, "")
}

func (c *Controller) callbackUpdate(code model.LobbyCode, mutate func(*model.Lobby) bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StorageTimeout)
	defer cancel()
	return c.updateLobby(ctx, code, func(l *model.Lobby) (bool, error) {
		return mutate(l), nil
	})
}

// updateLobby loads a lobby, applies mutate and saves the result if mutate
// reports a change. An error from mutate aborts without saving.
func (c *Controller) updateLobby(ctx context.Context, code model.LobbyCode, mutate func(*model.Lobby) (bool, error)) error {
	c.lobbyMu.Lock()
	defer c.lobbyMu.Unlock()

	lobby, err := c.storage.GetLobby(ctx, code)
	if err != nil {
		return err
	}
	changed, err := mutate(lobby)
	if err != nil || !changed {
		return err
	}
	lobby.UpdatedAt = c.clock.Now()
	return c.storage.SaveLobby(ctx, lobby)
}

func (c *Controller) publish(code model.LobbyCode, typ model.EventType, name string, role model.LobbyMemberRole, reason string) {
	c.publisher.Publish(model.Event{
		Type:        typ,
		Timestamp:   c.clock.Now(),
		LobbyCode:   code,
		DisplayName: name,
		Role:        string(role),
		Reason:      reason,
	})
}
