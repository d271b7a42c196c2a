package factory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/partygate/internal/model"
	"github.com/mcoot/partygate/internal/services/lobby"
	redisstorage "github.com/mcoot/partygate/internal/storage/redis"
	"github.com/mcoot/partygate/internal/testutil"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.ctx = context.Background()
}

func (s *IntegrationSuite) TearDownTest() {
	s.NoError(s.app.Close())
}

func (s *IntegrationSuite) createLobby(cfg model.LobbyConfig) model.LobbyCode {
	s.app.MockRandom.QueueString("PARTY1")
	l, err := s.app.LobbyController.CreateLobby(s.ctx, cfg, "")
	s.Require().NoError(err)
	return l.Code
}

// join reserves a slot and opens a channel from the same address
func (s *IntegrationSuite) join(code model.LobbyCode, name, addr string) (*testutil.FakeChannel, string) {
	ticket, err := s.app.LobbyController.Join(s.ctx, code, name, "", addr)
	s.Require().NoError(err)

	mgr, err := s.app.LobbyController.Manager(s.ctx, code)
	s.Require().NoError(err)

	ch := testutil.NewFakeChannel(addr)
	mgr.Upgrade(ch)
	s.Require().Equal(model.MessageChallenge, ch.Last().Type)
	s.Equal(string(code), ch.Last().GameCode)
	return ch, ticket.Token
}

func (s *IntegrationSuite) submit(code model.LobbyCode, ch *testutil.FakeChannel, token string) {
	mgr, err := s.app.LobbyController.Manager(s.ctx, code)
	s.Require().NoError(err)
	mgr.Receive(ch, model.InboundMessage{
		Type:        model.MessageSubmitCredentials,
		Credentials: model.Credentials{Token: token},
	})
}

func (s *IntegrationSuite) lobby(code model.LobbyCode) *model.Lobby {
	l, err := s.app.LobbyController.GetLobby(s.ctx, code)
	s.Require().NoError(err)
	return l
}

// Test: players join, the game starts, one drops and comes back
func (s *IntegrationSuite) TestGameNightFlow() {
	code := s.createLobby(model.DefaultLobbyConfig())
	s.Equal(model.LobbyCode("PARTY1"), code)

	alice, aliceToken := s.join(code, "Alice", "10.0.0.1")
	s.submit(code, alice, aliceToken)
	bob, bobToken := s.join(code, "Bob", "10.0.0.2")
	s.submit(code, bob, bobToken)

	s.Equal(model.MessageAccepted, alice.Last().Type)
	s.Equal(model.MessageAccepted, bob.Last().Type)
	s.Len(s.lobby(code).GetPlayers(), 2)

	started, err := s.app.LobbyController.Start(s.ctx, code)
	s.Require().NoError(err)
	s.Equal(model.LobbyStateInGame, started.State)

	// Late joiners watch
	carol, carolToken := s.join(code, "Carol", "10.0.0.3")
	s.submit(code, carol, carolToken)
	s.Equal(model.RoleSpectator, s.lobby(code).GetMember("Carol").Role)

	// Bob's connection drops; the session survives
	mgr, ok := s.app.LobbyController.ExistingManager(code)
	s.Require().True(ok)
	mgr.ChannelClosed(bob)
	s.True(bob.Closed())
	s.False(s.lobby(code).GetMember("Bob").Connected)
	_, ok = mgr.Session("Bob")
	s.True(ok)

	// And comes back from the same address with the same token
	again := testutil.NewFakeChannel("10.0.0.2")
	mgr.Upgrade(again)
	s.submit(code, again, bobToken)
	s.Equal(model.MessageAccepted, again.Last().Type)
	s.True(s.lobby(code).GetMember("Bob").Connected)

	stats := mgr.Stats()
	s.Equal(3, stats.Sessions)
	s.Equal(3, stats.Connected)
	s.Equal(3, stats.AddressKeys)
	s.Equal(3, stats.NameKeys)
}

// Test: an unanswered join request frees its name once the countdown runs out
func (s *IntegrationSuite) TestAbandonedJoinExpires() {
	code := s.createLobby(model.DefaultLobbyConfig())

	_, err := s.app.LobbyController.Join(s.ctx, code, "Alice", "", "10.0.0.1")
	s.Require().NoError(err)

	_, err = s.app.LobbyController.Join(s.ctx, code, "alice", "", "10.0.0.9")
	s.ErrorIs(err, model.ErrNameTaken)

	s.app.MockClock.Advance(lobby.DefaultConfig().ReservationTimeout)

	_, err = s.app.LobbyController.Join(s.ctx, code, "alice", "", "10.0.0.9")
	s.NoError(err)
}

// Test: a token issued for one lobby does not open another
func (s *IntegrationSuite) TestTokenBoundToLobby() {
	first := s.createLobby(model.DefaultLobbyConfig())
	s.app.MockRandom.QueueString("PARTY2")
	second, err := s.app.LobbyController.CreateLobby(s.ctx, model.DefaultLobbyConfig(), "")
	s.Require().NoError(err)

	_, firstToken := s.join(first, "Alice", "10.0.0.1")
	ch, _ := s.join(second.Code, "Alice", "10.0.0.2")
	s.submit(second.Code, ch, firstToken)

	s.Equal(model.MessageRejected, ch.Last().Type)
	s.True(ch.Closed())
	s.Nil(s.lobby(second.Code).GetMember("Alice"))
}

// Test: deleting a lobby closes its channels
func (s *IntegrationSuite) TestDeleteLobbyClosesChannels() {
	code := s.createLobby(model.DefaultLobbyConfig())
	alice, token := s.join(code, "Alice", "10.0.0.1")
	s.submit(code, alice, token)

	s.Require().NoError(s.app.LobbyController.DeleteLobby(s.ctx, code))
	s.True(alice.Closed())
	s.Nil(s.app.HubManager.GetHub(code))

	_, err := s.app.LobbyController.GetLobby(s.ctx, code)
	s.ErrorIs(err, model.ErrLobbyNotFound)
}

func TestNew_DefaultsToMemory(t *testing.T) {
	app, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	l, err := app.LobbyController.CreateLobby(context.Background(), model.DefaultLobbyConfig(), "")
	if err != nil {
		t.Fatalf("CreateLobby() error = %v", err)
	}
	if len(l.Code) != lobby.LobbyCodeLength {
		t.Errorf("code %q has length %d, want %d", l.Code, len(l.Code), lobby.LobbyCodeLength)
	}
}

func TestNew_InvalidStorage(t *testing.T) {
	if _, err := New(Config{StorageType: "sqlite"}); err == nil {
		t.Error("New() with unknown storage type should fail")
	}
	if _, err := New(Config{StorageType: StorageTypeRedis}); err == nil {
		t.Error("New() with redis storage and no RedisConfig should fail")
	}
}

func TestNew_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	redisCfg := redisstorage.DefaultConfig()
	redisCfg.URL = "redis://" + mr.Addr()
	app, err := New(Config{StorageType: StorageTypeRedis, RedisConfig: &redisCfg})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	l, err := app.LobbyController.CreateLobby(context.Background(), model.DefaultLobbyConfig(), "")
	if err != nil {
		t.Fatalf("CreateLobby() error = %v", err)
	}
	exists, err := app.Storage.LobbyExists(context.Background(), l.Code)
	if err != nil || !exists {
		t.Errorf("LobbyExists() = %v, %v; want true, nil", exists, err)
	}
}
